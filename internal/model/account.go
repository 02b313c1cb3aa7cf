// Package model defines the persistent entities shared across the sync jobs.
package model

import "time"

// Page is one advertising page an account administers, with its own
// page-scoped access token. Pages are owned by their Account and are
// replaced wholesale on every credential refresh.
type Page struct {
	PageID      string `json:"page_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	AccessToken string `json:"access_token"`
}

// Account is a connected platform user: their long-lived user token and
// the pages they administer.
type Account struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"` // token lifetime in seconds
	Pages       []Page    `json:"pages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"` // stamped on every token refresh
}

// TokenExpiresAt returns the moment the account's user token stops working,
// computed from the last refresh time and the granted lifetime.
func (a *Account) TokenExpiresAt() time.Time {
	return a.UpdatedAt.Add(time.Duration(a.ExpiresIn) * time.Second)
}

// TokenRemaining returns the token lifetime left at the given instant.
// Negative values mean the token is already expired.
func (a *Account) TokenRemaining(now time.Time) time.Duration {
	return a.TokenExpiresAt().Sub(now)
}
