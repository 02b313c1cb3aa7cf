package graph

import "fmt"

// Form is one lead-generation form attached to a page.
type Form struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// FieldData is one answered question on a submitted lead: the question
// label and the values the user entered.
type FieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Lead is a raw form submission as returned by the leads edge.
// CreatedTime is kept as the upstream string; the Graph API emits a
// non-RFC3339 offset format ("2024-01-01T00:00:00+0000") that callers
// parse with ParseTime.
type Lead struct {
	ID           string      `json:"id"`
	AdID         string      `json:"ad_id,omitempty"`
	AdName       string      `json:"ad_name,omitempty"`
	AdsetID      string      `json:"adset_id,omitempty"`
	AdsetName    string      `json:"adset_name,omitempty"`
	CampaignID   string      `json:"campaign_id,omitempty"`
	CampaignName string      `json:"campaign_name,omitempty"`
	CreatedTime  string      `json:"created_time,omitempty"`
	FieldData    []FieldData `json:"field_data,omitempty"`
	FormID       string      `json:"form_id,omitempty"`
	Platform     string      `json:"platform,omitempty"`
}

// Question is one declared question in a form's schema.
type Question struct {
	Key     string   `json:"key,omitempty"`
	Label   string   `json:"label,omitempty"`
	Type    string   `json:"type,omitempty"`
	Options []string `json:"options,omitempty"`
}

// FormDetail is a form's metadata: display name and question schema.
type FormDetail struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions,omitempty"`
}

// Token is the response from the token-exchange endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// PageAccount is one entry from the /me/accounts edge: a page the user
// administers together with its page-scoped token.
type PageAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	AccessToken string `json:"access_token"`
}

// APIError is a structured Graph API error envelope.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode,omitempty"`
	FBTraceID  string `json:"fbtrace_id,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: %s (type=%s code=%d http=%d)", e.Message, e.Type, e.Code, e.StatusCode)
}

// Throttled reports whether the error code is one of the Graph API's
// rate-limit codes, which are safe to retry after a backoff.
func (e *APIError) Throttled() bool {
	switch e.Code {
	case 1, 2, 4, 17, 32, 613:
		return true
	default:
		return false
	}
}
