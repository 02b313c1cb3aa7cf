// Package store persists connected accounts and ingested leads, with
// Postgres and SQLite backends.
package store

import (
	"context"

	"github.com/adstack/leadsync/internal/model"
)

// Store defines the persistence interface used by the sync jobs.
type Store interface {
	// Accounts
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
	// SaveAccount upserts an account keyed by its user id. The stored
	// page collection is replaced wholesale with account.Pages.
	SaveAccount(ctx context.Context, account *model.Account) error

	// Leads
	LeadExists(ctx context.Context, leadID string) (bool, error)
	// InsertLead inserts the lead unless one with the same upstream lead
	// id already exists. It reports whether a row was written; a duplicate
	// is a non-error no-op.
	InsertLead(ctx context.Context, lead *model.Lead) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
