package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/leadsync/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "leadsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteAccountRoundTrip(t *testing.T) {
	t.Parallel()
	st := newSQLiteStore(t)
	ctx := context.Background()

	account := &model.Account{
		UserID:      "U1",
		Name:        "Jane",
		AccessToken: "tok",
		ExpiresIn:   7776000,
		Pages: []model.Page{
			{PageID: "P1", Name: "Acme", Category: "Retail", AccessToken: "p1"},
		},
	}
	require.NoError(t, st.SaveAccount(ctx, account))

	got, err := st.GetAccount(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, int64(7776000), got.ExpiresIn)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "p1", got.Pages[0].AccessToken)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSQLiteSaveAccount_ReplacesPagesWholesale(t *testing.T) {
	t.Parallel()
	st := newSQLiteStore(t)
	ctx := context.Background()

	account := &model.Account{
		UserID:      "U1",
		AccessToken: "tok",
		Pages: []model.Page{
			{PageID: "P1", AccessToken: "p1"},
			{PageID: "P2", AccessToken: "p2"},
		},
	}
	require.NoError(t, st.SaveAccount(ctx, account))

	account.Pages = []model.Page{{PageID: "P3", AccessToken: "p3"}}
	account.UpdatedAt = time.Now().UTC()
	require.NoError(t, st.SaveAccount(ctx, account))

	got, err := st.GetAccount(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "P3", got.Pages[0].PageID)
}

func TestSQLiteGetAccount_NotFound(t *testing.T) {
	t.Parallel()
	st := newSQLiteStore(t)

	got, err := st.GetAccount(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteInsertLead_Dedup(t *testing.T) {
	t.Parallel()
	st := newSQLiteStore(t)
	ctx := context.Background()

	lead := &model.Lead{
		PageID:      "P1",
		LeadID:      "L1",
		FormID:      "F1",
		CreatedTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:     model.LeadPayload{FormName: "Contact Us", Email: "x@y.com"},
	}

	stored, err := st.InsertLead(ctx, lead)
	require.NoError(t, err)
	assert.True(t, stored)

	exists, err := st.LeadExists(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same upstream lead id again: silent no-op.
	stored, err = st.InsertLead(ctx, &model.Lead{PageID: "P1", LeadID: "L1", FormID: "F1"})
	require.NoError(t, err)
	assert.False(t, stored)

	exists, err = st.LeadExists(ctx, "L2")
	require.NoError(t, err)
	assert.False(t, exists)
}
