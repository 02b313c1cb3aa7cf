package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/leadsync/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func accountRows(accounts ...model.Account) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "user_id", "name", "access_token", "expires_in", "pages", "created_at", "updated_at"})
	for _, a := range accounts {
		pages, _ := json.Marshal(a.Pages)
		rows.AddRow(a.ID, a.UserID, a.Name, a.AccessToken, a.ExpiresIn, pages, a.CreatedAt, a.UpdatedAt)
	}
	return rows
}

func TestPostgresListAccounts(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM accounts").WillReturnRows(accountRows(
		model.Account{
			ID: "a1", UserID: "U1", Name: "Jane", AccessToken: "tok",
			ExpiresIn: 7776000,
			Pages:     []model.Page{{PageID: "P1", Name: "Acme", AccessToken: "p1"}},
			CreatedAt: now, UpdatedAt: now,
		},
		model.Account{ID: "a2", UserID: "U2", AccessToken: "tok2", CreatedAt: now, UpdatedAt: now},
	))

	accounts, err := st.ListAccounts(context.Background())

	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "U1", accounts[0].UserID)
	require.Len(t, accounts[0].Pages, 1)
	assert.Equal(t, "P1", accounts[0].Pages[0].PageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAccount_NotFound(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE user_id").
		WithArgs("U9").
		WillReturnRows(accountRows())

	account, err := st.GetAccount(context.Background(), "U9")

	require.NoError(t, err)
	assert.Nil(t, account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAccount_UpsertsAndAssignsID(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), "U1", "Jane", "tok", int64(7776000),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	account := &model.Account{
		UserID:      "U1",
		Name:        "Jane",
		AccessToken: "tok",
		ExpiresIn:   7776000,
		Pages:       []model.Page{{PageID: "P1"}},
	}
	err := st.SaveAccount(context.Background(), account)

	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.False(t, account.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLeadExists(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("L1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := st.LeadExists(context.Background(), "L1")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertLead_New(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "P1", "L1", "F1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := st.InsertLead(context.Background(), &model.Lead{
		PageID:      "P1",
		LeadID:      "L1",
		FormID:      "F1",
		CreatedTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:     model.LeadPayload{FormName: "Contact Us", Email: "x@y.com"},
	})

	require.NoError(t, err)
	assert.True(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertLead_DuplicateIsNoOp(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate.
	mock.ExpectExec("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "P1", "L1", "F1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	stored, err := st.InsertLead(context.Background(), &model.Lead{
		PageID: "P1", LeadID: "L1", FormID: "F1",
	})

	require.NoError(t, err)
	assert.False(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}
