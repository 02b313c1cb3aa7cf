package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/adstack/leadsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and tests; production runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL,
	expires_in   INTEGER NOT NULL DEFAULT 0,
	pages        TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	page_id      TEXT NOT NULL,
	lead_id      TEXT NOT NULL UNIQUE,
	form_id      TEXT NOT NULL,
	created_time DATETIME,
	payload      TEXT NOT NULL,
	ingested_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_page_id ON leads(page_id);
CREATE INDEX IF NOT EXISTS idx_leads_form_id ON leads(form_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, access_token, expires_in, pages, created_at, updated_at FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var (
			account model.Account
			pages   string
		)
		if err := rows.Scan(&account.ID, &account.UserID, &account.Name,
			&account.AccessToken, &account.ExpiresIn, &pages,
			&account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		if err := json.Unmarshal([]byte(pages), &account.Pages); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal pages")
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	return accounts, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var (
		account model.Account
		pages   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, access_token, expires_in, pages, created_at, updated_at FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&account.ID, &account.UserID, &account.Name,
		&account.AccessToken, &account.ExpiresIn, &pages,
		&account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get account %s", userID)
	}
	if err := json.Unmarshal([]byte(pages), &account.Pages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pages")
	}
	return &account, nil
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}

	pages, err := json.Marshal(account.Pages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, access_token, expires_in, pages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			access_token = excluded.access_token,
			expires_in = excluded.expires_in,
			pages = excluded.pages,
			updated_at = excluded.updated_at`,
		account.ID, account.UserID, account.Name, account.AccessToken,
		account.ExpiresIn, string(pages), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save account %s", account.UserID)
	}
	return nil
}

func (s *SQLiteStore) LeadExists(ctx context.Context, leadID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE lead_id = ?)`, leadID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: lead exists %s", leadID)
	}
	return exists, nil
}

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *model.Lead) (bool, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.IngestedAt.IsZero() {
		lead.IngestedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(lead.Payload)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal payload")
	}

	var createdTime any
	if !lead.CreatedTime.IsZero() {
		createdTime = lead.CreatedTime
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, page_id, lead_id, form_id, created_time, payload, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lead_id) DO NOTHING`,
		lead.ID, lead.PageID, lead.LeadID, lead.FormID,
		createdTime, string(payload), lead.IngestedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert lead %s", lead.LeadID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}
