package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/adstack/leadsync/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlListAccounts = `SELECT id, user_id, name, access_token, expires_in, pages, created_at, updated_at FROM accounts ORDER BY created_at`
	sqlGetAccount   = `SELECT id, user_id, name, access_token, expires_in, pages, created_at, updated_at FROM accounts WHERE user_id = $1`
	sqlSaveAccount  = `INSERT INTO accounts (id, user_id, name, access_token, expires_in, pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			expires_in = EXCLUDED.expires_in,
			pages = EXCLUDED.pages,
			updated_at = EXCLUDED.updated_at`
	sqlLeadExists = `SELECT EXISTS (SELECT 1 FROM leads WHERE lead_id = $1)`
	sqlInsertLead = `INSERT INTO leads (id, page_id, lead_id, form_id, created_time, payload, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id) DO NOTHING`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL,
	expires_in   BIGINT NOT NULL DEFAULT 0,
	pages        JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	page_id      TEXT NOT NULL,
	lead_id      TEXT NOT NULL UNIQUE,
	form_id      TEXT NOT NULL,
	created_time TIMESTAMPTZ,
	payload      JSONB NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_page_id ON leads(page_id);
CREATE INDEX IF NOT EXISTS idx_leads_form_id ON leads(form_id);
CREATE INDEX IF NOT EXISTS idx_leads_created_time ON leads(created_time);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, sqlListAccounts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	return accounts, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, sqlGetAccount, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get account %s", userID)
	}
	return account, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, account *model.Account) error {
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
		return eris.Wrap(err, "postgres: marshal pages")
	}

	_, err = s.pool.Exec(ctx, sqlSaveAccount,
		account.ID, account.UserID, account.Name, account.AccessToken,
		account.ExpiresIn, pages, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save account %s", account.UserID)
	}
	return nil
}

func (s *PostgresStore) LeadExists(ctx context.Context, leadID string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, sqlLeadExists, leadID).Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "postgres: lead exists %s", leadID)
	}
	return exists, nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead *model.Lead) (bool, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.IngestedAt.IsZero() {
		lead.IngestedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(lead.Payload)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal payload")
	}

	var createdTime any
	if !lead.CreatedTime.IsZero() {
		createdTime = lead.CreatedTime
	}

	tag, err := s.pool.Exec(ctx, sqlInsertLead,
		lead.ID, lead.PageID, lead.LeadID, lead.FormID,
		createdTime, payload, lead.IngestedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert lead %s", lead.LeadID)
	}
	return tag.RowsAffected() > 0, nil
}

// scanAccount reads one accounts row from either pgx.Row or pgx.Rows.
func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		account model.Account
		pages   []byte
	)
	err := row.Scan(&account.ID, &account.UserID, &account.Name,
		&account.AccessToken, &account.ExpiresIn, &pages,
		&account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan account")
	}
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &account.Pages); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal pages")
		}
	}
	return &account, nil
}
