package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/labgate/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Pool holds connection pool settings. Zero values keep database/sql defaults.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool is sized for a single gateway process.
var DefaultPool = Pool{
	MaxOpen:     10,
	MaxIdle:     5,
	MaxLifetime: 30 * time.Minute,
	MaxIdleTime: 5 * time.Minute,
}

// New opens a PostgreSQL-backed ledger store using the provided DSN.
func New(dsn string, pool Pool) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS provider_attempts (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL,
	provider TEXT NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	attempt INTEGER NOT NULL DEFAULT 1,
	tokens BIGINT,
	success BOOLEAN NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_attempts_uuid ON provider_attempts(uuid);
CREATE INDEX IF NOT EXISTS idx_provider_attempts_created ON provider_attempts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_provider_attempts_provider_created ON provider_attempts(provider, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new attempt.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if entry.Provider == "" {
		return errors.New("ledger record requires provider")
	}
	id := entry.UUID
	if id == "" {
		id = uuid.NewString()
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var tokens any
	if entry.Tokens != nil {
		tokens = *entry.Tokens
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_attempts(uuid, provider, endpoint, attempt, tokens, success, error_kind, error, duration_ms, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id,
		entry.Provider,
		entry.Endpoint,
		entry.Attempt,
		tokens,
		entry.Success,
		entry.ErrorKind,
		entry.Error,
		entry.DurationMs,
		created,
	)
	return err
}

// Summary returns aggregated attempts for provider, or all when empty.
func (s *Store) Summary(ctx context.Context, provider string) (ledger.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*) AS calls,
	COALESCE(SUM(CASE WHEN NOT success THEN 1 ELSE 0 END), 0) AS failures,
	COALESCE(SUM(tokens), 0) AS tokens
FROM provider_attempts
WHERE ($1 = '' OR provider = $1)`, provider)

	var summary ledger.Summary
	if err := row.Scan(&summary.Calls, &summary.Failures, &summary.Tokens); err != nil {
		return ledger.Summary{}, err
	}
	return summary, nil
}

// ListRecent returns the latest attempts, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, uuid::text, provider, endpoint, attempt, tokens, success, error_kind, error, duration_ms, created_at
FROM provider_attempts
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var tokens sql.NullInt64
		if err := rows.Scan(&e.ID, &e.UUID, &e.Provider, &e.Endpoint, &e.Attempt, &tokens, &e.Success, &e.ErrorKind, &e.Error, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		if tokens.Valid {
			v := tokens.Int64
			e.Tokens = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
