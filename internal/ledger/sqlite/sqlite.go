package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/labgate/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	attempt INTEGER NOT NULL DEFAULT 1,
	tokens INTEGER,
	success INTEGER NOT NULL CHECK(success IN (0,1)),
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
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
		created = time.Now()
	}
	var tokens sql.NullInt64
	if entry.Tokens != nil {
		tokens = sql.NullInt64{Int64: *entry.Tokens, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_attempts(uuid, provider, endpoint, attempt, tokens, success, error_kind, error, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		entry.Provider,
		entry.Endpoint,
		entry.Attempt,
		tokens,
		entry.Success,
		entry.ErrorKind,
		entry.Error,
		entry.DurationMs,
		created.UTC(),
	)
	return err
}

// Summary returns aggregated attempts for provider, or all when empty.
func (s *Store) Summary(ctx context.Context, provider string) (ledger.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*) AS calls,
	COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) AS failures,
	COALESCE(SUM(tokens), 0) AS tokens
FROM provider_attempts
WHERE (? = '' OR provider = ?)`, provider, provider)

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
SELECT id, uuid, provider, endpoint, attempt, tokens, success, error_kind, error, duration_ms, created_at
FROM provider_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
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
