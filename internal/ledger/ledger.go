// Package ledger defines the optional durable archive of provider attempts.
// The in-memory usage monitor stays authoritative; the ledger only outlives
// process restarts for offline inspection.
package ledger

import (
	"context"
	"time"
)

// Entry is one archived provider attempt.
type Entry struct {
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	Provider   string    `json:"provider"`
	Endpoint   string    `json:"endpoint"`
	Attempt    int       `json:"attempt"`
	Tokens     *int64    `json:"tokens,omitempty"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary aggregates archived attempts.
type Summary struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Tokens   int64 `json:"tokens"`
}

// Store defines persistence behaviour for the ledger.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	// Summary aggregates attempts for provider, or all providers when empty.
	Summary(ctx context.Context, provider string) (Summary, error)
	// ListRecent returns the newest entries first.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// DefaultListLimit applies when ListRecent is called with a non-positive limit.
const DefaultListLimit = 50

// Pinger is implemented by stores that can report database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
