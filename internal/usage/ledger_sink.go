package usage

import (
	"context"
	"time"

	"github.com/tokligence/labgate/internal/ledger"
)

// LedgerSink archives entries to a ledger store.
type LedgerSink struct {
	store   ledger.Store
	timeout time.Duration
}

// NewLedgerSink wraps store. Writes that take longer than timeout are
// abandoned; wrap slow stores with ledger/async.
func NewLedgerSink(store ledger.Store, timeout time.Duration) *LedgerSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &LedgerSink{store: store, timeout: timeout}
}

// Write converts e to a ledger entry and records it.
func (s *LedgerSink) Write(e Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.Record(ctx, toLedgerEntry(e))
}

func toLedgerEntry(e Entry) ledger.Entry {
	out := ledger.Entry{
		Provider:   string(e.Provider),
		Endpoint:   e.Endpoint,
		Attempt:    e.Attempt,
		Success:    e.Success,
		ErrorKind:  string(e.ErrorKind),
		Error:      e.Error,
		DurationMs: e.Duration.Milliseconds(),
		CreatedAt:  e.Timestamp,
	}
	if e.Tokens != nil {
		n := int64(*e.Tokens)
		out.Tokens = &n
	}
	return out
}
