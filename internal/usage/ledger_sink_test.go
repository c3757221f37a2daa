package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/ledger/sqlite"
)

func TestLedgerSinkArchivesEntries(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewMonitor(Config{Capacity: 2})
	m.AddSink(NewLedgerSink(store, time.Second))

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m.Record(Entry{Timestamp: at, Provider: adapter.ProviderOpenAI, Endpoint: "chat.completions", Attempt: 1, Success: false, ErrorKind: adapter.KindTransient, Error: "reset"})
	m.Record(Entry{Timestamp: at.Add(time.Second), Provider: adapter.ProviderOpenAI, Endpoint: "chat.completions", Attempt: 2, Success: true, Tokens: tokens(64), Duration: 900 * time.Millisecond})
	m.Record(Entry{Timestamp: at.Add(2 * time.Second), Provider: adapter.ProviderAnthropic, Endpoint: "messages.create", Attempt: 1, Success: true, Tokens: tokens(10)})

	// The ring keeps two; the archive keeps everything.
	assert.Equal(t, 2, m.Len())

	sum, err := store.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Calls)
	assert.Equal(t, int64(1), sum.Failures)
	assert.Equal(t, int64(74), sum.Tokens)

	recent, err := store.ListRecent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "anthropic", recent[0].Provider)
	assert.Equal(t, int64(900), recent[1].DurationMs)
	assert.Equal(t, "transient", recent[2].ErrorKind)
}
