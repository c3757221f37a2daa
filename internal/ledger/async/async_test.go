package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/labgate/internal/ledger"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	block   chan struct{}
	closed  bool
	failAll bool
}

func (m *memoryStore) Record(ctx context.Context, e ledger.Entry) error {
	if m.block != nil {
		<-m.block
	}
	if m.failAll {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryStore) Summary(ctx context.Context, provider string) (ledger.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledger.Summary{Calls: int64(len(m.entries))}, nil
}

func (m *memoryStore) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memoryStore) Close() error {
	m.closed = true
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestFlushOnBatchSize(t *testing.T) {
	under := &memoryStore{}
	s := New(under, Config{BatchSize: 3, FlushInterval: time.Hour})
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(context.Background(), ledger.Entry{Provider: "openai", Attempt: i + 1}))
	}
	require.Eventually(t, func() bool { return under.count() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestFlushOnInterval(t *testing.T) {
	under := &memoryStore{}
	s := New(under, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	defer s.Close()

	require.NoError(t, s.Record(context.Background(), ledger.Entry{Provider: "anthropic"}))
	require.Eventually(t, func() bool { return under.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestCloseDrainsQueue(t *testing.T) {
	under := &memoryStore{}
	s := New(under, Config{BatchSize: 1000, FlushInterval: time.Hour})

	for i := 0; i < 25; i++ {
		require.NoError(t, s.Record(context.Background(), ledger.Entry{Provider: "openai"}))
	}
	require.NoError(t, s.Close())

	assert.Equal(t, 25, under.count())
	assert.True(t, under.closed)
}

func TestRecordDropsWhenFull(t *testing.T) {
	under := &memoryStore{block: make(chan struct{})}
	s := New(under, Config{BatchSize: 1, ChannelBuffer: 2, FlushInterval: time.Hour})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = s.Record(context.Background(), ledger.Entry{Provider: "openai"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	assert.Greater(t, s.Dropped(), int64(0))

	close(under.block)
	require.NoError(t, s.Close())
}

func TestWriteErrorsDoNotStopWorker(t *testing.T) {
	under := &memoryStore{failAll: true}
	s := New(under, Config{BatchSize: 1, FlushInterval: time.Hour})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(context.Background(), ledger.Entry{Provider: "openai"}))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 0, under.count())
}

func TestDelegatesReads(t *testing.T) {
	under := &memoryStore{entries: []ledger.Entry{{Provider: "openai"}}}
	s := New(under, Config{})
	defer s.Close()

	sum, err := s.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Calls)

	list, err := s.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
