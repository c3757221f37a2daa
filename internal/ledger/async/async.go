package async

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokligence/labgate/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes so recording
// never waits on the database. Entries still queued when the process dies
// are lost.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	closeOnce     sync.Once
	dropped       atomic.Int64
	logger        *log.Logger
}

// Config configures the async ledger behavior.
type Config struct {
	BatchSize     int           // Maximum entries per batch (default: 50)
	FlushInterval time.Duration // Maximum time between flushes (default: 1s)
	ChannelBuffer int           // Queue size before entries are dropped (default: 1000)
	NumWorkers    int           // Parallel batch writers (default: 1)
	WriteTimeout  time.Duration // Per-batch database deadline (default: 5s)
	Logger        *log.Logger
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		writeTimeout:  cfg.WriteTimeout,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go s.batchWriter(i)
	}

	if s.logger != nil {
		s.logger.Printf("[async-ledger] started %d worker(s), batch_size=%d, flush_interval=%v, buffer=%d",
			cfg.NumWorkers, cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer)
	}
	return s
}

func (s *Store) batchWriter(workerID int) {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		failed := 0
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil {
				failed++
				if s.logger != nil {
					s.logger.Printf("[async-ledger] worker-%d ERROR writing entry: %v", workerID, err)
				}
			}
		}
		if failed > 0 && s.logger != nil {
			s.logger.Printf("[async-ledger] worker-%d flushed %d/%d entries", workerID, len(batch)-failed, len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// Drain whatever is queued; other workers may drain concurrently.
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues an entry without blocking. When the queue is full the entry
// is dropped and counted.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	select {
	case s.entryChan <- entry:
	default:
		if n := s.dropped.Add(1); s.logger != nil && (n == 1 || n%100 == 0) {
			s.logger.Printf("[async-ledger] WARNING: queue full, dropped %d entr(ies) so far", n)
		}
	}
	return nil
}

// Ping delegates to the wrapped store when it supports pinging.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.underlying.(ledger.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Dropped returns how many entries were discarded because the queue was full.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// Summary delegates to the underlying store.
func (s *Store) Summary(ctx context.Context, provider string) (ledger.Summary, error) {
	return s.underlying.Summary(ctx, provider)
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, limit)
}

// Close flushes queued entries and closes the underlying store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.underlying.Close()
}
