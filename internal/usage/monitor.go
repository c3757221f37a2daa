// Package usage keeps a bounded in-memory log of model provider attempts
// and derives aggregate statistics from it. Prompt and response text are
// never recorded.
package usage

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/tokligence/labgate/internal/adapter"
)

// DefaultCapacity is the number of entries retained before the oldest is evicted.
const DefaultCapacity = 1000

// Entry records one provider attempt.
type Entry struct {
	Timestamp time.Time
	Provider  adapter.Provider
	Endpoint  string
	Attempt   int
	Tokens    *int
	Success   bool
	Error     string
	ErrorKind adapter.Kind
	Duration  time.Duration
}

// MarshalJSON renders the entry with millisecond timestamps and durations.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp  int64            `json:"timestamp"`
		Provider   adapter.Provider `json:"provider"`
		Endpoint   string           `json:"endpoint"`
		Attempt    int              `json:"attempt,omitempty"`
		TokensUsed *int             `json:"tokensUsed,omitempty"`
		Success    bool             `json:"success"`
		Error      string           `json:"error,omitempty"`
		ErrorKind  adapter.Kind     `json:"errorKind,omitempty"`
		DurationMs int64            `json:"duration"`
	}{
		Timestamp:  e.Timestamp.UnixMilli(),
		Provider:   e.Provider,
		Endpoint:   e.Endpoint,
		Attempt:    e.Attempt,
		TokensUsed: e.Tokens,
		Success:    e.Success,
		Error:      e.Error,
		ErrorKind:  e.ErrorKind,
		DurationMs: e.Duration.Milliseconds(),
	})
}

// ProviderStats aggregates entries for one provider.
type ProviderStats struct {
	Calls  int `json:"calls"`
	Tokens int `json:"tokens"`
}

// Stats summarises the retained entries.
type Stats struct {
	TotalCalls  int                                `json:"totalCalls"`
	SuccessRate float64                            `json:"successRate"`
	TotalTokens int                                `json:"totalTokens"`
	ByProvider  map[adapter.Provider]ProviderStats `json:"byProvider"`
}

// Sink receives a copy of every recorded entry.
type Sink interface {
	Write(e Entry) error
}

// Config configures a Monitor.
type Config struct {
	Capacity int
	Sinks    []Sink
	Logger   *log.Logger
	// Debug prints every entry to Logger.
	Debug bool
}

// Monitor is a fixed-capacity ring of usage entries safe for concurrent use.
type Monitor struct {
	mu    sync.Mutex
	buf   []Entry
	head  int
	count int

	sinks  []Sink
	logger *log.Logger
	debug  bool
}

// NewMonitor creates a monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Monitor{
		buf:    make([]Entry, cfg.Capacity),
		sinks:  append([]Sink(nil), cfg.Sinks...),
		logger: cfg.Logger,
		debug:  cfg.Debug,
	}
}

// AddSink registers an additional sink. It must be called before the
// monitor is shared between goroutines.
func (m *Monitor) AddSink(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Record appends e, evicting the oldest entry when full, and forwards it to
// every sink. Sink failures are logged and dropped.
func (m *Monitor) Record(e Entry) {
	m.mu.Lock()
	idx := (m.head + m.count) % len(m.buf)
	if m.count == len(m.buf) {
		m.head = (m.head + 1) % len(m.buf)
	} else {
		m.count++
	}
	m.buf[idx] = e
	m.mu.Unlock()

	if m.debug && m.logger != nil {
		tokens := "-"
		if e.Tokens != nil {
			tokens = strconv.Itoa(*e.Tokens)
		}
		m.logger.Printf("DEBUG provider=%s endpoint=%s attempt=%d tokens=%s success=%t duration=%s",
			e.Provider, e.Endpoint, e.Attempt, tokens, e.Success, e.Duration.Round(time.Millisecond))
	}

	for _, s := range m.sinks {
		m.write(s, e)
	}
}

func (m *Monitor) write(s Sink, e Entry) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.Printf("usage sink panic: %v", r)
		}
	}()
	if err := s.Write(e); err != nil && m.logger != nil {
		m.logger.Printf("usage sink error: %v", err)
	}
}

// Len returns the number of retained entries.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Capacity returns the maximum number of retained entries.
func (m *Monitor) Capacity() int { return len(m.buf) }

// Recent returns up to n of the newest entries, oldest first.
func (m *Monitor) Recent(n int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || m.count == 0 {
		return []Entry{}
	}
	n = min(n, m.count)
	out := make([]Entry, n)
	start := m.count - n
	for i := 0; i < n; i++ {
		out[i] = m.buf[(m.head+start+i)%len(m.buf)]
	}
	return out
}

// Stats aggregates every retained entry.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalCalls: m.count,
		ByProvider: make(map[adapter.Provider]ProviderStats),
	}
	if m.count == 0 {
		return stats
	}

	successes := 0
	for i := 0; i < m.count; i++ {
		e := m.buf[(m.head+i)%len(m.buf)]
		if e.Success {
			successes++
		}
		ps := stats.ByProvider[e.Provider]
		ps.Calls++
		if e.Tokens != nil {
			stats.TotalTokens += *e.Tokens
			ps.Tokens += *e.Tokens
		}
		stats.ByProvider[e.Provider] = ps
	}
	stats.SuccessRate = float64(successes) / float64(m.count)
	return stats
}
