package ratelimit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tokligence/labgate/internal/clock"
)

// LimitKind names the window that rejected a request.
type LimitKind string

const (
	LimitHourly LimitKind = "hourly"
	LimitDaily  LimitKind = "daily"
)

const (
	HourlyWindow = time.Hour
	DailyWindow  = 24 * time.Hour

	DefaultHourlyLimit   = 20
	DefaultDailyLimit    = 100
	DefaultSweepInterval = 5 * time.Minute

	// UnknownClient is the shared bucket for callers without forwarding headers.
	UnknownClient = "unknown"
)

// Decision is the outcome of an admission check. A denial is a normal
// result, not an error.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	RetryAfterSeconds int       `json:"retryAfterSeconds,omitempty"`
	Limit             LimitKind `json:"limit,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}

// Remaining reports unused quota in each window.
type Remaining struct {
	Hourly int `json:"hourly"`
	Daily  int `json:"daily"`
}

// Config holds configuration for the governor.
type Config struct {
	HourlyLimit int
	DailyLimit  int

	// SweepInterval controls how often idle client records are dropped.
	// Negative disables the background loop; Sweep can still be called.
	SweepInterval time.Duration

	Clock  clock.Clock
	Logger *log.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HourlyLimit:   DefaultHourlyLimit,
		DailyLimit:    DefaultDailyLimit,
		SweepInterval: DefaultSweepInterval,
	}
}

// Governor enforces an hourly and a daily sliding window per client identity.
// State is process-local and lost on restart.
type Governor struct {
	store       *memoryStore
	hourlyLimit int
	dailyLimit  int
	clock       clock.Clock
	logger      *log.Logger

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewGovernor creates a governor and starts its background sweep.
func NewGovernor(cfg Config) *Governor {
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = DefaultHourlyLimit
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	g := &Governor{
		store:       newMemoryStore(),
		hourlyLimit: cfg.HourlyLimit,
		dailyLimit:  cfg.DailyLimit,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		stopSweep:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go g.sweepLoop(cfg.Clock.NewTicker(cfg.SweepInterval))
	} else {
		close(g.sweepDone)
	}
	return g
}

// TryAdmit records a request for clientID if both windows have capacity.
// The hourly window is checked first, so it is reported when both are full.
func (g *Governor) TryAdmit(clientID string) Decision {
	now := g.clock.Now()

	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	rec := g.store.getOrCreateLocked(clientID)
	rec.purge(now)

	if len(rec.hourly) >= g.hourlyLimit {
		retry := retryAfterSeconds(rec.hourly[0], HourlyWindow, now)
		return Decision{
			Allowed:           false,
			RetryAfterSeconds: retry,
			Limit:             LimitHourly,
			Reason:            fmt.Sprintf("Rate limit exceeded: %d requests per hour. Retry after %d seconds.", g.hourlyLimit, retry),
		}
	}
	if len(rec.daily) >= g.dailyLimit {
		retry := retryAfterSeconds(rec.daily[0], DailyWindow, now)
		return Decision{
			Allowed:           false,
			RetryAfterSeconds: retry,
			Limit:             LimitDaily,
			Reason:            fmt.Sprintf("Rate limit exceeded: %d requests per day. Retry after %d seconds.", g.dailyLimit, retry),
		}
	}

	rec.hourly = append(rec.hourly, now)
	rec.daily = append(rec.daily, now)
	return Decision{Allowed: true}
}

// Remaining returns unused quota for clientID without recording a request.
// Unknown clients get full quota and no record is created for them.
func (g *Governor) Remaining(clientID string) Remaining {
	now := g.clock.Now()

	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	rec, ok := g.store.records[clientID]
	if !ok {
		return Remaining{Hourly: g.hourlyLimit, Daily: g.dailyLimit}
	}
	rec.purge(now)
	return Remaining{
		Hourly: max(0, g.hourlyLimit-len(rec.hourly)),
		Daily:  max(0, g.dailyLimit-len(rec.daily)),
	}
}

// HourlyLimit returns the configured hourly quota.
func (g *Governor) HourlyLimit() int { return g.hourlyLimit }

// DailyLimit returns the configured daily quota.
func (g *Governor) DailyLimit() int { return g.dailyLimit }

// Tracked returns the number of client records currently held.
func (g *Governor) Tracked() int {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	return len(g.store.records)
}

// Sweep purges stale timestamps for every client and drops records whose
// windows are both empty. It returns the number of records removed.
func (g *Governor) Sweep() int {
	return g.store.sweep(g.clock.Now())
}

// Close stops the background sweep. It is safe to call more than once.
func (g *Governor) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopSweep)
	})
	<-g.sweepDone
	return nil
}

func (g *Governor) sweepLoop(ticker clock.Ticker) {
	defer close(g.sweepDone)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if removed := g.Sweep(); removed > 0 && g.logger != nil {
				g.logger.Printf("ratelimit sweep removed %d idle client(s)", removed)
			}
		case <-g.stopSweep:
			return
		}
	}
}

// retryAfterSeconds is the whole seconds until oldest leaves the window,
// rounded up and never below one.
func retryAfterSeconds(oldest time.Time, window time.Duration, now time.Time) int {
	left := window - now.Sub(oldest)
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
