package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/clock"
	"github.com/tokligence/labgate/internal/usage"
)

// scriptedCompleter returns errs in order, then succeeds.
type scriptedCompleter struct {
	mu       sync.Mutex
	endpoint string
	errs     []error
	calls    int
	requests []adapter.Request
	text     string
	usage    *adapter.TokenUsage
	block    bool
}

func (s *scriptedCompleter) Complete(ctx context.Context, req adapter.Request) (adapter.Completion, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return adapter.Completion{}, adapter.TransportError(adapter.ProviderOpenAI, ctx.Err())
	}
	if idx < len(s.errs) {
		return adapter.Completion{}, s.errs[idx]
	}
	return adapter.Completion{Text: s.text, Usage: s.usage}, nil
}

func (s *scriptedCompleter) Endpoint() string { return s.endpoint }

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSleep struct {
	clk    *clock.Manual
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	r.clk.Advance(d)
	return ctx.Err()
}

type harness struct {
	gw      *Gateway
	monitor *usage.Monitor
	sleep   *recordingSleep
	clk     *clock.Manual
}

func newHarness(t *testing.T, providers map[adapter.Provider]adapter.Completer, mutate ...func(*Config)) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	h := &harness{
		monitor: usage.NewMonitor(usage.Config{}),
		sleep:   &recordingSleep{clk: clk},
		clk:     clk,
	}
	cfg := Config{
		Providers: providers,
		Clock:     clk,
		Sleep:     h.sleep.Sleep,
		Recorder:  h.monitor,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.gw = New(cfg)
	return h
}

func unavailable(p adapter.Provider) error {
	return adapter.StatusError(p, http.StatusServiceUnavailable, "overloaded")
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	stub := &scriptedCompleter{
		endpoint: "chat.completions",
		errs:     []error{unavailable(adapter.ProviderOpenAI), adapter.TransportError(adapter.ProviderOpenAI, errors.New("connection reset"))},
		text:     `{"components":[]}`,
		usage:    &adapter.TokenUsage{Input: 40, Output: 60},
	}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub})

	res, err := h.gw.Generate(context.Background(), "design it", adapter.ProviderOpenAI, "")
	require.NoError(t, err)

	assert.Equal(t, 3, stub.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleep.delays)
	assert.Equal(t, `{"components":[]}`, res.Content)
	assert.Equal(t, adapter.ProviderOpenAI, res.Provider)
	require.NotNil(t, res.TokensUsed)
	assert.Equal(t, 100, *res.TokensUsed)

	entries := h.monitor.Recent(10)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Success)
	assert.Equal(t, adapter.KindUnavailable, entries[0].ErrorKind)
	assert.False(t, entries[1].Success)
	assert.Equal(t, adapter.KindTransient, entries[1].ErrorKind)
	assert.True(t, entries[2].Success)
	assert.Equal(t, 3, entries[2].Attempt)
	assert.Equal(t, "chat.completions", entries[2].Endpoint)
}

func TestGenerate_NonRetryableFailsFast(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"authentication", adapter.StatusError(adapter.ProviderOpenAI, http.StatusUnauthorized, "bad key"), ErrAuthentication},
		{"rate limited", adapter.StatusError(adapter.ProviderOpenAI, http.StatusTooManyRequests, "slow down"), ErrRateLimited},
		{"invalid", adapter.StatusError(adapter.ProviderOpenAI, http.StatusBadRequest, "bad params"), ErrInvalidRequest},
		{"untyped rate limit", errors.New("Rate limit exceeded for model"), ErrRateLimited},
		{"untyped authentication", errors.New("Authentication error: key revoked"), ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &scriptedCompleter{errs: []error{tt.err, tt.err, tt.err}}
			h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub})

			_, err := h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, 1, stub.Calls())
			assert.Empty(t, h.sleep.delays)
			assert.Equal(t, 1, h.monitor.Len())

			var gerr *Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, 1, gerr.Attempts)
			assert.False(t, gerr.Retryable())
			assert.ErrorIs(t, err, tt.err, "the provider error stays reachable")
		})
	}
}

func TestGenerate_ExhaustsAttempts(t *testing.T) {
	last := unavailable(adapter.ProviderAnthropic)
	stub := &scriptedCompleter{errs: []error{unavailable(adapter.ProviderAnthropic), unavailable(adapter.ProviderAnthropic), last}}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderAnthropic: stub})

	_, err := h.gw.Generate(context.Background(), "p", adapter.ProviderAnthropic, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, last)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 3, gerr.Attempts)
	assert.True(t, gerr.Retryable())
	assert.Equal(t, 3, stub.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleep.delays)
	assert.Equal(t, 3, h.monitor.Len())
}

func TestGenerate_FallsBackToConfiguredProvider(t *testing.T) {
	stub := &scriptedCompleter{endpoint: "messages.create", text: "ok"}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderAnthropic: stub})

	res, err := h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
	require.NoError(t, err)
	assert.Equal(t, adapter.ProviderAnthropic, res.Provider)
	assert.Nil(t, res.TokensUsed)

	entries := h.monitor.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, adapter.ProviderAnthropic, entries[0].Provider)
	assert.Equal(t, "messages.create", entries[0].Endpoint)
}

func TestGenerate_NoProviderConfigured(t *testing.T) {
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: nil})

	_, err := h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, h.monitor.Len(), "no attempt means no usage entry")
	assert.Equal(t, "gateway: no model provider is configured", err.Error())
}

func TestAvailableProviders(t *testing.T) {
	both := newHarness(t, map[adapter.Provider]adapter.Completer{
		adapter.ProviderAnthropic: &scriptedCompleter{},
		adapter.ProviderOpenAI:    &scriptedCompleter{},
	})
	assert.Equal(t, []adapter.Provider{adapter.ProviderOpenAI, adapter.ProviderAnthropic}, both.gw.AvailableProviders())
	assert.True(t, both.gw.IsProviderAvailable(adapter.ProviderAnthropic))

	none := newHarness(t, nil)
	assert.Empty(t, none.gw.AvailableProviders())
	assert.False(t, none.gw.IsProviderAvailable(adapter.ProviderOpenAI))

	p, err := both.gw.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, adapter.ProviderOpenAI, p)
}

func TestGenerate_BackoffBeyondBudgetTimesOut(t *testing.T) {
	last := unavailable(adapter.ProviderOpenAI)
	stub := &scriptedCompleter{errs: []error{unavailable(adapter.ProviderOpenAI), last, last}}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub}, func(c *Config) {
		c.RequestTimeout = 2500 * time.Millisecond
	})

	_, err := h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 2, stub.Calls())
	assert.Equal(t, []time.Duration{time.Second}, h.sleep.delays)
	assert.Equal(t, 2, h.monitor.Len())
}

func TestGenerate_ContextDeadlineDuringCall(t *testing.T) {
	stub := &scriptedCompleter{block: true}
	monitor := usage.NewMonitor(usage.Config{})
	gw := New(Config{
		Providers:      map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub},
		RequestTimeout: 30 * time.Millisecond,
		Recorder:       monitor,
	})

	_, err := gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, stub.Calls())

	entries := monitor.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, adapter.KindTimeout, entries[0].ErrorKind)
}

func TestGenerate_CallerCancellationStopsRetries(t *testing.T) {
	stub := &scriptedCompleter{errs: []error{unavailable(adapter.ProviderOpenAI), unavailable(adapter.ProviderOpenAI)}}
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub}, func(c *Config) {
		c.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
	})

	_, err := h.gw.Generate(ctx, "p", adapter.ProviderOpenAI, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, stub.Calls())
}

type panickingRecorder struct{ calls int }

func (p *panickingRecorder) Record(usage.Entry) {
	p.calls++
	panic("recorder broke")
}

func TestGenerate_RecorderPanicDoesNotFailCall(t *testing.T) {
	rec := &panickingRecorder{}
	stub := &scriptedCompleter{errs: []error{unavailable(adapter.ProviderOpenAI)}, text: "fine"}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub}, func(c *Config) {
		c.Recorder = rec
	})

	var res Result
	var err error
	require.NotPanics(t, func() {
		res, err = h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Content)
	assert.Equal(t, 2, rec.calls)
}

func TestGenerate_UsageLogIsBoundedAndComplete(t *testing.T) {
	stub := &scriptedCompleter{errs: []error{unavailable(adapter.ProviderOpenAI)}, text: "ok"}
	monitor := usage.NewMonitor(usage.Config{Capacity: 4})
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub}, func(c *Config) {
		c.Recorder = monitor
	})

	for i := 0; i < 3; i++ {
		_, err := h.gw.Generate(context.Background(), "p", adapter.ProviderOpenAI, "")
		require.NoError(t, err)
	}

	// 1 failure + 1 success, then 2 successes: 4 attempts in total.
	assert.Equal(t, 4, stub.Calls())
	assert.Equal(t, 4, monitor.Len())
	assert.Equal(t, 0.75, monitor.Stats().SuccessRate)
}

func TestGenerate_RequestShape(t *testing.T) {
	stub := &scriptedCompleter{text: "ok"}
	h := newHarness(t, map[adapter.Provider]adapter.Completer{adapter.ProviderOpenAI: stub}, func(c *Config) {
		c.MaxOutputTokens = 1234
	})

	_, err := h.gw.Generate(context.Background(), "the prompt", adapter.ProviderOpenAI, "system text")
	require.NoError(t, err)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, adapter.Request{
		Prompt:          "the prompt",
		SystemPrompt:    "system text",
		MaxOutputTokens: 1234,
		Temperature:     DefaultTemperature,
	}, stub.requests[0])
}

func TestBackoff(t *testing.T) {
	gw := New(Config{})
	assert.Equal(t, time.Second, gw.Backoff(0))
	assert.Equal(t, 2*time.Second, gw.Backoff(1))
	assert.Equal(t, 4*time.Second, gw.Backoff(2))

	fast := New(Config{BackoffBase: 10 * time.Millisecond})
	assert.Equal(t, 40*time.Millisecond, fast.Backoff(2))
}
