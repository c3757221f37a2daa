// Package gateway resolves a model provider, issues the completion call with
// bounded retries and exponential backoff, and records every attempt.
package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/clock"
	"github.com/tokligence/labgate/internal/usage"
)

const (
	DefaultMaxOutputTokens = 2000
	DefaultTemperature     = 0.7
	DefaultMaxAttempts     = 3
	DefaultBackoffBase     = time.Second
	DefaultRequestTimeout  = 30 * time.Second
)

// Recorder receives one entry per provider attempt.
type Recorder interface {
	Record(e usage.Entry)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result is a normalized completion.
type Result struct {
	Content    string           `json:"content"`
	TokensUsed *int             `json:"tokensUsed,omitempty"`
	Provider   adapter.Provider `json:"provider"`
}

// Config holds configuration for the gateway.
type Config struct {
	// Providers maps each configured provider to its binding. Providers
	// without credentials are simply absent.
	Providers map[adapter.Provider]adapter.Completer

	MaxOutputTokens int
	Temperature     float64
	MaxAttempts     int
	BackoffBase     time.Duration
	// RequestTimeout bounds one Generate call including retries and backoff.
	RequestTimeout time.Duration

	Clock    clock.Clock
	Sleep    SleepFunc
	Recorder Recorder
	Logger   *log.Logger
}

// Gateway is safe for concurrent use.
type Gateway struct {
	providers       map[adapter.Provider]adapter.Completer
	maxOutputTokens int
	temperature     float64
	maxAttempts     int
	backoffBase     time.Duration
	requestTimeout  time.Duration
	clock           clock.Clock
	sleep           SleepFunc
	recorder        Recorder
	logger          *log.Logger
}

// New creates a gateway. Zero config values take the package defaults.
func New(cfg Config) *Gateway {
	g := &Gateway{
		providers:       make(map[adapter.Provider]adapter.Completer, len(cfg.Providers)),
		maxOutputTokens: cfg.MaxOutputTokens,
		temperature:     cfg.Temperature,
		maxAttempts:     cfg.MaxAttempts,
		backoffBase:     cfg.BackoffBase,
		requestTimeout:  cfg.RequestTimeout,
		clock:           cfg.Clock,
		sleep:           cfg.Sleep,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
	}
	for p, c := range cfg.Providers {
		if c != nil {
			g.providers[p] = c
		}
	}
	if g.maxOutputTokens <= 0 {
		g.maxOutputTokens = DefaultMaxOutputTokens
	}
	if g.temperature <= 0 {
		g.temperature = DefaultTemperature
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = DefaultMaxAttempts
	}
	if g.backoffBase <= 0 {
		g.backoffBase = DefaultBackoffBase
	}
	if g.requestTimeout <= 0 {
		g.requestTimeout = DefaultRequestTimeout
	}
	if g.clock == nil {
		g.clock = clock.Real()
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	return g
}

// IsProviderAvailable reports whether p has configured credentials.
func (g *Gateway) IsProviderAvailable(p adapter.Provider) bool {
	_, ok := g.providers[p]
	return ok
}

// AvailableProviders lists configured providers in stable preference order.
func (g *Gateway) AvailableProviders() []adapter.Provider {
	out := make([]adapter.Provider, 0, len(g.providers))
	for _, p := range adapter.Providers() {
		if g.IsProviderAvailable(p) {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns preferred when configured, otherwise the first configured
// alternate. An empty preference picks the first configured provider.
func (g *Gateway) Resolve(preferred adapter.Provider) (adapter.Provider, error) {
	if preferred != "" && g.IsProviderAvailable(preferred) {
		return preferred, nil
	}
	if available := g.AvailableProviders(); len(available) > 0 {
		return available[0], nil
	}
	return "", &Error{Kind: adapter.KindConfiguration, Provider: preferred}
}

// Backoff returns the wait before the attempt following attempt (zero based).
func (g *Gateway) Backoff(attempt int) time.Duration {
	return g.backoffBase << attempt
}

// Generate runs prompt against the resolved provider. Retryable failures
// are retried with exponential backoff up to the attempt limit; other
// failures end the call immediately. The whole call, backoff included, is
// bounded by the request timeout.
func (g *Gateway) Generate(ctx context.Context, prompt string, preferred adapter.Provider, systemPrompt string) (Result, error) {
	provider, err := g.Resolve(preferred)
	if err != nil {
		return Result{}, err
	}
	if preferred != "" && provider != preferred {
		g.logf("provider %s not configured, using %s", preferred, provider)
	}
	completer := g.providers[provider]

	ctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()
	deadline := g.clock.Now().Add(g.requestTimeout)

	req := adapter.Request{
		Prompt:          prompt,
		SystemPrompt:    systemPrompt,
		MaxOutputTokens: g.maxOutputTokens,
		Temperature:     g.temperature,
	}

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		n := attempt + 1
		start := g.clock.Now()
		completion, err := completer.Complete(ctx, req)
		elapsed := g.clock.Now().Sub(start)

		if err == nil {
			result := Result{Content: completion.Text, Provider: provider}
			if completion.Usage != nil {
				total := completion.Usage.Total()
				result.TokensUsed = &total
			}
			g.record(usage.Entry{
				Timestamp: start,
				Provider:  provider,
				Endpoint:  completer.Endpoint(),
				Attempt:   n,
				Tokens:    result.TokensUsed,
				Success:   true,
				Duration:  elapsed,
			})
			return result, nil
		}

		kind := adapter.KindOf(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			kind = kindForContext(ctxErr)
		}
		g.record(usage.Entry{
			Timestamp: start,
			Provider:  provider,
			Endpoint:  completer.Endpoint(),
			Attempt:   n,
			Success:   false,
			Error:     err.Error(),
			ErrorKind: kind,
			Duration:  elapsed,
		})
		lastErr = err

		if ctx.Err() != nil || !kind.Retryable() {
			g.logf("attempt %d/%d on %s failed (%s), not retrying: %v", n, g.maxAttempts, provider, kind, err)
			return Result{}, &Error{Kind: kind, Provider: provider, Attempts: n, Err: err}
		}
		if n == g.maxAttempts {
			g.logf("attempt %d/%d on %s failed (%s), giving up: %v", n, g.maxAttempts, provider, kind, err)
			return Result{}, &Error{Kind: kind, Provider: provider, Attempts: n, Err: err}
		}

		delay := g.Backoff(attempt)
		if g.clock.Now().Add(delay).After(deadline) {
			g.logf("attempt %d/%d on %s failed (%s), backoff %s exceeds time budget", n, g.maxAttempts, provider, kind, delay)
			return Result{}, &Error{Kind: adapter.KindTimeout, Provider: provider, Attempts: n, Err: lastErr}
		}
		g.logf("attempt %d/%d on %s failed (%s), retrying in %s: %v", n, g.maxAttempts, provider, kind, delay, err)
		if err := g.sleep(ctx, delay); err != nil {
			return Result{}, &Error{Kind: kindForContext(err), Provider: provider, Attempts: n, Err: errors.Join(lastErr, err)}
		}
	}

	// Unreachable while maxAttempts > 0.
	return Result{}, &Error{Kind: adapter.KindTransient, Provider: provider, Attempts: g.maxAttempts, Err: lastErr}
}

// record forwards e to the recorder. Recorder failures never reach the caller.
func (g *Gateway) record(e usage.Entry) {
	if g.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logf("usage recorder panic: %v", r)
		}
	}()
	g.recorder.Record(e)
}

func (g *Gateway) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func kindForContext(err error) adapter.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return adapter.KindTimeout
	}
	// Caller cancellation.
	return adapter.KindTransient
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
