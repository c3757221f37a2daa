package ratelimit

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey struct{}

// ClientID derives the quota identity for r: the first X-Forwarded-For
// entry, then X-Real-IP, else UnknownClient. Callers without either header
// share one bucket.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if id := strings.TrimSpace(first); id != "" {
			return id
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return UnknownClient
}

// ClientIDFromContext returns the identity stored by Middleware.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// WithClientID stores id in ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Observer is notified of every admission decision.
type Observer interface {
	ObserveAdmission(d Decision)
}

// Middleware wraps an HTTP handler with admission control.
type Middleware struct {
	governor *Governor
	enabled  bool
	logger   *log.Logger
	observer Observer
}

// NewMiddleware creates a new admission middleware.
func NewMiddleware(governor *Governor, enabled bool, logger *log.Logger) *Middleware {
	return &Middleware{
		governor: governor,
		enabled:  enabled,
		logger:   logger,
	}
}

// SetObserver registers an observer for admission decisions.
func (m *Middleware) SetObserver(o Observer) {
	m.observer = o
}

type deniedBody struct {
	Error             string    `json:"error"`
	Message           string    `json:"message"`
	RetryAfterSeconds int       `json:"retryAfterSeconds"`
	Limit             LimitKind `json:"limit"`
	Remaining         Remaining `json:"remaining"`
}

// Wrap applies admission control to an HTTP handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled || m.governor == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), ClientID(r))))
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ClientID(r)
		decision := m.governor.TryAdmit(clientID)
		if m.observer != nil {
			m.observer.ObserveAdmission(decision)
		}
		remaining := m.governor.Remaining(clientID)

		m.addRateLimitHeaders(w, remaining)

		if !decision.Allowed {
			if m.logger != nil {
				m.logger.Printf("rate limit exceeded: client=%s limit=%s retry_after=%ds path=%s",
					clientID, decision.Limit, decision.RetryAfterSeconds, r.URL.Path)
			}
			retry := strconv.Itoa(decision.RetryAfterSeconds)
			w.Header().Set("Retry-After", retry)
			w.Header().Set("X-RateLimit-Type", string(decision.Limit))
			reset := m.governor.clock.Now().Add(time.Duration(decision.RetryAfterSeconds) * time.Second)
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(deniedBody{
				Error:             "Rate limit exceeded",
				Message:           decision.Reason,
				RetryAfterSeconds: decision.RetryAfterSeconds,
				Limit:             decision.Limit,
				Remaining:         remaining,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), clientID)))
	})
}

func (m *Middleware) addRateLimitHeaders(w http.ResponseWriter, remaining Remaining) {
	h := w.Header()
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(m.governor.HourlyLimit()))
	h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(remaining.Hourly))
	h.Set("X-RateLimit-Limit-Day", strconv.Itoa(m.governor.DailyLimit()))
	h.Set("X-RateLimit-Remaining-Day", strconv.Itoa(remaining.Daily))
}
