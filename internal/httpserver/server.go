package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/gateway"
	"github.com/tokligence/labgate/internal/health"
	"github.com/tokligence/labgate/internal/httpserver/protocol"
	"github.com/tokligence/labgate/internal/ledger"
	"github.com/tokligence/labgate/internal/logging"
	"github.com/tokligence/labgate/internal/metrics"
	"github.com/tokligence/labgate/internal/ratelimit"
	"github.com/tokligence/labgate/internal/session"
	"github.com/tokligence/labgate/internal/usage"
	"github.com/tokligence/labgate/internal/validation"
)

// maxBodyBytes caps request bodies; the largest valid body is a few
// 5000-character fields.
const maxBodyBytes = 1 << 20

// Generator is the model gateway as seen by the HTTP layer.
type Generator interface {
	Generate(ctx context.Context, prompt string, preferred adapter.Provider, systemPrompt string) (gateway.Result, error)
	AvailableProviders() []adapter.Provider
}

// Config wires the server's collaborators. Gateway, Sessions, Governor and
// Usage are required; the rest are optional.
type Config struct {
	Gateway          Generator
	Sessions         *session.Store
	Governor         *ratelimit.Governor
	RateLimitEnabled bool
	Usage            *usage.Monitor
	Guard            *validation.Guard
	DefaultProvider  adapter.Provider

	Ledger  ledger.Store
	Health  *health.Checker
	Metrics *metrics.Collector
}

// Server exposes the AI endpoints and the operational routes.
type Server struct {
	gateway         Generator
	sessions        *session.Store
	governor        *ratelimit.Governor
	limitEnabled    bool
	admission       *ratelimit.Middleware
	usage           *usage.Monitor
	guard           *validation.Guard
	defaultProvider adapter.Provider

	ledger  ledger.Store
	health  *health.Checker
	metrics *metrics.Collector

	logger   *log.Logger
	logLevel string
}

// New creates a server. Call SetLogger before Router to route its logs.
func New(cfg Config) *Server {
	s := &Server{
		gateway:         cfg.Gateway,
		sessions:        cfg.Sessions,
		governor:        cfg.Governor,
		limitEnabled:    cfg.RateLimitEnabled,
		usage:           cfg.Usage,
		guard:           cfg.Guard,
		defaultProvider: cfg.DefaultProvider,
		ledger:          cfg.Ledger,
		health:          cfg.Health,
		metrics:         cfg.Metrics,
		logger:          log.New(log.Writer(), "[labgated/http] ", log.LstdFlags|log.Lmicroseconds),
	}
	if s.guard == nil {
		s.guard = validation.NewGuard()
	}
	if s.defaultProvider == "" {
		s.defaultProvider = adapter.ProviderOpenAI
	}
	return s
}

// SetLogger configures server-level logger and verbosity ("debug", "info", ...).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	logging.Debugf(s.logger, s.isDebug(), format, args...)
}

// Router builds the chi router with every endpoint mounted.
func (s *Server) Router() http.Handler {
	s.admission = ratelimit.NewMiddleware(s.governor, s.limitEnabled, s.logger)
	if s.metrics != nil {
		s.admission.SetObserver(s.metrics)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)

	s.registerEndpoints(r,
		newAIEndpoint(s),
		newSessionEndpoint(s),
		newUsageEndpoint(s),
		newHealthEndpoint(s),
	)
	if s.metrics == nil {
		return r
	}
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return s.instrument(r)
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		s.debugf("registering endpoint %s", ep.Name())
		for _, route := range ep.Routes() {
			r.Method(route.Method, route.Path, route.Handler)
		}
	}
}

// recoverer turns handler panics into a 500 JSON body and a log line.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Printf("panic serving %s %s request_id=%s: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), rec)
				s.respondJSON(w, http.StatusInternalServerError, errorBody{
					Error:   "Internal server error",
					Message: "Unknown error occurred",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// instrument records request counts and latency labelled by route pattern,
// so session ids never become label values.
func (s *Server) instrument(mux *chi.Mux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		rctx := chi.NewRouteContext()
		if mux.Match(rctx, r.Method, r.URL.Path) {
			route = rctx.RoutePattern()
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		s.metrics.RecordRequestStart(route)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordRequestEnd(route, status, time.Since(start))
		}()
		mux.ServeHTTP(ww, r)
	})
}

type errorBody struct {
	Error   string             `json:"error"`
	Message string             `json:"message,omitempty"`
	Details []validation.Issue `json:"details,omitempty"`
}

type providerErrorBody struct {
	Error              string             `json:"error"`
	Message            string             `json:"message"`
	AvailableProviders []adapter.Provider `json:"availableProviders"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON reads a size-capped JSON body into dst.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
