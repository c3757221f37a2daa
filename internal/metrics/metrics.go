package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokligence/labgate/internal/ratelimit"
	"github.com/tokligence/labgate/internal/usage"
)

const namespace = "labgate"

// Collector owns a private registry with the labgate series. It is a
// usage.Sink for provider attempts and a ratelimit.Observer for admissions.
type Collector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInProgress *prometheus.GaugeVec

	admissions *prometheus.CounterVec

	attempts        *prometheus.CounterVec
	attemptLatency  *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	attemptFailures *prometheus.CounterVec

	startTime time.Time
}

// NewCollector creates a collector and registers its series.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		httpInProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_progress",
			Help:      "Requests currently being served by route.",
		}, []string{"route"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by outcome and the window that denied.",
		}, []string{"decision", "limit"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Model provider attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		attemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed model provider attempts by provider and error kind.",
		}, []string{"provider", "kind"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Model provider attempt latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30},
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens reported by model providers.",
		}, []string{"provider"}),
		startTime: time.Now(),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.httpInProgress,
		c.admissions,
		c.attempts,
		c.attemptFailures,
		c.attemptLatency,
		c.tokens,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the daemon started.",
		}, func() float64 { return time.Since(c.startTime).Seconds() }),
	)
	return c
}

// RecordRequestStart increments in-progress requests for route.
func (c *Collector) RecordRequestStart(route string) {
	c.httpInProgress.WithLabelValues(route).Inc()
}

// RecordRequestEnd decrements in-progress requests and counts the response.
func (c *Collector) RecordRequestEnd(route string, status int, duration time.Duration) {
	c.httpInProgress.WithLabelValues(route).Dec()
	c.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveAdmission counts a governor decision.
func (c *Collector) ObserveAdmission(d ratelimit.Decision) {
	if d.Allowed {
		c.admissions.WithLabelValues("allowed", "").Inc()
		return
	}
	c.admissions.WithLabelValues("denied", string(d.Limit)).Inc()
}

// Write counts one provider attempt. It never fails.
func (c *Collector) Write(e usage.Entry) error {
	provider := string(e.Provider)
	outcome := "success"
	if !e.Success {
		outcome = "failure"
		c.attemptFailures.WithLabelValues(provider, string(e.ErrorKind)).Inc()
	}
	c.attempts.WithLabelValues(provider, outcome).Inc()
	c.attemptLatency.WithLabelValues(provider).Observe(e.Duration.Seconds())
	if e.Tokens != nil && *e.Tokens > 0 {
		c.tokens.WithLabelValues(provider).Add(float64(*e.Tokens))
	}
	return nil
}

// TrackGauge exposes fn as a gauge, e.g. live sessions or tracked clients.
func (c *Collector) TrackGauge(name, help string, fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

var (
	_ usage.Sink         = (*Collector)(nil)
	_ ratelimit.Observer = (*Collector)(nil)
)
