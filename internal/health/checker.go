package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tokligence/labgate/internal/adapter"
	"github.com/tokligence/labgate/internal/ledger"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Component represents a system component that can be health-checked.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // database, config
	CheckResult
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Checker performs health checks on system components.
type Checker struct {
	components []Component
	mu         sync.RWMutex

	ledger    ledger.Pinger
	providers func() []adapter.Provider

	dbTimeout          time.Duration
	maxDatabaseLatency time.Duration
}

// Config holds health checker configuration.
type Config struct {
	// Ledger is pinged when the durable usage archive is enabled.
	Ledger ledger.Pinger
	// Providers lists the model providers with credentials.
	Providers func() []adapter.Provider

	DBTimeout          time.Duration
	MaxDatabaseLatency time.Duration
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.DBTimeout == 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	if cfg.MaxDatabaseLatency == 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}
	return &Checker{
		ledger:             cfg.Ledger,
		providers:          cfg.Providers,
		dbTimeout:          cfg.DBTimeout,
		maxDatabaseLatency: cfg.MaxDatabaseLatency,
	}
}

// Check performs all health checks and returns overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup
	results := make(chan Component, 2)

	if c.ledger != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkDatabase(ctx, "usage_ledger", c.ledger)
		}()
	}

	if c.providers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkProviders()
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, 2)
	for comp := range results {
		components = append(components, comp)
	}

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return c.calculateOverallStatus(components)
}

// checkDatabase checks database connectivity and latency.
func (c *Checker) checkDatabase(ctx context.Context, name string, db ledger.Pinger) Component {
	comp := Component{
		Name:        name,
		Type:        "database",
		CheckResult: CheckResult{Timestamp: time.Now()},
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, c.dbTimeout)
	defer cancel()

	err := db.Ping(dbCtx)
	latency := time.Since(start)
	comp.LatencyMs = latency.Milliseconds()

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Database unreachable"
		return comp
	}

	if latency > c.maxDatabaseLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", latency)
	} else {
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

// checkProviders reports degraded when no provider has credentials, since
// every AI request would then be rejected.
func (c *Checker) checkProviders() Component {
	comp := Component{
		Name:        "model_providers",
		Type:        "config",
		CheckResult: CheckResult{Timestamp: time.Now()},
	}
	available := c.providers()
	if len(available) == 0 {
		comp.Status = StatusDegraded
		comp.Message = "No model provider is configured"
		return comp
	}
	names := make([]string, len(available))
	for i, p := range available {
		names[i] = string(p)
	}
	comp.Status = StatusHealthy
	comp.Message = "Configured: " + strings.Join(names, ", ")
	return comp
}

// calculateOverallStatus determines overall health based on component statuses.
func (c *Checker) calculateOverallStatus(components []Component) HealthStatus {
	overallStatus := StatusHealthy
	criticalUnhealthy := false

	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			// Database failures are critical
			if comp.Type == "database" {
				criticalUnhealthy = true
			}
			if overallStatus == StatusHealthy {
				overallStatus = StatusDegraded
			}
		case StatusDegraded:
			if overallStatus == StatusHealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	if criticalUnhealthy {
		overallStatus = StatusUnhealthy
	}

	return HealthStatus{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// GetLastStatus returns the last health check result.
func (c *Checker) GetLastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.components) == 0 {
		return HealthStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}
	}
	return c.calculateOverallStatus(c.components)
}
