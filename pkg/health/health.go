// Package health serves liveness and readiness probes for the approval server.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check is one named dependency probe. A failing Optional check degrades the
// service instead of failing it. A nil Probe means the dependency is not
// configured and always reports degraded.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Optional bool
	// Disabled explains a nil Probe
	Disabled string
}

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type Checker struct {
	checks    []Check
	version   string
	startTime time.Time

	mu    sync.RWMutex
	ready bool
}

func NewChecker(version string, checks ...Check) *Checker {
	return &Checker{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady flips readiness. The server is marked ready once startup has
// finished and unready again when shutdown begins.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     c.uptime(),
		ReportedAt: time.Now(),
	})
}

func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs every check and reports 503 if any required one fails
func (c *Checker) HealthHandler(ctx echo.Context) error {
	results := c.Run(ctx.Request().Context())
	status := Overall(results)

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	return ctx.JSON(code, Response{
		Status:     status,
		Version:    c.version,
		Uptime:     c.uptime(),
		Checks:     results,
		ReportedAt: time.Now(),
	})
}

// Run probes every check concurrently
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	results := make([]CheckResult, len(c.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range c.checks {
		g.Go(func() error {
			results[i] = probe(gctx, check)
			return nil
		})
	}
	_ = g.Wait()

	byName := make(map[string]CheckResult, len(c.checks))
	for i, check := range c.checks {
		byName[check.Name] = results[i]
	}
	return byName
}

func probe(ctx context.Context, check Check) CheckResult {
	if check.Probe == nil {
		return CheckResult{Status: StatusDegraded, Message: check.Disabled}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := check.Probe(ctx)
	latency := time.Since(start).String()
	if err == nil {
		return CheckResult{Status: StatusHealthy, Latency: latency}
	}

	status := StatusUnhealthy
	if check.Optional {
		status = StatusDegraded
	}
	return CheckResult{Status: status, Message: err.Error(), Latency: latency}
}

// Overall is the worst status among results
func Overall(results map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func (c *Checker) uptime() string {
	return time.Since(c.startTime).Round(time.Second).String()
}

// RegisterRoutes mounts the probes under /api/v1/health
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")

	health.GET("", c.HealthHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
