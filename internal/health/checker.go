// Package health reports whether the scrape backend is reachable.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scrapectl/pkg/circuitbreaker"
)

// Pinger is the backend's health route.
type Pinger interface {
	Health(ctx context.Context) error
}

// BreakerState exposes the probe circuit, when one is configured.
type BreakerState interface {
	State() circuitbreaker.State
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on the backend.
type Checker struct {
	backend  Pinger
	breaker  BreakerState
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithBreaker reports an open probe circuit as degraded.
func WithBreaker(b BreakerState) Option {
	return func(c *Checker) { c.breaker = b }
}

// WithCacheTTL sets how long a readiness result is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) { c.cacheTTL = d }
}

// NewChecker creates a new health checker.
func NewChecker(backend Pinger, opts ...Option) *Checker {
	c := &Checker{
		backend:  backend,
		timeout:  5 * time.Second,
		cacheTTL: time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Liveness reports the process itself; it never calls the backend.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness checks the backend, reusing a recent result so frequent
// probes don't hammer it.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && c.now().Sub(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := map[string]CheckResult{"backend": c.checkBackend(ctx)}
	overall := checks["backend"].Status

	if c.breaker != nil {
		state := c.breaker.State()
		check := CheckResult{Status: StatusHealthy}
		if state != circuitbreaker.Closed {
			check = CheckResult{Status: StatusDegraded, Message: "probe circuit " + state.String()}
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
		checks["circuit"] = check
	}

	response := &Response{Status: overall, Checks: checks}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkBackend(ctx context.Context) CheckResult {
	if c.backend == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "backend not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Health(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown makes readiness fail from now on.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}

// WaitReady blocks until the backend answers its health route, retrying
// with exponential backoff for at most maxWait.
func WaitReady(ctx context.Context, p Pinger, maxWait time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = maxWait

	operation := func() error {
		return p.Health(ctx)
	}
	notify := func(err error, next time.Duration) {
		slog.Debug("Backend not ready", "error", err, "retryIn", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return fmt.Errorf("backend not ready after %s: %w", maxWait, err)
	}
	return nil
}
