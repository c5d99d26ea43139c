// Package testutil provides a fake clock, a scripted scrape backend and
// polling helpers for asynchronous assertions.
package testutil

import (
	"testing"
	"time"
)

type waitConfig struct {
	timeout  time.Duration
	interval time.Duration
	what     string
}

// WaitOption tunes WaitFor and MustWaitFor.
type WaitOption func(*waitConfig)

// WithTimeout bounds the wait (default 5s).
func WithTimeout(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.timeout = d }
}

// WithInterval sets how often the condition is re-evaluated (default 2ms).
func WithInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.interval = d }
}

// WithMessage names the awaited condition in the failure message.
func WithMessage(msg string) WaitOption {
	return func(c *waitConfig) { c.what = msg }
}

func newWaitConfig(opts []WaitOption) waitConfig {
	c := waitConfig{timeout: 5 * time.Second, interval: 2 * time.Millisecond, what: "condition"}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WaitFor re-evaluates condition until it holds or the timeout passes,
// and reports whether it held.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	c := newWaitConfig(opts)
	deadline := time.Now().Add(c.timeout)
	for !condition() {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(c.interval)
	}
	return true
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		c := newWaitConfig(opts)
		tb.Fatalf("timed out after %v waiting for %s", c.timeout, c.what)
	}
}

// Never asserts that condition stays false for the whole window.
func Never(tb testing.TB, window time.Duration, condition func() bool) {
	tb.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if condition() {
			tb.Fatal("condition became true unexpectedly")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
