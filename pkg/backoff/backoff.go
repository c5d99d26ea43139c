// Package backoff provides geometric backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Config for geometric backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
	Factor  float64       // default: 2; values below 1 use the default
}

func (c *Config) resolve() (initial, maxBackoff time.Duration, factor float64) {
	initial = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
	factor = 2.0
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxBackoff = c.Max
		}
		if c.Factor >= 1 {
			factor = c.Factor
		}
	}
	return initial, maxBackoff, factor
}

// Exponential calculates the backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*factor, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxBackoff, factor := cfg.resolve()

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(factor, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// Policy tracks the delay of a single retry loop. The delay starts at
// Initial, grows by Factor after every Next call and never exceeds Max.
// Growth is truncated to whole milliseconds.
//
// A Policy is not safe for concurrent use.
type Policy struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	current time.Duration
}

// NewPolicy creates a policy positioned at its floor.
func NewPolicy(cfg Config) *Policy {
	initial, maxBackoff, factor := cfg.resolve()
	if initial > maxBackoff {
		initial = maxBackoff
	}
	return &Policy{
		initial: initial,
		max:     maxBackoff,
		factor:  factor,
		current: initial,
	}
}

// Reset moves the policy back to its floor.
func (p *Policy) Reset() {
	p.current = p.initial
}

// Current returns the delay the next call to Next will return.
func (p *Policy) Current() time.Duration {
	return p.current
}

// Next returns the current delay and grows it for the following call.
func (p *Policy) Next() time.Duration {
	d := p.current
	grown := time.Duration(float64(d) * p.factor).Truncate(time.Millisecond)
	if grown > p.max {
		grown = p.max
	}
	p.current = grown
	return d
}
