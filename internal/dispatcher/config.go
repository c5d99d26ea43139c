package dispatcher

import (
	"time"

	"scrapectl/internal/config"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRequeues    = 10
	deliveryTimeout       = 30 * time.Second
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize       int           // pending events buffer (default: 256)
	Workers          int           // concurrent delivery goroutines (default: 2)
	HTTPTimeout      time.Duration // per-request timeout (default: 10s)
	BreakerThreshold int           // failures before a destination's circuit opens (default: 5)
	BreakerCooldown  time.Duration // wait before probing an open destination (default: 30s)
}

// ConfigFromClient derives the dispatcher settings from the client config.
// Buffer and worker counts can still be tuned through the environment.
func ConfigFromClient(c *config.ClientConfig) MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:       config.GetIntEnv("SCRAPECTL_CALLBACK_BUFFER", 256),
		Workers:          config.GetIntEnv("SCRAPECTL_CALLBACK_WORKERS", 2),
		HTTPTimeout:      c.HTTPTimeout,
		BreakerThreshold: c.BreakerThreshold,
		BreakerCooldown:  c.BreakerCooldown,
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}
