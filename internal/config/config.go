// Package config loads client configuration from an optional TOML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// PathEnv names the variable holding the optional TOML file path.
const PathEnv = "SCRAPECTL_CONFIG"

// ClientConfig holds configuration for the scrape job controller.
type ClientConfig struct {
	BaseURL     string        `validate:"required,url"`
	HTTPTimeout time.Duration `validate:"gt=0"`
	Format      string        `validate:"oneof=json excel"`
	OutputDir   string        `validate:"required"`

	PollFloor   time.Duration `validate:"gt=0"`
	PollCeiling time.Duration `validate:"gtefield=PollFloor"`
	PollFactor  float64       `validate:"gte=1"`

	// Backend status codes mapped to probe outcomes.
	StatusReady   int `validate:"min=100,max=599"`
	StatusEmpty   int `validate:"min=100,max=599,nefield=StatusReady"`
	StatusPending int `validate:"min=100,max=599,nefield=StatusReady,nefield=StatusEmpty"`

	BreakerThreshold int           `validate:"min=1"`
	BreakerCooldown  time.Duration `validate:"gt=0"`

	APIAddr     string
	MetricsAddr string
	APIKey      string // Bearer token for the local API, empty disables auth

	CallbackURL string `validate:"omitempty,url"`
	CallbackKey string

	LogFile  string
	LogLevel string `validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *ClientConfig {
	return &ClientConfig{
		BaseURL:          "http://127.0.0.1:5000",
		HTTPTimeout:      30 * time.Second,
		Format:           "excel",
		OutputDir:        ".",
		PollFloor:        2500 * time.Millisecond,
		PollCeiling:      15 * time.Second,
		PollFactor:       1.7,
		StatusReady:      200,
		StatusEmpty:      204,
		StatusPending:    404,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		APIAddr:          ":8080",
		MetricsAddr:      ":9090",
		LogFile:          "scrapectl.log",
		LogLevel:         "info",
	}
}

// LoadClientConfig builds the configuration from defaults, the TOML file
// named by SCRAPECTL_CONFIG (if any), then environment variables.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := Default()

	if path := os.Getenv(PathEnv); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SCRAPECTL_* variables. Unset or
// unparsable variables leave the current value in place.
func (c *ClientConfig) ApplyEnv() {
	c.BaseURL = GetEnv("SCRAPECTL_BASE_URL", c.BaseURL)
	c.HTTPTimeout = GetDurationEnv("SCRAPECTL_HTTP_TIMEOUT", c.HTTPTimeout)
	c.Format = GetEnv("SCRAPECTL_FORMAT", c.Format)
	c.OutputDir = GetEnv("SCRAPECTL_OUTPUT_DIR", c.OutputDir)

	c.PollFloor = GetDurationEnv("SCRAPECTL_POLL_FLOOR", c.PollFloor)
	c.PollCeiling = GetDurationEnv("SCRAPECTL_POLL_CEILING", c.PollCeiling)
	c.PollFactor = GetFloatEnv("SCRAPECTL_POLL_FACTOR", c.PollFactor)

	c.StatusReady = GetIntEnv("SCRAPECTL_STATUS_READY", c.StatusReady)
	c.StatusEmpty = GetIntEnv("SCRAPECTL_STATUS_EMPTY", c.StatusEmpty)
	c.StatusPending = GetIntEnv("SCRAPECTL_STATUS_PENDING", c.StatusPending)

	c.BreakerThreshold = GetIntEnv("SCRAPECTL_BREAKER_THRESHOLD", c.BreakerThreshold)
	c.BreakerCooldown = GetDurationEnv("SCRAPECTL_BREAKER_COOLDOWN", c.BreakerCooldown)

	c.APIAddr = GetEnv("SCRAPECTL_API_ADDR", c.APIAddr)
	c.MetricsAddr = GetEnv("SCRAPECTL_METRICS_ADDR", c.MetricsAddr)
	if key := GetSecretFile(GetEnv("SCRAPECTL_API_KEY_FILE", "")); key != "" {
		c.APIKey = key
	}

	c.CallbackURL = GetEnv("SCRAPECTL_CALLBACK_URL", c.CallbackURL)
	if key := GetSecretFile(GetEnv("SCRAPECTL_CALLBACK_KEY_FILE", "")); key != "" {
		c.CallbackKey = key
	}

	c.LogFile = GetEnv("SCRAPECTL_LOG_FILE", c.LogFile)
	c.LogLevel = GetEnv("SCRAPECTL_LOG_LEVEL", c.LogLevel)
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c *ClientConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// File is the on-disk TOML layout. Durations are Go duration strings.
type File struct {
	Backend struct {
		BaseURL string `toml:"base_url,omitempty"`
		Timeout string `toml:"timeout,omitempty"`
		Format  string `toml:"format,omitempty"`
	} `toml:"backend"`

	Poll struct {
		Floor   string  `toml:"floor,omitempty"`
		Ceiling string  `toml:"ceiling,omitempty"`
		Factor  float64 `toml:"factor,omitempty"`
	} `toml:"poll"`

	Status struct {
		Ready   int `toml:"ready,omitempty"`
		Empty   int `toml:"empty,omitempty"`
		Pending int `toml:"pending,omitempty"`
	} `toml:"status"`

	Breaker struct {
		Threshold int    `toml:"threshold,omitempty"`
		Cooldown  string `toml:"cooldown,omitempty"`
	} `toml:"breaker"`

	Server struct {
		APIAddr     string `toml:"api_addr,omitempty"`
		MetricsAddr string `toml:"metrics_addr,omitempty"`
	} `toml:"server"`

	Callback struct {
		URL string `toml:"url,omitempty"`
	} `toml:"callback"`

	Output struct {
		Dir      string `toml:"dir,omitempty"`
		LogFile  string `toml:"log_file,omitempty"`
		LogLevel string `toml:"log_level,omitempty"`
	} `toml:"output"`
}

// MergeFile overlays non-zero values from the TOML file at path.
func (c *ClientConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return c.merge(&f)
}

func (c *ClientConfig) merge(f *File) error {
	setString(&c.BaseURL, f.Backend.BaseURL)
	setString(&c.Format, f.Backend.Format)
	setString(&c.APIAddr, f.Server.APIAddr)
	setString(&c.MetricsAddr, f.Server.MetricsAddr)
	setString(&c.CallbackURL, f.Callback.URL)
	setString(&c.OutputDir, f.Output.Dir)
	setString(&c.LogFile, f.Output.LogFile)
	setString(&c.LogLevel, f.Output.LogLevel)

	setInt(&c.StatusReady, f.Status.Ready)
	setInt(&c.StatusEmpty, f.Status.Empty)
	setInt(&c.StatusPending, f.Status.Pending)
	setInt(&c.BreakerThreshold, f.Breaker.Threshold)
	if f.Poll.Factor != 0 {
		c.PollFactor = f.Poll.Factor
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"backend.timeout", f.Backend.Timeout, &c.HTTPTimeout},
		{"poll.floor", f.Poll.Floor, &c.PollFloor},
		{"poll.ceiling", f.Poll.Ceiling, &c.PollCeiling},
		{"breaker.cooldown", f.Breaker.Cooldown, &c.BreakerCooldown},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// ToFile converts the configuration back to its TOML layout. Secrets are
// not included.
func (c *ClientConfig) ToFile() *File {
	var f File
	f.Backend.BaseURL = c.BaseURL
	f.Backend.Timeout = c.HTTPTimeout.String()
	f.Backend.Format = c.Format
	f.Poll.Floor = c.PollFloor.String()
	f.Poll.Ceiling = c.PollCeiling.String()
	f.Poll.Factor = c.PollFactor
	f.Status.Ready = c.StatusReady
	f.Status.Empty = c.StatusEmpty
	f.Status.Pending = c.StatusPending
	f.Breaker.Threshold = c.BreakerThreshold
	f.Breaker.Cooldown = c.BreakerCooldown.String()
	f.Server.APIAddr = c.APIAddr
	f.Server.MetricsAddr = c.MetricsAddr
	f.Callback.URL = c.CallbackURL
	f.Output.Dir = c.OutputDir
	f.Output.LogFile = c.LogFile
	f.Output.LogLevel = c.LogLevel
	return &f
}

// MarshalTOML renders the effective configuration.
func (c *ClientConfig) MarshalTOML() ([]byte, error) {
	data, err := toml.Marshal(c.ToFile())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
