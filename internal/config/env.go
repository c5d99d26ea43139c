package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr parses key with parse. Unset keys return def silently; values
// that fail to parse return def and are logged so a typo is visible.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Ignoring unparsable environment value", "key", key, "value", raw, "error", err)
		return def
	}
	return v
}

// GetEnv returns the value of key, or def when unset or blank.
func GetEnv(key, def string) string {
	return envOr(key, def, func(s string) (string, error) { return s, nil })
}

// GetIntEnv returns key as an int.
func GetIntEnv(key string, def int) int {
	return envOr(key, def, strconv.Atoi)
}

// GetDurationEnv returns key as a time.Duration ("2500ms", "15s").
func GetDurationEnv(key string, def time.Duration) time.Duration {
	return envOr(key, def, time.ParseDuration)
}

// GetFloatEnv returns key as a float64.
func GetFloatEnv(key string, def float64) float64 {
	return envOr(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// GetSecretFile returns the trimmed contents of the file at path, or ""
// when path is empty or unreadable.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Cannot read secret file", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
