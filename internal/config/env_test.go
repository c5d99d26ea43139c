package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	if got := GetEnv("SCRAPECTL_TEST_UNSET", "default"); got != "default" {
		t.Errorf("Expected 'default', got %q", got)
	}

	t.Setenv("SCRAPECTL_TEST_GET_ENV", "custom")
	if got := GetEnv("SCRAPECTL_TEST_GET_ENV", "default"); got != "custom" {
		t.Errorf("Expected 'custom', got %q", got)
	}
}

func TestTypedEnvHelpers(t *testing.T) {
	t.Setenv("SCRAPECTL_TEST_INT", "123")
	t.Setenv("SCRAPECTL_TEST_BAD_INT", "not-a-number")
	t.Setenv("SCRAPECTL_TEST_FLOAT", "1.5")
	t.Setenv("SCRAPECTL_TEST_BAD_FLOAT", "x1.5")
	t.Setenv("SCRAPECTL_TEST_DURATION", "100ms")
	t.Setenv("SCRAPECTL_TEST_BAD_DURATION", "soon")

	if got := GetIntEnv("SCRAPECTL_TEST_INT", 42); got != 123 {
		t.Errorf("GetIntEnv = %d, want 123", got)
	}
	if got := GetIntEnv("SCRAPECTL_TEST_BAD_INT", 42); got != 42 {
		t.Errorf("GetIntEnv(invalid) = %d, want 42", got)
	}
	if got := GetFloatEnv("SCRAPECTL_TEST_FLOAT", 1.7); got != 1.5 {
		t.Errorf("GetFloatEnv = %v, want 1.5", got)
	}
	if got := GetFloatEnv("SCRAPECTL_TEST_BAD_FLOAT", 1.7); got != 1.7 {
		t.Errorf("GetFloatEnv(invalid) = %v, want 1.7", got)
	}
	if got := GetDurationEnv("SCRAPECTL_TEST_DURATION", time.Second); got != 100*time.Millisecond {
		t.Errorf("GetDurationEnv = %v, want 100ms", got)
	}
	if got := GetDurationEnv("SCRAPECTL_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("GetDurationEnv(invalid) = %v, want 1s", got)
	}
}

func TestGetSecretFile(t *testing.T) {
	if got := GetSecretFile(""); got != "" {
		t.Errorf("Expected empty string for empty path, got %q", got)
	}
	if got := GetSecretFile("/nonexistent/path/to/secret"); got != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", got)
	}

	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	if got := GetSecretFile(path); got != "my-secret-value" {
		t.Errorf("Expected 'my-secret-value', got %q", got)
	}
}
