package dispatcher

import "testing"

func TestExtractHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		rawURL   string
		expected string
	}{
		{"standard URL with port", "http://localhost:8080/webhook", "localhost:8080"},
		{"HTTPS URL without port", "https://example.com/callback", "example.com"},
		{"URL with path and query", "http://api.example.com:3000/v1/events?key=123", "api.example.com:3000"},
		{"malformed URL returns raw input", "://invalid", "://invalid"},
		{"empty URL returns empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractHost(tt.rawURL); got != tt.expected {
				t.Errorf("extractHost(%q) = %q, want %q", tt.rawURL, got, tt.expected)
			}
		})
	}
}
