package api

import (
	"net/http"

	"scrapectl/internal/health"
	"scrapectl/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Controller     Controller
	HealthChecker  *health.Checker
	Metrics        *observability.Metrics
	MetricsHandler http.Handler // served on /metrics when non-nil
	APIKey         string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Controller, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Probes - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Job endpoints - auth required
	auth := AuthMiddleware(cfg.APIKey)
	mux.Handle("GET /v1/job", auth(http.HandlerFunc(handler.GetJob)))
	mux.Handle("POST /v1/job", auth(http.HandlerFunc(handler.SubmitJob)))
	mux.Handle("DELETE /v1/job", auth(http.HandlerFunc(handler.CancelJob)))
	mux.Handle("GET /v1/job/artifact", auth(http.HandlerFunc(handler.GetArtifact)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = RequestIDMiddleware()(h)
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
