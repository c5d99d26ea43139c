package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scrapectl/internal/api"
	"scrapectl/internal/config"
	"scrapectl/internal/health"
)

func newServeCmd(cfg *config.ClientConfig) *cobra.Command {
	var addr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the controller over a local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags win over the loaded config only when given.
			if cmd.Flags().Changed("addr") {
				cfg.APIAddr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			setupLogging(cfg, cmd.ErrOrStderr())
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "API listen address (default from config, :8080)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address, empty serves /metrics on the API")
	return cmd
}

func serve(ctx context.Context, cfg *config.ClientConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	healthChecker := health.NewChecker(s.client, health.WithBreaker(s.breaker))

	routerCfg := api.RouterConfig{
		Controller:    s.ctrl,
		HealthChecker: healthChecker,
		Metrics:       s.metrics,
		APIKey:        cfg.APIKey,
	}
	if cfg.MetricsAddr == "" {
		routerCfg.MetricsHandler = s.metricsHandler
	}

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no SCRAPECTL_API_KEY_FILE configured")
	}

	servers := []*http.Server{{
		Addr:         cfg.APIAddr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // artifact downloads
		IdleTimeout:  60 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", s.metricsHandler)
		servers = append(servers, &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	serverErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			slog.Info("Starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server shutdown error", "addr", srv.Addr, "error", err)
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	case <-ctx.Done():
	}

	// Fail readiness first so nothing new is routed here while draining.
	healthChecker.SetShuttingDown()
	shutdown(15 * time.Second)
	slog.Info("Shutdown complete")
	return nil
}
