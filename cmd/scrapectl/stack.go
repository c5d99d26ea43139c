package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"scrapectl/internal/backend"
	"scrapectl/internal/config"
	"scrapectl/internal/controller"
	"scrapectl/internal/dispatcher"
	"scrapectl/internal/job"
	"scrapectl/internal/observability"
	"scrapectl/internal/poll"
	"scrapectl/internal/retrieve"
	"scrapectl/pkg/backoff"
	"scrapectl/pkg/circuitbreaker"
)

// stack is the wired controller and everything it depends on.
type stack struct {
	cfg            *config.ClientConfig
	client         *backend.Client
	breaker        *circuitbreaker.Breaker
	ctrl           *controller.Controller
	metrics        *observability.Metrics
	metricsHandler http.Handler

	dispatcher *dispatcher.MemoryDispatcher
	unrelay    func()
}

func newStack(ctx context.Context, cfg *config.ClientConfig) (*stack, error) {
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, err
	}

	client := backend.New(cfg.BaseURL, cfg.HTTPTimeout)
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerCooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			slog.Warn("Backend probe circuit changed", "from", from, "to", to)
		},
	})

	prober := poll.NewProber(client, poll.StatusMap{
		Ready:   cfg.StatusReady,
		Empty:   cfg.StatusEmpty,
		Pending: cfg.StatusPending,
	}, poll.WithBreaker(breaker), poll.WithRecorder(metrics))

	ctrl := controller.New(controller.Config{
		Backend:   client,
		Prober:    prober,
		Retriever: retrieve.New(client),
		Backoff: backoff.Config{
			Initial: cfg.PollFloor,
			Max:     cfg.PollCeiling,
			Factor:  cfg.PollFactor,
		},
		Clock:         poll.RealClock(),
		DefaultFormat: job.Format(cfg.Format),
		Metrics:       metrics,
	})

	s := &stack{
		cfg:            cfg,
		client:         client,
		breaker:        breaker,
		ctrl:           ctrl,
		metrics:        metrics,
		metricsHandler: metricsHandler,
	}

	if cfg.CallbackURL != "" {
		s.dispatcher = dispatcher.NewMemory(dispatcher.ConfigFromClient(cfg), metrics)
		relay := dispatcher.NewRelay(s.dispatcher, dispatcher.RelayConfig{
			Destination: cfg.CallbackURL,
			SigningKey:  cfg.CallbackKey,
		})
		s.unrelay = relay.Listen(ctrl)
		slog.Info("Lifecycle callbacks enabled", "destination", cfg.CallbackURL)
	}

	return s, nil
}

// Close stops the controller, then drains pending callbacks.
func (s *stack) Close() {
	s.ctrl.Close()
	if s.dispatcher != nil {
		s.unrelay()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.dispatcher.Close(ctx); err != nil {
			slog.Warn("Callback dispatcher did not drain", "error", err)
		}
	}
}
