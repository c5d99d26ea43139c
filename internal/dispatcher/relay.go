package dispatcher

import (
	"log/slog"

	"scrapectl/internal/controller"
	"scrapectl/internal/job"
	"scrapectl/pkg/cloudevent"
)

// RelayConfig selects where lifecycle events go.
type RelayConfig struct {
	Destination string
	SigningKey  string
	Source      string   // CloudEvent source, default "scrapectl"
	Events      []string // event types to forward, empty = all
}

// Relay turns controller events into CloudEvents and queues them on a
// Dispatcher. Its Handle method is a controller.Listener.
type Relay struct {
	dispatcher Dispatcher
	builder    *job.EventBuilder
	cfg        RelayConfig
	logger     *slog.Logger
}

// NewRelay creates a relay for cfg.Destination.
func NewRelay(d Dispatcher, cfg RelayConfig) *Relay {
	if cfg.Source == "" {
		cfg.Source = "scrapectl"
	}
	return &Relay{
		dispatcher: d,
		builder:    job.NewEventBuilder(cfg.Source),
		cfg:        cfg,
		logger:     slog.With("component", "relay"),
	}
}

// Handle forwards ev when it maps to an announced event type.
func (r *Relay) Handle(ev controller.Event) {
	var payload *cloudevent.CloudEvent
	switch ev.Kind {
	case controller.Transition:
		payload = r.builder.BuildTransition(ev.Job)
	case controller.Superseded:
		payload = r.builder.Build(cloudevent.TypeJobSuperseded, ev.Job.ID, map[string]any{
			"jobId": ev.Job.ID,
			"state": string(ev.Prev),
			"site":  ev.Job.Params.Site,
		})
	}
	if payload == nil || !job.FilteredEvents(payload.Type, r.cfg.Events) {
		return
	}

	err := r.dispatcher.Dispatch(&Event{
		Payload:     payload,
		Destination: r.cfg.Destination,
		SigningKey:  r.cfg.SigningKey,
	})
	if err != nil {
		r.logger.Warn("Lifecycle event not queued", "type", payload.Type, "jobId", ev.Job.ID, "error", err)
	}
}

// Listen subscribes the relay to c and returns the unsubscribe function.
func (r *Relay) Listen(c *controller.Controller) func() {
	return c.Subscribe(r.Handle)
}
