package poll

import (
	"context"
	"log/slog"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/job"
	"scrapectl/pkg/circuitbreaker"
)

// Header issues the metadata-only status request for a job artifact.
type Header interface {
	Head(ctx context.Context, jobID string, format job.Format) (int, error)
}

// Recorder receives one call per completed probe.
type Recorder interface {
	RecordProbe(ctx context.Context, outcome string)
}

// Prober performs single status probes. It never retries.
type Prober struct {
	backend  Header
	statuses StatusMap
	breaker  *circuitbreaker.Breaker
	metrics  Recorder
	logger   *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithBreaker short-circuits probes to TransientError while b is open.
func WithBreaker(b *circuitbreaker.Breaker) ProberOption {
	return func(p *Prober) {
		p.breaker = b
	}
}

// WithRecorder reports every probe outcome to r.
func WithRecorder(r Recorder) ProberOption {
	return func(p *Prober) {
		p.metrics = r
	}
}

// NewProber creates a prober over backend using statuses.
func NewProber(backend Header, statuses StatusMap, opts ...ProberOption) *Prober {
	p := &Prober{
		backend:  backend,
		statuses: statuses,
		logger:   slog.With("component", "prober"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks jobID once. Transport failures, timeouts and unmapped
// statuses yield TransientError. When ctx is cancelled the result is
// meaningless and callers must discard it.
func (p *Prober) Probe(ctx context.Context, jobID string, format job.Format) Outcome {
	if p.breaker != nil && !p.breaker.Allow() {
		p.logger.Debug("Probe short-circuited", "jobId", jobID)
		p.record(ctx, TransientError)
		return TransientError
	}

	status, err := p.backend.Head(ctx, jobID, format)
	if ctx.Err() != nil {
		return TransientError
	}
	if err != nil {
		p.failure()
		p.logger.Debug("Probe failed", "jobId", jobID, "error", apperrors.Transient("probe", err))
		p.record(ctx, TransientError)
		return TransientError
	}

	outcome := p.statuses.Classify(status)
	if outcome == TransientError && status >= 500 {
		p.failure()
	} else if p.breaker != nil {
		p.breaker.RecordSuccess()
	}

	p.logger.Debug("Probe", "jobId", jobID, "status", status, "outcome", outcome.String())
	p.record(ctx, outcome)
	return outcome
}

func (p *Prober) failure() {
	if p.breaker != nil {
		p.breaker.RecordFailure()
	}
}

func (p *Prober) record(ctx context.Context, o Outcome) {
	if p.metrics != nil {
		p.metrics.RecordProbe(ctx, o.String())
	}
}
