package poll

import (
	"context"
	"log/slog"
	"time"

	"scrapectl/internal/job"
	"scrapectl/pkg/backoff"
)

// ProbeFunc performs one probe. *Prober.Probe satisfies it.
type ProbeFunc func(ctx context.Context, jobID string, format job.Format) Outcome

// Poster runs f on the owner's event loop. It must not block once the
// loop has exited.
type Poster func(f func())

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Backoff backoff.Config
	Clock   Clock

	// OnRetry, when set, runs on the owner loop each time a non-terminal
	// outcome schedules another probe after delay.
	OnRetry func(jobID string, outcome Outcome, delay time.Duration)
}

// Scheduler owns at most one pending timer and one in-flight probe for a
// single job. Start and Stop must be called from the owner's event loop;
// timer fires and probe results are posted back to that loop and applied
// only if they still belong to the current run.
type Scheduler struct {
	probe   ProbeFunc
	post    Poster
	clock   Clock
	policy  *backoff.Policy
	onRetry func(string, Outcome, time.Duration)
	logger  *slog.Logger

	// Owner-loop state.
	token     uint64
	active    bool
	jobID     string
	format    job.Format
	ctx       context.Context
	onOutcome func(Outcome)
	stopTimer func() bool
	abort     context.CancelFunc
}

// NewScheduler creates a scheduler that probes with probe and delivers
// every callback through post.
func NewScheduler(probe ProbeFunc, post Poster, cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	return &Scheduler{
		probe:   probe,
		post:    post,
		clock:   cfg.Clock,
		policy:  backoff.NewPolicy(cfg.Backoff),
		onRetry: cfg.OnRetry,
		logger:  slog.With("component", "scheduler"),
	}
}

// Start begins a polling loop for jobID, stopping any previous one. The
// first probe is issued immediately; the delay starts at the floor.
// onOutcome receives the terminal outcome (Ready or EmptyResult) on the
// owner loop. ctx scopes every probe of the loop.
func (s *Scheduler) Start(ctx context.Context, jobID string, format job.Format, onOutcome func(Outcome)) {
	s.Stop()

	s.token++
	s.active = true
	s.jobID = jobID
	s.format = format
	s.ctx = ctx
	s.onOutcome = onOutcome
	s.policy.Reset()

	s.logger.Debug("Polling started", "jobId", jobID)
	s.issue(s.token)
}

// Stop cancels the pending timer and aborts the in-flight probe. Nothing
// from the stopped loop is applied afterwards. Idempotent.
func (s *Scheduler) Stop() {
	s.token++
	if !s.active {
		return
	}
	s.active = false

	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	s.onOutcome = nil
	s.logger.Debug("Polling stopped", "jobId", s.jobID)
}

// Active reports whether a loop is running.
func (s *Scheduler) Active() bool {
	return s.active
}

// Delay returns the delay the next retry would wait.
func (s *Scheduler) Delay() time.Duration {
	return s.policy.Current()
}

func (s *Scheduler) current(token uint64) bool {
	return s.active && token == s.token
}

func (s *Scheduler) issue(token uint64) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.abort = cancel
	jobID, format := s.jobID, s.format

	go func() {
		outcome := s.probe(ctx, jobID, format)
		aborted := ctx.Err() != nil
		s.post(func() {
			s.deliver(token, outcome, aborted)
		})
	}()
}

func (s *Scheduler) deliver(token uint64, outcome Outcome, aborted bool) {
	if !s.current(token) || aborted {
		s.logger.Debug("Discarding probe result", "jobId", s.jobID, "outcome", outcome.String())
		return
	}
	s.abort()
	s.abort = nil

	if outcome.Terminal() {
		onOutcome := s.onOutcome
		s.active = false
		s.onOutcome = nil
		s.token++
		onOutcome(outcome)
		return
	}

	delay := s.policy.Next()
	s.stopTimer = s.clock.AfterFunc(delay, func() {
		s.post(func() {
			s.fire(token)
		})
	})
	if s.onRetry != nil {
		s.onRetry(s.jobID, outcome, delay)
	}
}

func (s *Scheduler) fire(token uint64) {
	if !s.current(token) {
		return
	}
	s.stopTimer = nil
	s.issue(token)
}
