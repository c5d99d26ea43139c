package controller

import (
	"context"
	"time"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/backend"
	"scrapectl/internal/job"
	"scrapectl/internal/poll"
	"scrapectl/internal/retrieve"
)

// Everything in this file runs on the controller loop.

func (c *Controller) submit(p job.Params) {
	if prev := c.cur; prev != nil && prev.job.State.Live() {
		c.supersede(prev)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	s := &slot{
		job: job.Job{
			State:       job.StateIdle,
			Params:      p,
			SubmittedAt: c.now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	c.cur = s
	c.transition(s, job.StateSubmitting)

	go func() {
		id, err := c.backend.Submit(ctx, p)
		c.post(func() { c.onSubmitted(s, id, err) })
	}()
}

// supersede tears down a live job without asking the backend to stop it.
func (c *Controller) supersede(s *slot) {
	c.sched.Stop()
	s.cancel()

	c.logger.Info("Job superseded", "jobId", s.job.ID, "state", s.job.State)
	if c.metrics != nil {
		c.metrics.RecordTransition(c.ctx, string(s.job.State), "superseded")
	}
	c.publish(Event{Kind: Superseded, Job: s.job, Prev: s.job.State})
}

func (c *Controller) isCurrent(s *slot, state job.State) bool {
	return s == c.cur && s.job.State == state
}

func (c *Controller) discard(s *slot, what string) {
	c.logger.Debug("Discarding response", "what", what, "error", apperrors.Stale(s.job.ID))
}

func (c *Controller) onSubmitted(s *slot, id string, err error) {
	if !c.isCurrent(s, job.StateSubmitting) {
		c.discard(s, "submit")
		return
	}
	if err != nil {
		c.fail(s, err)
		return
	}

	s.job.ID = id
	c.sched.Start(s.ctx, id, s.job.Params.Format, func(o poll.Outcome) {
		c.onTerminalOutcome(s, id, o)
	})
	s.job.Backoff = c.sched.Delay()
	c.transition(s, job.StatePolling)
}

func (c *Controller) onRetry(jobID string, o poll.Outcome, delay time.Duration) {
	s := c.cur
	if s == nil || s.job.ID != jobID || s.job.State != job.StatePolling {
		return
	}
	s.job.Probes++
	s.job.Backoff = delay
	c.logger.Debug("Job not ready", "jobId", jobID, "outcome", o.String(), "delay", delay)
	c.publish(Event{Kind: Progress, Job: s.job, Prev: s.job.State, Outcome: o.String(), Delay: delay})
}

func (c *Controller) onTerminalOutcome(s *slot, id string, o poll.Outcome) {
	if !c.isCurrent(s, job.StatePolling) || s.job.ID != id {
		c.discard(s, "probe")
		return
	}
	s.job.Probes++

	switch o {
	case poll.Ready:
		c.transition(s, job.StateRetrieving)
		c.startRetrieve(s)
	case poll.EmptyResult:
		c.finish(s, job.StateEmpty)
	}
}

func (c *Controller) startRetrieve(s *slot) {
	ctx, id, format := s.ctx, s.job.ID, s.job.Params.Format
	go func() {
		a, err := c.retriever.Retrieve(ctx, id, format)
		c.post(func() { c.onRetrieved(ctx, s, a, err) })
	}()
}

// onRetrieved checks the download's own context: a cancel replaces s.ctx,
// and an aborted download may land after a later retrieval has started.
func (c *Controller) onRetrieved(ctx context.Context, s *slot, a *job.Artifact, err error) {
	if !c.isCurrent(s, job.StateRetrieving) || ctx.Err() != nil {
		c.discard(s, "retrieve")
		return
	}
	if err != nil {
		c.fail(s, err)
		return
	}

	a.Partial = s.partial
	s.job.Artifact = a
	s.job.Partial = s.partial
	c.finish(s, job.StateCompleted)
}

func (c *Controller) cancelCurrent() bool {
	s := c.cur
	if s == nil {
		return false
	}

	switch s.job.State {
	case job.StateSubmitting:
		// No ID yet, so there is nothing to stop on the backend.
		s.cancel()
		c.finish(s, job.StateCancelled)
		return true
	case job.StatePolling, job.StateRetrieving:
		if s.job.CancelRequested {
			// Retrieving what the one-shot check found after a stop.
			return false
		}
	default:
		return false
	}

	c.sched.Stop()
	s.cancel()

	// The stop request and the follow-up check get a fresh scope, still
	// cancellable by a superseding submission or Close.
	ctx, cancel := context.WithCancel(c.ctx)
	s.ctx, s.cancel = ctx, cancel
	// A job already retrieving was proven complete by its last probe.
	s.partial = s.job.State == job.StatePolling
	s.job.CancelRequested = true
	c.transition(s, job.StateCancelling)

	id := s.job.ID
	go func() {
		p, err := c.backend.Stop(ctx, id)
		c.post(func() { c.onStopped(s, p, err) })
	}()
	return true
}

func (c *Controller) onStopped(s *slot, p *backend.Payload, err error) {
	if !c.isCurrent(s, job.StateCancelling) {
		c.discard(s, "stop")
		return
	}

	if err != nil {
		c.logger.Warn("Cancel request failed", "jobId", s.job.ID, "error", apperrors.Cancel("backend.stop", err))
	} else if format, ok := p.ArtifactFormat(); ok {
		a, derr := retrieve.Decode(s.job.ID, format, p)
		if derr == nil {
			a.Partial = s.partial
			s.job.Artifact = a
			s.job.Partial = s.partial
			c.finish(s, job.StateCompleted)
			return
		}
		c.logger.Warn("Discarding undecodable partial artifact", "jobId", s.job.ID, "error", derr)
	}

	// One best-effort look for a partial artifact. It never resumes polling.
	ctx, id, format := s.ctx, s.job.ID, s.job.Params.Format
	go func() {
		o := c.prober.Probe(ctx, id, format)
		c.post(func() { c.onPartialProbe(ctx, s, o) })
	}()
}

func (c *Controller) onPartialProbe(ctx context.Context, s *slot, o poll.Outcome) {
	if !c.isCurrent(s, job.StateCancelling) || ctx.Err() != nil {
		c.discard(s, "partial probe")
		return
	}
	s.job.Probes++

	if o == poll.Ready {
		c.transition(s, job.StateRetrieving)
		c.startRetrieve(s)
		return
	}
	c.finish(s, job.StateCancelled)
}

func (c *Controller) fail(s *slot, err error) {
	s.job.Err = err
	c.logger.Error("Job failed", "jobId", s.job.ID, "error", err)
	c.finish(s, job.StateFailed)
}

func (c *Controller) finish(s *slot, state job.State) {
	s.job.FinishedAt = c.now()
	c.transition(s, state)
	s.cancel()

	if c.metrics != nil {
		c.metrics.RecordJobFinished(c.ctx, string(state), s.job.Partial, s.job.FinishedAt.Sub(s.job.SubmittedAt))
	}
}

func (c *Controller) transition(s *slot, to job.State) {
	from := s.job.State
	s.job.State = to

	c.logger.Info("Job state changed", "jobId", s.job.ID, "from", from, "to", to)
	if c.metrics != nil {
		c.metrics.RecordTransition(c.ctx, string(from), string(to))
	}
	c.publish(Event{Kind: Transition, Job: s.job, Prev: from})
}

func (c *Controller) publish(ev Event) {
	if ev.Kind != Superseded {
		c.lastMu.Lock()
		c.last = ev.Job
		c.lastMu.Unlock()
	}
	c.notifier.publish(ev)
}
