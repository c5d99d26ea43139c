// Package controller drives one scrape job at a time through submission,
// polling, retrieval and cancellation.
//
// All job state is owned by a single event-loop goroutine. Network calls
// run in their own goroutines and post their results back to the loop,
// where they are applied only if they still belong to the current job.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/backend"
	"scrapectl/internal/job"
	"scrapectl/internal/poll"
	"scrapectl/pkg/backoff"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("controller closed")

// Backend is the part of the scrape backend the controller calls directly.
type Backend interface {
	Submit(ctx context.Context, p job.Params) (string, error)
	Stop(ctx context.Context, jobID string) (*backend.Payload, error)
}

// Prober performs a single status probe.
type Prober interface {
	Probe(ctx context.Context, jobID string, format job.Format) poll.Outcome
}

// Retriever downloads a completed artifact.
type Retriever interface {
	Retrieve(ctx context.Context, jobID string, format job.Format) (*job.Artifact, error)
}

// Recorder receives lifecycle measurements.
type Recorder interface {
	RecordTransition(ctx context.Context, from, to string)
	RecordJobFinished(ctx context.Context, state string, partial bool, d time.Duration)
}

// Config wires a Controller.
type Config struct {
	Backend   Backend
	Prober    Prober
	Retriever Retriever

	Backoff       backoff.Config
	Clock         poll.Clock
	DefaultFormat job.Format
	Metrics       Recorder
	Now           func() time.Time
}

// slot is the controller's current job together with the context that
// scopes every outstanding request made for it.
type slot struct {
	job     job.Job
	ctx     context.Context
	cancel  context.CancelFunc
	partial bool
}

// Controller is the job lifecycle state machine.
type Controller struct {
	backend   Backend
	prober    Prober
	retriever Retriever
	metrics   Recorder
	now       func() time.Time
	format    job.Format
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	notifier *notifier

	// Loop-owned.
	sched *poll.Scheduler
	cur   *slot

	lastMu sync.RWMutex
	last   job.Job
}

// New creates a controller and starts its event loop.
func New(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = job.FormatExcel
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:   cfg.Backend,
		prober:    cfg.Prober,
		retriever: cfg.Retriever,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		format:    cfg.DefaultFormat,
		logger:    slog.With("component", "controller"),
		ctx:       ctx,
		cancel:    cancel,
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		notifier:  newNotifier(),
		last:      job.Job{State: job.StateIdle},
	}
	c.sched = poll.NewScheduler(c.prober.Probe, c.post, poll.SchedulerConfig{
		Backoff: cfg.Backoff,
		Clock:   cfg.Clock,
		OnRetry: c.onRetry,
	})

	go c.run()
	return c
}

// Submit validates p and starts a new job, superseding any live one.
// Validation errors are returned before any network call. When Submit
// returns nil the job is in Submitting; later failures end in Failed.
func (c *Controller) Submit(ctx context.Context, p job.Params) error {
	p = job.Normalize(p, c.format)
	if err := job.Validate(p); err != nil {
		return err
	}
	return c.call(ctx, func() { c.submit(p) })
}

// Cancel stops the live job. It reports whether a cancellation started;
// cancelling an idle or finished job is a no-op.
func (c *Controller) Cancel(ctx context.Context) (bool, error) {
	var started bool
	err := c.call(ctx, func() { started = c.cancelCurrent() })
	return started, err
}

// Snapshot returns the current job.
func (c *Controller) Snapshot() job.Job {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last
}

// Redownload fetches the artifact of the completed job again. An empty
// format reuses the submitted one.
func (c *Controller) Redownload(ctx context.Context, format job.Format) (*job.Artifact, error) {
	j := c.Snapshot()
	if j.ID == "" {
		return nil, apperrors.NotFound("job")
	}
	if j.State != job.StateCompleted {
		return nil, apperrors.Conflict("job " + j.ID + " has no artifact (state " + string(j.State) + ")")
	}
	if format == "" {
		format = j.Params.Format
	}

	a, err := c.retriever.Retrieve(ctx, j.ID, format)
	if err != nil {
		return nil, err
	}
	a.Partial = j.Partial
	return a, nil
}

// Subscribe registers l for every subsequent event and returns a function
// that removes it.
func (c *Controller) Subscribe(l Listener) func() {
	return c.notifier.subscribe(l)
}

// Wait blocks until the current job is in a terminal state, ctx ends or
// the controller closes.
func (c *Controller) Wait(ctx context.Context) (job.Job, error) {
	wake := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		j := c.Snapshot()
		if j.State.Terminal() {
			return j, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return j, ctx.Err()
		case <-c.exited:
			return c.Snapshot(), ErrClosed
		}
	}
}

// Close stops the event loop, aborts every outstanding request and waits
// for queued events to be delivered. It must not be called from a
// Listener.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.exited
		c.notifier.close()
	})
}

func (c *Controller) run() {
	defer close(c.exited)
	for {
		select {
		case f := <-c.ops:
			f()
		case <-c.done:
			c.sched.Stop()
			if c.cur != nil {
				c.cur.cancel()
			}
			c.cancel()
			return
		}
	}
}

// post schedules f on the loop. It never blocks after Close.
func (c *Controller) post(f func()) {
	select {
	case c.ops <- f:
	case <-c.done:
	}
}

// call runs f on the loop and waits for it to finish.
func (c *Controller) call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	select {
	case c.ops <- func() { f(); close(finished) }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.exited:
		return ErrClosed
	}
}
