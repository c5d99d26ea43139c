package dispatcher

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scrapectl/pkg/circuitbreaker"
	"scrapectl/pkg/cloudevent"
)

// MemoryDispatcher delivers lifecycle callbacks from a bounded in-memory
// queue. A full queue drops the event; a destination whose circuit is
// open gets its events parked for one cooldown and retried.
type MemoryDispatcher struct {
	queue    chan *Event
	sender   *cloudevent.Sender
	config   MemoryConfig
	logger   *slog.Logger
	metrics  MetricsRecorder
	breakers *breakerSet

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// MetricsRecorder receives delivery outcomes. May be nil.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
	RecordDispatcherRequeued(ctx context.Context)
	RecordDispatcherQueueSize(ctx context.Context, size int64)
}

// NewMemory starts cfg.Workers delivery goroutines.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) *MemoryDispatcher {
	cfg = cfg.withDefaults()
	logger := slog.With("component", "dispatcher")

	d := &MemoryDispatcher{
		queue:    make(chan *Event, cfg.BufferSize),
		sender:   cloudevent.NewSender(cfg.HTTPTimeout),
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		breakers: newBreakerSet(cfg.BreakerThreshold, cfg.BreakerCooldown, logger),
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	if metrics != nil {
		go d.reportQueueSize()
	}

	d.logger.Info("Callback dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

func (d *MemoryDispatcher) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.metrics.RecordDispatcherQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// Dispatch enqueues event without blocking.
func (d *MemoryDispatcher) Dispatch(event *Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	select {
	case d.queue <- event:
		d.queued.Add(1)
		return nil
	default:
		d.drop(event, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns a point-in-time copy of the counters.
func (d *MemoryDispatcher) Stats() Stats {
	destinations, open := d.breakers.counts()
	return Stats{
		QueueDepth:   len(d.queue),
		Queued:       d.queued.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		Requeued:     d.requeued.Load(),
		RetriesTotal: d.retriesTotal.Load(),
		Destinations: destinations,
		BreakersOpen: open,
	}
}

// Close stops accepting events and waits for the workers to drain the
// queue, or for ctx to expire.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}
	d.logger.Info("Callback dispatcher draining", "queued", len(d.queue))
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Callback dispatcher stopped",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Callback dispatcher drain timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.shutdown:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *MemoryDispatcher) deliver(event *Event) {
	host := extractHost(event.Destination)
	breaker := d.breakers.get(host)
	if !breaker.Allow() {
		d.requeue(event, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.send(ctx, event)
	if err != nil {
		breaker.RecordFailure()
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Callback delivery failed", "destination", host, "type", event.Payload.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
}

// send posts the event, retrying server and network errors with
// exponential backoff. A 4xx answer is final.
func (d *MemoryDispatcher) send(ctx context.Context, event *Event) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultInitialBackoff
	policy.MaxInterval = defaultMaxBackoff
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	op := func() error {
		err := d.sender.Send(ctx, event.Destination, event.Payload, event.SigningKey)
		if err != nil && cloudevent.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, defaultMaxRetries), ctx)
	return backoff.RetryNotify(op, retries, func(err error, wait time.Duration) {
		d.retriesTotal.Add(1)
		d.logger.Debug("Retrying callback", "type", event.Payload.Type, "wait", wait, "error", err)
	})
}

func (d *MemoryDispatcher) drop(event *Event, reason string) {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDropped(context.Background())
	}
	d.logger.Warn("Callback dropped",
		"reason", reason,
		"destination", extractHost(event.Destination),
		"type", event.Payload.Type,
	)
}

// requeue parks event for one breaker cooldown before putting it back.
func (d *MemoryDispatcher) requeue(event *Event, host string) {
	if event.Requeues >= defaultMaxRequeues {
		d.drop(event, "max requeues reached")
		return
	}
	event.Requeues++
	d.requeued.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherRequeued(context.Background())
	}

	go func(requeues int) {
		timer := time.NewTimer(d.config.BreakerCooldown)
		defer timer.Stop()
		select {
		case <-d.shutdown:
			return
		case <-timer.C:
		}
		select {
		case d.queue <- event:
			d.logger.Debug("Callback requeued", "destination", host, "requeues", requeues)
		case <-d.shutdown:
		default:
			d.drop(event, "buffer full on requeue")
		}
	}(event.Requeues)
}

// breakerSet keeps one circuit per callback host so a dead receiver does
// not starve the others.
type breakerSet struct {
	mu        sync.Mutex
	byHost    map[string]*circuitbreaker.Breaker
	threshold int
	cooldown  time.Duration
	logger    *slog.Logger
}

func newBreakerSet(threshold int, cooldown time.Duration, logger *slog.Logger) *breakerSet {
	return &breakerSet{
		byHost:    make(map[string]*circuitbreaker.Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
	}
}

func (s *breakerSet) get(host string) *circuitbreaker.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.byHost[host]; ok {
		return b
	}
	b := circuitbreaker.New(circuitbreaker.Config{
		Threshold: s.threshold,
		Cooldown:  s.cooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			s.logger.Info("Callback circuit changed", "destination", host, "from", from, "to", to)
		},
	})
	s.byHost[host] = b
	return b
}

func (s *breakerSet) counts() (hosts, open int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.byHost {
		if b.State() == circuitbreaker.Open {
			open++
		}
	}
	return len(s.byHost), open
}

// extractHost keys breakers by URL host; unparsable URLs key by themselves.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
