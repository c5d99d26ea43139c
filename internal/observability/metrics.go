package observability

import (
	"context"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the client's instruments:
// - Local API: latency, traffic and errors of the control API
// - Jobs: state transitions, probe outcomes, end-to-end duration
// - Callbacks: lifecycle event delivery
type Metrics struct {
	meter metric.Meter

	// Local API
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job lifecycle
	JobTransitions metric.Int64Counter
	JobsFinished   metric.Int64Counter
	JobDuration    metric.Float64Histogram
	JobsActive     metric.Int64UpDownCounter
	ProbesTotal    metric.Int64Counter

	// Callback dispatcher
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// NewMetrics creates the instruments on a private Prometheus registry and
// returns the handler that serves it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m := &Metrics{meter: provider.Meter("scrapectl")}
	if err := m.init(); err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) init() error {
	var err error
	meter := m.meter

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Local API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of local API requests"),
	); err != nil {
		return err
	}
	if m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of local API errors (4xx and 5xx)"),
	); err != nil {
		return err
	}

	if m.JobTransitions, err = meter.Int64Counter(
		"scrape_job_transitions_total",
		metric.WithDescription("State transitions of scrape jobs"),
	); err != nil {
		return err
	}
	if m.JobsFinished, err = meter.Int64Counter(
		"scrape_jobs_finished_total",
		metric.WithDescription("Scrape jobs that reached a terminal state"),
	); err != nil {
		return err
	}
	if m.JobDuration, err = meter.Float64Histogram(
		"scrape_job_duration_seconds",
		metric.WithDescription("Time from submission to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	); err != nil {
		return err
	}
	if m.JobsActive, err = meter.Int64UpDownCounter(
		"scrape_jobs_active",
		metric.WithDescription("Jobs currently being driven (0 or 1)"),
	); err != nil {
		return err
	}
	if m.ProbesTotal, err = meter.Int64Counter(
		"scrape_probes_total",
		metric.WithDescription("Status probes by outcome"),
	); err != nil {
		return err
	}

	if m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return err
	}
	if m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	); err != nil {
		return err
	}
	if m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	); err != nil {
		return err
	}
	if m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	); err != nil {
		return err
	}
	if m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	); err != nil {
		return err
	}
	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue"),
	)
	return err
}

// RecordHTTPRequest records local API request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordTransition records a job state change and tracks the active gauge.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.JobTransitions.Add(ctx, 1, metric.WithAttributes(fromAttr(from), toAttr(to)))

	wasLive, isLive := liveState(from), liveState(to)
	switch {
	case !wasLive && isLive:
		m.JobsActive.Add(ctx, 1)
	case wasLive && !isLive:
		m.JobsActive.Add(ctx, -1)
	}
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(ctx context.Context, state string, partial bool, d time.Duration) {
	attrs := metric.WithAttributes(stateAttr(state), partialAttr(partial))
	m.JobsFinished.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordProbe records one status probe outcome.
func (m *Metrics) RecordProbe(ctx context.Context, outcome string) {
	m.ProbesTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
