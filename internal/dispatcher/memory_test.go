package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scrapectl/internal/testutil"
	"scrapectl/pkg/cloudevent"
)

func newEvent(dest string) *Event {
	return &Event{
		Payload:     cloudevent.New(cloudevent.TypeJobCompleted, "scrapectl", "job-1", map[string]any{"jobId": "job-1"}),
		Destination: dest,
	}
}

func closeDispatcher(t *testing.T, d *MemoryDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = d.Close(ctx)
}

func TestMemoryDispatcher_Dispatch(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 100, Workers: 2, HTTPTimeout: 5 * time.Second}, nil)
	defer closeDispatcher(t, d)

	if err := d.Dispatch(newEvent(server.URL)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })

	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
	if s := d.Stats(); s.Queued != 1 || s.Destinations != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestMemoryDispatcher_BufferFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 2, Workers: 1, HTTPTimeout: 5 * time.Second}, nil)
	defer closeDispatcher(t, d)

	// One event is held by the worker, two fill the buffer.
	_ = d.Dispatch(newEvent(server.URL))
	testutil.MustWaitFor(t, func() bool { return d.Stats().QueueDepth == 0 })
	_ = d.Dispatch(newEvent(server.URL))
	_ = d.Dispatch(newEvent(server.URL))

	if err := d.Dispatch(newEvent(server.URL)); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
	if d.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", d.Stats().Dropped)
	}
	close(release)
}

func TestMemoryDispatcher_Retry(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 100, Workers: 1, HTTPTimeout: 5 * time.Second}, nil)
	defer closeDispatcher(t, d)

	_ = d.Dispatch(newEvent(server.URL))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if d.Stats().RetriesTotal != 2 {
		t.Errorf("expected 2 retries, got %d", d.Stats().RetriesTotal)
	}
}

func TestMemoryDispatcher_NoRetryOn4xx(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 100, Workers: 1, HTTPTimeout: 5 * time.Second}, nil)
	defer closeDispatcher(t, d)

	_ = d.Dispatch(newEvent(server.URL))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Failed == 1 })

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestMemoryDispatcher_CircuitOpensPerDestination(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{
		BufferSize:       100,
		Workers:          1,
		HTTPTimeout:      5 * time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}, nil)
	defer closeDispatcher(t, d)

	for range 4 {
		_ = d.Dispatch(newEvent(server.URL))
	}

	testutil.MustWaitFor(t, func() bool {
		s := d.Stats()
		return s.Failed == 2 && s.Requeued == 2
	})

	if attempts.Load() != 2 {
		t.Errorf("expected open circuit to block requests, got %d attempts", attempts.Load())
	}
	if d.Stats().BreakersOpen != 1 {
		t.Errorf("expected 1 open breaker, got %d", d.Stats().BreakersOpen)
	}
}

func TestMemoryDispatcher_CloudEventHeaders(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var headers http.Header
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 100, Workers: 1, HTTPTimeout: 5 * time.Second}, nil)
	defer closeDispatcher(t, d)

	ev := newEvent(server.URL)
	ev.SigningKey = "secret-key"
	_ = d.Dispatch(ev)

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })

	mu.Lock()
	defer mu.Unlock()
	if ct := headers.Get("Content-Type"); ct != "application/cloudevents+json" {
		t.Errorf("expected cloudevents content type, got %s", ct)
	}
	if ce := headers.Get("Ce-Type"); ce != cloudevent.TypeJobCompleted {
		t.Errorf("expected Ce-Type %s, got %s", cloudevent.TypeJobCompleted, ce)
	}
	if headers.Get("Ce-Subject") != "job-1" {
		t.Errorf("expected Ce-Subject job-1, got %s", headers.Get("Ce-Subject"))
	}
	sig := headers.Get(cloudevent.SignatureHeader)
	if !strings.HasPrefix(sig, "sha256=") || !cloudevent.Verify(body, "secret-key", sig) {
		t.Errorf("signature %q does not verify", sig)
	}

	var got cloudevent.CloudEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body is not a CloudEvent: %v", err)
	}
	if got.Data["jobId"] != "job-1" {
		t.Errorf("unexpected data: %v", got.Data)
	}
}

func TestMemoryDispatcher_GracefulShutdown(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 100, Workers: 2, HTTPTimeout: 5 * time.Second}, nil)

	for range 10 {
		_ = d.Dispatch(newEvent(server.URL))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if received.Load() != 10 {
		t.Errorf("expected 10 deliveries, got %d", received.Load())
	}
	if err := d.Dispatch(newEvent(server.URL)); err != ErrClosed {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
