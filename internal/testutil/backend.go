package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"scrapectl/internal/job"
)

// Sample artifact bodies served by FakeBackend by default.
var (
	SampleRows  = []byte(`[{"titulo":"Go developer","empresa":"Acme","ubicacion":"Buenos Aires"}]`)
	SampleExcel = []byte("PK\x03\x04 fake xlsx payload")
)

// SubmitHook decides the response to the nth (1-based) submission. It may
// block; ctx is cancelled when the client aborts the request.
type SubmitHook func(ctx context.Context, n int) (jobID string, status int)

// ProbeHook decides the status for the nth (1-based) probe of a job. It may
// block; ctx is cancelled when the client aborts the probe.
type ProbeHook func(ctx context.Context, jobID string, n int) int

type stopResponse struct {
	status      int
	contentType string
	body        []byte
}

// FakeBackend is a scripted scrape backend on an httptest server.
type FakeBackend struct {
	server *httptest.Server

	mu             sync.Mutex
	submits        int
	submitHook     SubmitHook
	payloads       []map[string]any
	probes         map[string]int
	probeScript    map[string][]int
	probeHook      ProbeHook
	downloads      map[string]int
	downloadStatus int
	downloadGate   chan struct{}
	stops          []string
	stop           stopResponse
	healthy        bool
}

// NewFakeBackend starts a backend that accepts submissions as j1, j2, ...
// and answers every probe with 404 until scripted otherwise.
func NewFakeBackend(tb testing.TB) *FakeBackend {
	tb.Helper()
	b := &FakeBackend{
		probes:         make(map[string]int),
		probeScript:    make(map[string][]int),
		downloads:      make(map[string]int),
		downloadStatus: http.StatusOK,
		stop: stopResponse{
			status:      http.StatusOK,
			contentType: "application/json",
			body:        []byte(`{"ok":true}`),
		},
		healthy: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scrape", b.handleSubmit)
	mux.HandleFunc("/api/download/{id}", b.handleDownload)
	mux.HandleFunc("POST /stop-scrape", b.handleStop)
	mux.HandleFunc("GET /health", b.handleHealth)

	b.server = httptest.NewServer(mux)
	tb.Cleanup(b.server.Close)
	return b
}

// URL returns the backend base URL.
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// OnSubmit installs a hook for submissions.
func (b *FakeBackend) OnSubmit(h SubmitHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitHook = h
}

// ScriptProbes sets the statuses returned to successive probes of jobID.
// The last status repeats.
func (b *FakeBackend) ScriptProbes(jobID string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeScript[jobID] = statuses
}

// OnProbe installs a hook that overrides scripted probe statuses.
func (b *FakeBackend) OnProbe(h ProbeHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeHook = h
}

// SetDownloadStatus forces the status of artifact downloads.
func (b *FakeBackend) SetDownloadStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloadStatus = status
}

// HoldDownloads makes artifact downloads wait until release is called or
// the request is abandoned.
func (b *FakeBackend) HoldDownloads() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.downloadGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// SetStopResponse sets the reply to stop requests.
func (b *FakeBackend) SetStopResponse(status int, contentType string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop = stopResponse{status: status, contentType: contentType, body: body}
}

// SetHealthy toggles the /health route between 200 and 503.
func (b *FakeBackend) SetHealthy(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = ok
}

// Submits returns the number of creation requests received.
func (b *FakeBackend) Submits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

// LastPayload returns the most recent decoded creation payload.
func (b *FakeBackend) LastPayload() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.payloads) == 0 {
		return nil
	}
	return b.payloads[len(b.payloads)-1]
}

// Probes returns the number of HEAD probes received for jobID.
func (b *FakeBackend) Probes(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes[jobID]
}

// Downloads returns the number of GET downloads received for jobID.
func (b *FakeBackend) Downloads(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.downloads[jobID]
}

// Stops returns the job IDs of received stop requests, in order.
func (b *FakeBackend) Stops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.stops...)
}

func (b *FakeBackend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.submits++
	n := b.submits
	b.payloads = append(b.payloads, payload)
	hook := b.submitHook
	b.mu.Unlock()

	id, status := fmt.Sprintf("j%d", n), http.StatusOK
	if hook != nil {
		id, status = hook(r.Context(), n)
	}
	if r.Context().Err() != nil {
		return
	}
	if status < 200 || status >= 300 {
		http.Error(w, "Portal no válido", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": id})
}

func (b *FakeBackend) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(b.probeStatus(r.Context(), id))
	case http.MethodGet:
		b.mu.Lock()
		b.downloads[id]++
		status := b.downloadStatus
		gate := b.downloadGate
		b.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if status != http.StatusOK {
			http.Error(w, "download failed", status)
			return
		}
		format := job.Format(strings.ToLower(r.URL.Query().Get("fmt")))
		if format == job.FormatExcel {
			w.Header().Set("Content-Type", job.MIMEXLSX)
			_, _ = w.Write(SampleExcel)
			return
		}
		w.Header().Set("Content-Type", job.MIMEJSON)
		_, _ = w.Write(SampleRows)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *FakeBackend) probeStatus(ctx context.Context, id string) int {
	b.mu.Lock()
	b.probes[id]++
	n := b.probes[id]
	hook := b.probeHook
	script := b.probeScript[id]
	b.mu.Unlock()

	if hook != nil {
		return hook(ctx, id, n)
	}
	if len(script) == 0 {
		return http.StatusNotFound
	}
	return script[min(n, len(script))-1]
}

func (b *FakeBackend) handleStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobID string `json:"job_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.stops = append(b.stops, body.JobID)
	resp := b.stop
	b.mu.Unlock()

	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write(resp.body)
}

func (b *FakeBackend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	ok := b.healthy
	b.mu.Unlock()

	if !ok {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("OK"))
}
