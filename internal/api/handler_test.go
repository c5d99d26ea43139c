package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/backend"
	"scrapectl/internal/controller"
	"scrapectl/internal/health"
	"scrapectl/internal/job"
	"scrapectl/internal/poll"
	"scrapectl/internal/retrieve"
	"scrapectl/internal/testutil"
	"scrapectl/pkg/backoff"
)

type fakeController struct {
	mu        sync.Mutex
	job       job.Job
	submitted []job.Params
	submitErr error
	cancelled bool
	artifact  *job.Artifact
	redlErr   error
	redlFmt   job.Format
}

func (f *fakeController) Submit(ctx context.Context, p job.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, p)
	f.job = job.Job{State: job.StateSubmitting, Params: p}
	return nil
}

func (f *fakeController) Cancel(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.job.State.Live() {
		return false, nil
	}
	f.cancelled = true
	f.job.State = job.StateCancelling
	return true, nil
}

func (f *fakeController) Snapshot() job.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job
}

func (f *fakeController) Redownload(ctx context.Context, format job.Format) (*job.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redlFmt = format
	return f.artifact, f.redlErr
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return v
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{health: health.NewChecker(nil)}

	w := httptest.NewRecorder()
	handler.Livez(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp := decode[health.Response](t, w); resp.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", resp.Status)
	}
}

func TestHandler_Readyz_NoBackend(t *testing.T) {
	t.Parallel()
	handler := &Handler{health: health.NewChecker(nil)}

	w := httptest.NewRecorder()
	handler.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decode[health.Response](t, w); resp.Status != health.StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", resp.Status)
	}
}

func TestHandler_SubmitJob(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	handler := NewHandler(ctrl, nil)

	body := `{"site":"bumeran","title":"go","pages":3,"format":"json"}`
	w := httptest.NewRecorder()
	handler.SubmitJob(w, httptest.NewRequest(http.MethodPost, "/v1/job", strings.NewReader(body)))

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body)
	}
	view := decode[JobView](t, w)
	if view.State != job.StateSubmitting || !view.Effects.SubmitDisabled || !view.Effects.CancelEnabled {
		t.Errorf("unexpected view: %+v", view)
	}
	if len(ctrl.submitted) != 1 || ctrl.submitted[0].Pages != 3 {
		t.Errorf("controller not called with params: %+v", ctrl.submitted)
	}
}

func TestHandler_SubmitJob_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		body      string
		submitErr error
		status    int
		field     string
	}{
		{"empty body", "", nil, http.StatusBadRequest, ""},
		{"malformed JSON", `{"site": bumeran}`, nil, http.StatusBadRequest, ""},
		{"validation", `{"site":"computrabajo"}`, apperrors.Validation("title", "title is required for computrabajo"), http.StatusBadRequest, "title"},
		{"controller closed", `{"site":"bumeran"}`, controller.ErrClosed, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := NewHandler(&fakeController{submitErr: tt.submitErr}, nil)
			w := httptest.NewRecorder()
			handler.SubmitJob(w, httptest.NewRequest(http.MethodPost, "/v1/job", bytes.NewBufferString(tt.body)))

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			resp := decode[errorResponse](t, w)
			if resp.Error == "" {
				t.Error("Expected error message")
			}
			if resp.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, resp.Field)
			}
		})
	}
}

func TestHandler_CancelJob(t *testing.T) {
	t.Parallel()

	t.Run("live job", func(t *testing.T) {
		t.Parallel()
		ctrl := &fakeController{job: job.Job{ID: "j1", State: job.StatePolling}}
		w := httptest.NewRecorder()
		NewHandler(ctrl, nil).CancelJob(w, httptest.NewRequest(http.MethodDelete, "/v1/job", nil))

		if w.Code != http.StatusAccepted {
			t.Fatalf("Expected status %d, got %d", http.StatusAccepted, w.Code)
		}
		resp := decode[CancelResponse](t, w)
		if !resp.Cancelled || resp.Job.State != job.StateCancelling {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("nothing live", func(t *testing.T) {
		t.Parallel()
		ctrl := &fakeController{job: job.Job{ID: "j1", State: job.StateCompleted}}
		w := httptest.NewRecorder()
		NewHandler(ctrl, nil).CancelJob(w, httptest.NewRequest(http.MethodDelete, "/v1/job", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
		if resp := decode[CancelResponse](t, w); resp.Cancelled {
			t.Error("cancel of a finished job must be a no-op")
		}
	})
}

func TestHandler_GetArtifact(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{artifact: &job.Artifact{
		JobID:       "j1",
		Format:      job.FormatExcel,
		ContentType: job.MIMEXLSX,
		Data:        []byte("PK\x03\x04"),
		Partial:     true,
	}}

	w := httptest.NewRecorder()
	NewHandler(ctrl, nil).GetArtifact(w, httptest.NewRequest(http.MethodGet, "/v1/job/artifact?fmt=excel", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != job.MIMEXLSX {
		t.Errorf("unexpected content type %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "j1_parcial.xlsx") {
		t.Errorf("unexpected disposition %s", cd)
	}
	if ctrl.redlFmt != job.FormatExcel {
		t.Errorf("format not passed through: %q", ctrl.redlFmt)
	}
}

func TestHandler_GetArtifact_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"bad format", "?fmt=csv", nil, http.StatusBadRequest},
		{"no job", "", apperrors.NotFound("job"), http.StatusNotFound},
		{"not completed", "", apperrors.Conflict("job j1 has no artifact"), http.StatusConflict},
		{"backend failure", "", apperrors.Retrieval("backend.download", context.DeadlineExceeded), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			NewHandler(&fakeController{redlErr: tt.err}, nil).GetArtifact(w, httptest.NewRequest(http.MethodGet, "/v1/job/artifact"+tt.query, nil))
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestJobView(t *testing.T) {
	t.Parallel()
	v := NewJobView(job.Job{
		ID:       "j1",
		State:    job.StateCompleted,
		Backoff:  4250 * time.Millisecond,
		Partial:  true,
		Artifact: &job.Artifact{JobID: "j1", Format: job.FormatJSON, Partial: true},
	})

	if v.BackoffMs != 4250 {
		t.Errorf("BackoffMs = %d, want 4250", v.BackoffMs)
	}
	if v.Filename != "j1_parcial.json" {
		t.Errorf("Filename = %s", v.Filename)
	}
	if !v.Effects.ShowDownload || v.Effects.Status != "Partial results ready" {
		t.Errorf("unexpected effects: %+v", v.Effects)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	router := NewRouter(RouterConfig{
		Controller:    &fakeController{},
		HealthChecker: health.NewChecker(nil),
		APIKey:        "s3cret",
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"probe without auth", "/livez", "", http.StatusOK},
		{"job without auth", "/v1/job", "", http.StatusUnauthorized},
		{"job with wrong key", "/v1/job", "Bearer nope", http.StatusUnauthorized},
		{"job with key", "/v1/job", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Error("Expected a request ID on every response")
			}
		})
	}
}

func TestRouter_EndToEnd(t *testing.T) {
	t.Parallel()
	fb := testutil.NewFakeBackend(t)
	client := backend.New(fb.URL(), 2*time.Second)
	clock := testutil.NewFakeClock()

	ctrl := controller.New(controller.Config{
		Backend:   client,
		Prober:    poll.NewProber(client, poll.DefaultStatusMap()),
		Retriever: retrieve.New(client),
		Backoff:   backoff.Config{Initial: 2500 * time.Millisecond, Max: 15 * time.Second, Factor: 1.7},
		Clock:     clock,
	})
	t.Cleanup(ctrl.Close)

	server := httptest.NewServer(NewRouter(RouterConfig{
		Controller:    ctrl,
		HealthChecker: health.NewChecker(client),
	}))
	defer server.Close()

	fb.ScriptProbes("j1", http.StatusNotFound, http.StatusOK)

	resp, err := http.Post(server.URL+"/v1/job", "application/json",
		strings.NewReader(`{"site":"bumeran","title":"go","pages":1,"format":"json"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	// The first probe runs immediately and reports not ready.
	testutil.MustWaitFor(t, func() bool { return fb.Probes("j1") == 1 && clock.Pending() == 1 })
	clock.Advance(2500 * time.Millisecond)
	testutil.MustWaitFor(t, func() bool { return ctrl.Snapshot().State == job.StateCompleted })

	resp, err = http.Get(server.URL + "/v1/job/artifact")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, job.MIMEJSON) {
		t.Errorf("unexpected content type %s", ct)
	}

	resp, err = http.Get(server.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected ready backend, got %d", resp.StatusCode)
	}
}
