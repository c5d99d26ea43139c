// Package api exposes the job controller over a small local HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/controller"
	"scrapectl/internal/health"
	"scrapectl/internal/job"
	"scrapectl/internal/ui"
)

// maxRequestBodySize limits request body to 64KB; a submission is a handful of fields.
const maxRequestBodySize = 64 << 10

// Controller is the part of the job controller the API drives.
type Controller interface {
	Submit(ctx context.Context, p job.Params) error
	Cancel(ctx context.Context) (bool, error)
	Snapshot() job.Job
	Redownload(ctx context.Context, format job.Format) (*job.Artifact, error)
}

// Handler contains HTTP handlers for the job API
type Handler struct {
	ctrl   Controller
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(ctrl Controller, healthChecker *health.Checker) *Handler {
	return &Handler{ctrl: ctrl, health: healthChecker}
}

// JobView is the JSON shape of the current job.
type JobView struct {
	job.Job
	BackoffMs int64      `json:"backoffMs"`
	Error     string     `json:"error,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	Effects   ui.Effects `json:"effects"`
}

// NewJobView projects j for API clients.
func NewJobView(j job.Job) JobView {
	v := JobView{
		Job:       j,
		BackoffMs: j.Backoff.Milliseconds(),
		Error:     j.ErrorString(),
		Effects:   ui.RenderJob(j),
	}
	if j.Artifact != nil {
		v.Filename = j.Artifact.Filename()
	}
	return v
}

// CancelResponse is returned by DELETE /v1/job.
type CancelResponse struct {
	Cancelled bool    `json:"cancelled"`
	Job       JobView `json:"job"`
}

// GetJob handles GET /v1/job
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NewJobView(h.ctrl.Snapshot()))
}

// SubmitJob handles POST /v1/job. A live job is superseded.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var p job.Params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "")
		return
	}

	if err := h.ctrl.Submit(r.Context(), p); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, NewJobView(h.ctrl.Snapshot()))
}

// CancelJob handles DELETE /v1/job. Cancelling when nothing is live is
// not an error; the response reports whether anything was cancelled.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	started, err := h.ctrl.Cancel(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, CancelResponse{Cancelled: started, Job: NewJobView(h.ctrl.Snapshot())})
}

// GetArtifact handles GET /v1/job/artifact?fmt=json|excel and streams the
// completed job's artifact again.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	format := job.Format(r.URL.Query().Get("fmt"))
	if format != "" && format != job.FormatJSON && format != job.FormatExcel {
		h.handleError(w, r, apperrors.Validation("fmt", "fmt must be json or excel"))
		return
	}

	a, err := h.ctrl.Redownload(r.Context(), format)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	contentType := a.ContentType
	if contentType == "" {
		contentType = a.Format.ContentType()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Data); err != nil {
		slog.Warn("Failed to write artifact", "jobId", a.JobID, "error", err)
	}
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 while the scrape backend is unreachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, field string) {
	h.writeJSON(w, status, errorResponse{Error: message, Field: field})
}

// handleError maps controller errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if errors.Is(err, controller.ErrClosed) {
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error(), apperrors.FieldOf(err))
}
