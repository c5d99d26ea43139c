// Package retrieve downloads job artifacts and writes them to disk.
package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/backend"
	"scrapectl/internal/job"
)

// Downloader fetches raw artifact bodies.
type Downloader interface {
	Download(ctx context.Context, jobID string, format job.Format) (*backend.Payload, error)
}

// Retriever fetches completed artifacts. It holds no per-job state, so
// repeated calls for the same job return the same bytes.
type Retriever struct {
	backend Downloader
	logger  *slog.Logger
}

// New creates a retriever over b.
func New(b Downloader) *Retriever {
	return &Retriever{
		backend: b,
		logger:  slog.With("component", "retriever"),
	}
}

// Retrieve downloads the artifact of jobID in format. Failures are
// retrieval errors.
func (r *Retriever) Retrieve(ctx context.Context, jobID string, format job.Format) (*job.Artifact, error) {
	const op = "retrieve"

	payload, err := r.backend.Download(ctx, jobID, format)
	if err != nil {
		return nil, apperrors.Retrieval(op, err)
	}
	if payload.StatusCode == http.StatusNoContent {
		return nil, apperrors.Retrieval(op, errors.New("backend has no rows for this job"))
	}

	a, err := Decode(jobID, format, payload)
	if err != nil {
		return nil, apperrors.Retrieval(op, err)
	}

	r.logger.Debug("Artifact retrieved", "jobId", jobID, "format", format, "bytes", len(a.Data))
	return a, nil
}

// Decode builds an artifact from a raw payload. JSON bodies are parsed
// into rows.
func Decode(jobID string, format job.Format, p *backend.Payload) (*job.Artifact, error) {
	if len(p.Body) == 0 {
		return nil, errors.New("empty artifact body")
	}

	contentType := p.MediaType()
	if contentType == "" {
		contentType = format.ContentType()
	}

	a := &job.Artifact{
		JobID:       jobID,
		Format:      format,
		ContentType: contentType,
		Data:        p.Body,
	}
	if format == job.FormatJSON {
		if err := json.Unmarshal(p.Body, &a.Rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
		if a.Rows == nil {
			a.Rows = []map[string]any{}
		}
	}
	return a, nil
}

// Save writes the artifact into dir under its filename and returns the
// path.
func Save(dir string, a *job.Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, a.Filename())
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
