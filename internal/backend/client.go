// Package backend is the HTTP client for the remote scrape backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"scrapectl/internal/apperrors"
	"scrapectl/internal/job"
)

// RequestIDHeader correlates client log lines with backend access logs.
const RequestIDHeader = "X-Request-Id"

// maxBodyBytes bounds artifact downloads.
const maxBodyBytes = 256 << 20

// ErrBodyTooLarge reports a response body over the client's limit. The
// body is never handed on truncated.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Client talks to the scrape backend. It is safe for concurrent use and
// holds no per-job state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
}

// New creates a client with an instrumented transport and the given
// per-request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}),
	})
}

// NewWithHTTPClient wraps an existing HTTP client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
		maxBody:    maxBodyBytes,
	}
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitRequest is the creation payload in the backend's field names.
type SubmitRequest struct {
	Sitio     string `json:"sitio"`
	Cargo     string `json:"cargo"`
	Ubicacion string `json:"ubicacion"`
	Pages     int    `json:"pages"`
	Formato   string `json:"formato"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Payload is a raw backend response body.
type Payload struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// StatusError is a non-2xx backend response with its textual reason.
type StatusError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: backend returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned HTTP %d: %s", e.Op, e.StatusCode, e.Reason)
}

// StatusCode extracts the HTTP status of a StatusError, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Submit creates a scrape job and returns the backend-issued ID. Every
// failure, including a 2xx response without an ID, is a submission error.
func (c *Client) Submit(ctx context.Context, p job.Params) (string, error) {
	const op = "backend.submit"

	body, err := json.Marshal(SubmitRequest{
		Sitio:     p.Site,
		Cargo:     p.Title,
		Ubicacion: p.Location,
		Pages:     p.Pages,
		Formato:   string(p.Format),
	})
	if err != nil {
		return "", apperrors.Submission(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	payload, err := c.do(ctx, op, http.MethodPost, "/api/scrape", nil, body)
	if err != nil {
		return "", apperrors.Submission(op, err)
	}

	var resp submitResponse
	if err := json.Unmarshal(payload.Body, &resp); err != nil {
		return "", apperrors.Submission(op, fmt.Errorf("failed to parse response: %w", err))
	}
	if strings.TrimSpace(resp.JobID) == "" {
		return "", apperrors.Submission(op, errors.New("response carried no job_id"))
	}
	return resp.JobID, nil
}

// Head issues the metadata-only status probe and returns the raw status
// code. Only transport failures are returned as errors.
func (c *Client) Head(ctx context.Context, jobID string, format job.Format) (int, error) {
	req, err := c.newRequest(ctx, http.MethodHead, downloadPath(jobID), url.Values{"fmt": {string(format)}}, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Download fetches the artifact. keep=1 asks the backend to retain it so
// later downloads return the same bytes.
func (c *Client) Download(ctx context.Context, jobID string, format job.Format) (*Payload, error) {
	query := url.Values{"fmt": {string(format)}, "keep": {"1"}}
	return c.do(ctx, "backend.download", http.MethodGet, downloadPath(jobID), query, nil)
}

// Stop asks the backend to stop the job. The response may carry a partial
// artifact or a plain acknowledgement.
func (c *Client) Stop(ctx context.Context, jobID string) (*Payload, error) {
	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, "backend.stop", http.MethodPost, "/stop-scrape", nil, body)
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "backend.health", http.MethodGet, "/health", nil, nil)
	return err
}

func downloadPath(jobID string) string {
	return "/api/download/" + url.PathEscape(jobID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

// do performs the request and returns the body of a 2xx response.
// Non-2xx responses become a *StatusError carrying the response text.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (*Payload, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w (%d bytes)", op, ErrBodyTooLarge, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Reason: reason(data)}
	}

	return &Payload{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// reason extracts a short human message from an error body: the "error"
// field of a JSON object, or the raw text.
func reason(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
