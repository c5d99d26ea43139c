// Package job defines the scrape job model shared by the controller, the
// backend client and the UI layers.
package job

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the current job.
type State string

// State constants
const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateRetrieving State = "retrieving"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateEmpty      State = "empty"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// States lists every state in lifecycle order.
var States = []State{
	StateIdle, StateSubmitting, StatePolling, StateRetrieving, StateCancelling,
	StateCompleted, StateEmpty, StateCancelled, StateFailed,
}

// Live reports whether a job in this state is still being driven by the
// controller.
func (s State) Live() bool {
	switch s {
	case StateSubmitting, StatePolling, StateRetrieving, StateCancelling:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state is a final outcome of a job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateEmpty, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// Format selects the artifact representation requested from the backend.
type Format string

const (
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
)

// MIME types the backend serves artifacts with.
const (
	MIMEJSON = "application/json"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Extension returns the file extension for artifacts of this format.
func (f Format) Extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return "json"
}

// ContentType returns the MIME type expected for this format.
func (f Format) ContentType() string {
	if f == FormatExcel {
		return MIMEXLSX
	}
	return MIMEJSON
}

// Sites accepted by the backend.
const (
	SiteBumeran      = "bumeran"
	SiteZonaJobs     = "zonajobs"
	SiteComputrabajo = "computrabajo"
)

// Sites lists the portals in the order the form offers them.
var Sites = []string{SiteBumeran, SiteZonaJobs, SiteComputrabajo}

// Params is the submission payload. It is immutable once submitted.
type Params struct {
	Site     string `json:"site" validate:"required,oneof=bumeran zonajobs computrabajo"`
	Title    string `json:"title" validate:"required_if=Site computrabajo,max=200"`
	Location string `json:"location" validate:"required_if=Site computrabajo,max=200"`
	Pages    int    `json:"pages" validate:"min=1,max=50"`
	Format   Format `json:"format" validate:"oneof=json excel"`
}

// Artifact is a retrieved job result.
type Artifact struct {
	JobID       string           `json:"jobId"`
	Format      Format           `json:"format"`
	ContentType string           `json:"contentType"`
	Data        []byte           `json:"-"`
	Rows        []map[string]any `json:"rows,omitempty"`
	Partial     bool             `json:"partial"`
}

// Filename returns the name the artifact is saved under. Partial artifacts
// carry a "_parcial" suffix so they are never mistaken for full results.
func (a *Artifact) Filename() string {
	if a.Partial {
		return fmt.Sprintf("%s_parcial.%s", a.JobID, a.Format.Extension())
	}
	return fmt.Sprintf("%s.%s", a.JobID, a.Format.Extension())
}

// Job is a point-in-time view of the controller's current job.
type Job struct {
	ID          string        `json:"id,omitempty"`
	State       State         `json:"state"`
	Params      Params        `json:"params"`
	Backoff     time.Duration `json:"backoff"`
	Probes      int           `json:"probes"`
	Partial     bool          `json:"partial"`
	Err         error         `json:"-"`
	SubmittedAt time.Time     `json:"submittedAt,omitzero"`
	FinishedAt  time.Time     `json:"finishedAt,omitzero"`
	Artifact    *Artifact     `json:"artifact,omitempty"`

	// CancelRequested is set once a stop has been sent. A job is stopped
	// at most once.
	CancelRequested bool `json:"cancelRequested,omitempty"`
}

// ErrorString returns the failure cause, or "".
func (j Job) ErrorString() string {
	if j.Err == nil {
		return ""
	}
	return j.Err.Error()
}
