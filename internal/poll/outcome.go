// Package poll probes a job's artifact status and drives the adaptive
// backoff loop around those probes.
package poll

import "net/http"

// Outcome classifies one status probe.
type Outcome int

const (
	NotReadyYet Outcome = iota
	Ready
	EmptyResult
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case NotReadyYet:
		return "not_ready"
	case Ready:
		return "ready"
	case EmptyResult:
		return "empty"
	case TransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends a polling loop.
func (o Outcome) Terminal() bool {
	return o == Ready || o == EmptyResult
}

// StatusMap assigns backend probe statuses to outcomes. Statuses not in
// the map are transient.
type StatusMap struct {
	Ready   int
	Empty   int
	Pending int
}

// DefaultStatusMap follows the backend's download route: 200 when rows
// exist, 204 when the job finished without rows, 404 while it runs.
func DefaultStatusMap() StatusMap {
	return StatusMap{
		Ready:   http.StatusOK,
		Empty:   http.StatusNoContent,
		Pending: http.StatusNotFound,
	}
}

// Classify maps a status code to an outcome.
func (m StatusMap) Classify(status int) Outcome {
	switch status {
	case m.Ready:
		return Ready
	case m.Empty:
		return EmptyResult
	case m.Pending:
		return NotReadyYet
	default:
		return TransientError
	}
}
