// Package apperrors provides the error taxonomy of the job lifecycle with
// HTTP status mapping for the local control API.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation     = errors.New("validation error")
	ErrSubmission     = errors.New("submission failed")
	ErrTransientProbe = errors.New("transient probe failure")
	ErrRetrieval      = errors.New("retrieval failed")
	ErrCancel         = errors.New("cancel request failed")
	ErrStale          = errors.New("stale response")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "title", "site")
	Op       string // Operation that failed (e.g., "backend.submit")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Submission wraps a failure of the job creation request.
func Submission(op string, cause error) error {
	return wrap(ErrSubmission, op, cause)
}

// Transient wraps a probe failure that the scheduler retries.
func Transient(op string, cause error) error {
	return wrap(ErrTransientProbe, op, cause)
}

// Retrieval wraps a failed artifact download after a Ready signal.
func Retrieval(op string, cause error) error {
	return wrap(ErrRetrieval, op, cause)
}

// Cancel wraps a failed stop request. It is logged, never surfaced.
func Cancel(op string, cause error) error {
	return wrap(ErrCancel, op, cause)
}

// Stale marks a response addressed to a job that is no longer live.
func Stale(jobID string) error {
	return &Error{
		Sentinel: ErrStale,
		Message:  fmt.Sprintf("response for job %q discarded", jobID),
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  resource + " not found",
	}
}

// Conflict reports an operation that the current state does not allow.
func Conflict(reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
	}
}

func wrap(sentinel error, op string, cause error) error {
	msg := sentinel.Error()
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", sentinel, cause)
	}
	return &Error{
		Sentinel: sentinel,
		Message:  msg,
		Op:       op,
		Cause:    cause,
	}
}

// UserVisible reports whether err should be shown to the user. Transient
// probe failures, cancel failures and stale responses only extend the wait
// or are dropped.
func UserVisible(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSubmission) ||
		errors.Is(err, ErrRetrieval)
}

// FieldOf returns the offending field of a validation error, or "".
func FieldOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
