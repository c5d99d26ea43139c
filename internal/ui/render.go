// Package ui projects controller state onto interactive affordances.
package ui

import (
	"errors"
	"fmt"

	"scrapectl/internal/job"
)

// Tone is the visual weight of the status line.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneBusy    Tone = "busy"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
)

// Effects is the complete set of affordances for one state.
type Effects struct {
	SubmitDisabled bool   `json:"submitDisabled"`
	ShowProgress   bool   `json:"showProgress"`
	CancelEnabled  bool   `json:"cancelEnabled"`
	ShowDownload   bool   `json:"showDownload"`
	Status         string `json:"status"`
	Tone           Tone   `json:"tone"`
}

var statusLines = map[job.State]struct {
	text string
	tone Tone
}{
	job.StateIdle:       {"Ready", ToneNeutral},
	job.StateSubmitting: {"Submitting search…", ToneBusy},
	job.StatePolling:    {"Scraping in progress…", ToneBusy},
	job.StateRetrieving: {"Downloading results…", ToneBusy},
	job.StateCancelling: {"Cancelling…", ToneBusy},
	job.StateCompleted:  {"Results ready", ToneSuccess},
	job.StateEmpty:      {"No results found", ToneWarning},
	job.StateCancelled:  {"Cancelled", ToneWarning},
	job.StateFailed:     {"Failed", ToneError},
}

// Render returns the affordances for state.
func Render(state job.State) Effects {
	line, ok := statusLines[state]
	if !ok {
		line.text, line.tone = string(state), ToneNeutral
	}

	return Effects{
		SubmitDisabled: state.Live(),
		ShowProgress:   state.Live(),
		CancelEnabled:  state == job.StateSubmitting || state == job.StatePolling || state == job.StateRetrieving,
		ShowDownload:   state == job.StateCompleted,
		Status:         line.text,
		Tone:           line.tone,
	}
}

// RenderJob refines Render with job details: partial results and the
// failure cause.
func RenderJob(j job.Job) Effects {
	e := Render(j.State)
	if j.CancelRequested {
		e.CancelEnabled = false
	}
	switch {
	case j.State == job.StateCompleted && j.Partial:
		e.Status = "Partial results ready"
		e.Tone = ToneWarning
	case j.State == job.StateFailed && j.Err != nil:
		e.Status = "Failed: " + j.Err.Error()
	}
	return e
}

// Validate reports contradictory affordances.
func (e Effects) Validate() error {
	var errs []error
	if e.CancelEnabled && !e.SubmitDisabled {
		errs = append(errs, errors.New("cancel enabled while submission is available"))
	}
	if e.CancelEnabled && !e.ShowProgress {
		errs = append(errs, errors.New("cancel enabled without progress"))
	}
	if e.ShowDownload && e.ShowProgress {
		errs = append(errs, errors.New("download shown while work is in progress"))
	}
	if e.ShowDownload && e.SubmitDisabled {
		errs = append(errs, errors.New("download shown while submission is locked"))
	}
	if e.ShowProgress != e.SubmitDisabled {
		errs = append(errs, fmt.Errorf("progress=%v disagrees with submit disabled=%v", e.ShowProgress, e.SubmitDisabled))
	}
	return errors.Join(errs...)
}
