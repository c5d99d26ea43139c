// Package cloudevent provides CloudEvents 1.0 envelopes for job lifecycle
// notifications.
package cloudevent

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted for scrape job transitions.
const (
	TypeJobSubmitted  = "io.scrapectl.job.submitted"
	TypeJobCompleted  = "io.scrapectl.job.completed"
	TypeJobEmpty      = "io.scrapectl.job.empty"
	TypeJobCancelled  = "io.scrapectl.job.cancelled"
	TypeJobFailed     = "io.scrapectl.job.failed"
	TypeJobSuperseded = "io.scrapectl.job.superseded"
)

// CloudEvent is a structured-mode CloudEvents 1.0 envelope.
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data"`
}

// New builds an event with a random ID stamped at the current UTC time.
// subject is the backend job ID, which may be empty before submission
// has been acknowledged.
func New(eventType, source, subject string, data map[string]any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}
