package job

import (
	"slices"

	"scrapectl/pkg/cloudevent"
)

// eventTypes maps states that are announced to their CloudEvent type.
var eventTypes = map[State]string{
	StatePolling:   cloudevent.TypeJobSubmitted,
	StateCompleted: cloudevent.TypeJobCompleted,
	StateEmpty:     cloudevent.TypeJobEmpty,
	StateCancelled: cloudevent.TypeJobCancelled,
	StateFailed:    cloudevent.TypeJobFailed,
}

// EventType returns the CloudEvent type announced when a job enters s.
// The second result is false for states that are not announced.
func EventType(s State) (string, bool) {
	t, ok := eventTypes[s]
	return t, ok
}

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for job transitions.
type EventBuilder struct {
	source string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(source string) *EventBuilder {
	return &EventBuilder{source: source}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType, jobID string, data map[string]any) *cloudevent.CloudEvent {
	return cloudevent.New(eventType, b.source, jobID, data)
}

// BuildTransition creates the event announcing that j entered its current
// state. It returns nil for states that are not announced.
func (b *EventBuilder) BuildTransition(j Job) *cloudevent.CloudEvent {
	eventType, ok := EventType(j.State)
	if !ok {
		return nil
	}

	data := map[string]any{
		"jobId":  j.ID,
		"state":  string(j.State),
		"site":   j.Params.Site,
		"title":  j.Params.Title,
		"pages":  j.Params.Pages,
		"format": string(j.Params.Format),
	}
	if j.Partial {
		data["partial"] = true
	}
	if j.Err != nil {
		data["error"] = j.Err.Error()
	}
	if j.Artifact != nil {
		data["filename"] = j.Artifact.Filename()
		data["bytes"] = len(j.Artifact.Data)
		if j.Artifact.Rows != nil {
			data["rows"] = len(j.Artifact.Rows)
		}
	}
	if !j.SubmittedAt.IsZero() && !j.FinishedAt.IsZero() {
		data["durationMs"] = j.FinishedAt.Sub(j.SubmittedAt).Milliseconds()
	}
	return b.Build(eventType, j.ID, data)
}
