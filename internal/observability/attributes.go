// Package observability provides the client's metrics.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrFrom    = "from"
	attrTo      = "to"
	attrState   = "state"
	attrPartial = "partial"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func fromAttr(state string) attribute.KeyValue {
	return attribute.String(attrFrom, state)
}

func toAttr(state string) attribute.KeyValue {
	return attribute.String(attrTo, state)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func partialAttr(partial bool) attribute.KeyValue {
	return attribute.Bool(attrPartial, partial)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// liveState mirrors job.State.Live without importing the job package.
func liveState(state string) bool {
	switch state {
	case "submitting", "polling", "retrieving", "cancelling":
		return true
	default:
		return false
	}
}

// normalizePath keeps the label set bounded: unknown paths collapse into
// one bucket.
func normalizePath(path string) string {
	switch {
	case path == "/livez", path == "/readyz", path == "/metrics":
		return path
	case path == "/v1/job", path == "/v1/job/artifact":
		return path
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/other"
	default:
		return "other"
	}
}
