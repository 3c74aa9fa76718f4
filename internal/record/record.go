// Package record defines the normalized telemetry records produced by the
// capture channels and shipped by the dispatcher. All timestamps are
// milliseconds since the Unix epoch to match the collector wire format.
package record

import (
	"fmt"
	"time"
)

// Classification identifies how an error was captured.
type Classification string

const (
	ClassificationJavascriptError    Classification = "javascript_error"
	ClassificationUnhandledRejection Classification = "unhandled_rejection"
	ClassificationNetworkError       Classification = "network_error"
	ClassificationResourceError      Classification = "resource_error"
	ClassificationManualReport       Classification = "manual_report"
)

// Level is the severity attached to captured messages and breadcrumbs.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ErrorRecord is a normalized capture of one failure. SessionID is resolved
// at creation time and Classification is set exactly once.
type ErrorRecord struct {
	Message          string         `json:"message"`
	Stack            string         `json:"stack,omitempty"`
	ComponentContext string         `json:"component_context,omitempty"`
	Timestamp        int64          `json:"timestamp"`
	SourceURL        string         `json:"source_url"`
	UserAgent        string         `json:"user_agent"`
	SessionID        string         `json:"session_id"`
	Classification   Classification `json:"classification"`
}

// MetricRecord is a normalized capture of one performance signal. Value is
// milliseconds for timing metrics and a unitless score for CLS. ID is stable
// per metric instance within a page load; later records for the same ID
// supersede earlier ones in the summary view.
type MetricRecord struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Delta     float64 `json:"delta"`
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
}

// CustomEvent is a free-form application-level telemetry point.
type CustomEvent struct {
	Name       string     `json:"name"`
	Properties Properties `json:"properties,omitempty"`
	Timestamp  int64      `json:"timestamp"`
	SessionID  string     `json:"session_id"`
}

// NetworkErrorRecord captures one failed HTTP call. Status is 0 when no
// response was received (connection or timeout failure).
type NetworkErrorRecord struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	StatusText string `json:"status_text,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
	SessionID  string `json:"session_id"`
}

// Breadcrumb is one entry in the trail of recent application activity kept
// for error context.
type Breadcrumb struct {
	Category  string     `json:"category"`
	Message   string     `json:"message"`
	Level     Level      `json:"level"`
	Timestamp int64      `json:"timestamp"`
	Data      Properties `json:"data,omitempty"`
}

// User identifies the person associated with the session, when the host
// application chooses to attach one.
type User struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Millis converts a time to the wire timestamp representation.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Properties is a string-keyed map of event attributes restricted to
// JSON-safe value kinds. Use Sanitize to coerce arbitrary input.
type Properties map[string]any

// Sanitize copies in, keeping strings, booleans, numbers, nested maps, and
// slices of those. Anything else is flattened to its string form so the
// result always marshals cleanly.
func Sanitize(in map[string]any) Properties {
	if in == nil {
		return nil
	}
	out := make(Properties, len(in))
	for k, v := range in {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case map[string]any:
		return Sanitize(val)
	case Properties:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = sanitizeValue(elem)
		}
		return out
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
