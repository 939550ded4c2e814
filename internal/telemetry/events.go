// Package telemetry sends annotation and evaluation events to an external
// sink. The sink is consumed only through an accept/reject contract; nothing
// in the pipeline depends on sink response shapes.
package telemetry

import "time"

// MetricKind distinguishes the two value shapes the sink accepts.
type MetricKind string

const (
	MetricScore       MetricKind = "score"
	MetricCategorical MetricKind = "categorical"
)

// AnnotationEvent records usage and timing for one model call. Annotation
// events are observability only and never affect control flow.
type AnnotationEvent struct {
	ID   string      `json:"id"`
	Span SpanContext `json:"span_context"`

	// Request parameters
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	ImageCount  int      `json:"image_count"`
	SchemaHash  string   `json:"schema_hash,omitempty"`

	// Usage and timing
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	LatencyMs        int `json:"latency_ms"`

	// Outcome
	Truncated bool   `json:"truncated"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EvaluationEvent records one judgment against an operation, keyed by span
// context. Kind selects whether Score or Category carries the value; the
// other field may still be populated as supplementary data (the validator
// reports a categorical verdict plus a sub-check score in one event).
type EvaluationEvent struct {
	ID   string      `json:"id"`
	Span SpanContext `json:"span_context"`

	Label    string     `json:"label"`
	Kind     MetricKind `json:"kind"`
	Score    *float64   `json:"score,omitempty"`
	Category string     `json:"category,omitempty"`

	// Reasoning carries human-readable explanation, including user free
	// text. Free text is never folded into an opaque tag.
	Reasoning string `json:"reasoning,omitempty"`

	// Submitter attribution for feedback events
	SubmitterID string `json:"submitter_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
