// Package gateway is the single external model call abstraction: submit a
// multimodal prompt, receive raw text plus usage metadata, fail with typed
// errors. The gateway never retries; retry policy belongs to the caller.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/krittin/tallyscan/internal/telemetry"
)

// Image is one page image, already in caller-specified order.
type Image struct {
	Data     []byte
	MIME     string
	Filename string
}

// Request is the assembled prompt payload from the prompt builder.
type Request struct {
	// Instructions is the full extraction instruction text, schema included.
	Instructions string
	// Schema is the literal report schema, kept separately for telemetry.
	Schema json.RawMessage
	// Images are the page images in page order.
	Images []Image
}

// Config holds per-call generation parameters.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// SchemaHash tags the annotation event with the schema version.
	SchemaHash string
	// Span tags the annotation event with the active operation.
	Span telemetry.SpanContext
}

// Response is the raw model reply. Owned by the gateway call and consumed
// once by the parser.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Latency          time.Duration
	Truncated        bool
	Model            string
	RequestID        string
}

// Client submits one multimodal prompt to a hosted model.
type Client interface {
	Submit(ctx context.Context, req *Request, cfg Config) (*Response, error)
	Name() string
}

// truncationLookback is how far back from the end of the reply we look for
// a top-level closing brace/bracket before declaring the text cut off.
const truncationLookback = 24

// detectTruncation reports whether the reply appears cut off by the output
// token budget. finishReason "length" is authoritative when the provider
// reports it; the text heuristics cover providers that do not.
func detectTruncation(text, finishReason string, completionTokens, maxTokens int) bool {
	if finishReason == "length" {
		return true
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if maxTokens > 0 && completionTokens >= maxTokens {
		return true
	}

	// A structured reply should end with } or ] near the end, allowing for
	// a trailing code fence.
	tail := trimmed
	if len(tail) > truncationLookback {
		tail = tail[len(tail)-truncationLookback:]
	}
	if strings.ContainsAny(trimmed, "{[") && !strings.ContainsAny(tail, "}]") {
		return true
	}
	return false
}
