// Package endpoints defines the HTTP API surface. Each endpoint is both a
// route and a CLI command (see internal/api.Endpoint).
package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/telemetry"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},

		&ExtractEndpoint{},
		&FeedbackEndpoint{},

		&ListSchemasEndpoint{},
		&GetSchemaEndpoint{},

		&LastOperationEndpoint{},
	}
}

// ErrorResponse is the JSON error body. Code carries the typed error code
// for failures that have one (e.g. TRUNCATED_RESPONSE).
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SpanContextBody is the display-form span context used on the HTTP
// boundary. Wire form stays internal to the telemetry client.
type SpanContextBody struct {
	OperationID   string `json:"operation_id"`
	CorrelationID string `json:"correlation_id"`
}

func spanBody(span telemetry.SpanContext) SpanContextBody {
	return SpanContextBody{
		OperationID:   span.OperationID.String(),
		CorrelationID: span.CorrelationID.String(),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeTypedError writes a JSON error response with a typed code.
func writeTypedError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
