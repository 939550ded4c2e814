package telemetry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Token is an opaque correlation token. Internally it is always held in
// wire form (32 lowercase hex characters). The display form groups the hex
// the way UUIDs are usually printed. Convert only at boundaries; never
// compare tokens across forms or do arithmetic on them.
type Token string

// NewToken returns a fresh random token in wire form.
func NewToken() Token {
	return Token(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// ParseToken accepts either serialization form and normalizes to wire form.
func ParseToken(s string) (Token, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return "", fmt.Errorf("invalid token %q: want 32 hex characters", s)
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid token %q: non-hex character", s)
		}
	}
	return Token(s), nil
}

// Wire returns the bare-hex form sent to the telemetry sink.
func (t Token) Wire() string { return string(t) }

// String returns the grouped display form used in responses and logs.
func (t Token) String() string {
	s := string(t)
	if len(s) != 32 {
		return s
	}
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool { return t == "" }

// SpanContext identifies one logical extraction operation. It is created
// inside the orchestrator while the operation is still active, is read-only
// after creation, and remains usable long after the HTTP request that
// triggered the extraction has completed.
type SpanContext struct {
	OperationID   Token `json:"operation_id"`
	CorrelationID Token `json:"correlation_id"`
}

// NewSpanContext mints a span context for a new operation.
func NewSpanContext() SpanContext {
	return SpanContext{
		OperationID:   NewToken(),
		CorrelationID: NewToken(),
	}
}

// Valid reports whether both identifiers are present.
func (s SpanContext) Valid() bool {
	return !s.OperationID.IsZero() && !s.CorrelationID.IsZero()
}

// ParseSpanContext normalizes externally supplied identifiers, accepting
// either serialization form for each token.
func ParseSpanContext(operationID, correlationID string) (SpanContext, error) {
	op, err := ParseToken(operationID)
	if err != nil {
		return SpanContext{}, fmt.Errorf("operation_id: %w", err)
	}
	corr, err := ParseToken(correlationID)
	if err != nil {
		return SpanContext{}, fmt.Errorf("correlation_id: %w", err)
	}
	return SpanContext{OperationID: op, CorrelationID: corr}, nil
}
