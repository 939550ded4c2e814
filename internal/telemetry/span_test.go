package telemetry

import (
	"strings"
	"testing"
)

func TestToken(t *testing.T) {
	t.Run("new token is wire form", func(t *testing.T) {
		tok := NewToken()
		if len(tok.Wire()) != 32 {
			t.Errorf("wire form length = %d, want 32", len(tok.Wire()))
		}
		if strings.Contains(tok.Wire(), "-") {
			t.Error("wire form must not contain separators")
		}
	})

	t.Run("display form is grouped", func(t *testing.T) {
		tok, err := ParseToken("0123456789abcdef0123456789abcdef")
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		want := "01234567-89ab-cdef-0123-456789abcdef"
		if tok.String() != want {
			t.Errorf("String() = %q, want %q", tok.String(), want)
		}
	})

	t.Run("parse accepts both forms", func(t *testing.T) {
		wire, err := ParseToken("0123456789abcdef0123456789abcdef")
		if err != nil {
			t.Fatalf("wire form rejected: %v", err)
		}
		display, err := ParseToken("01234567-89ab-cdef-0123-456789abcdef")
		if err != nil {
			t.Fatalf("display form rejected: %v", err)
		}
		if wire != display {
			t.Errorf("forms normalize differently: %q vs %q", wire, display)
		}
	})

	t.Run("parse normalizes case and whitespace", func(t *testing.T) {
		tok, err := ParseToken("  0123456789ABCDEF0123456789ABCDEF ")
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if tok.Wire() != "0123456789abcdef0123456789abcdef" {
			t.Errorf("Wire() = %q", tok.Wire())
		}
	})

	t.Run("parse rejects bad input", func(t *testing.T) {
		for _, in := range []string{"", "short", "0123456789abcdef0123456789abcdeg", "0123456789abcdef0123456789abcdef00"} {
			if _, err := ParseToken(in); err == nil {
				t.Errorf("ParseToken(%q) should fail", in)
			}
		}
	})
}

func TestSpanContext(t *testing.T) {
	t.Run("new span is valid and unique", func(t *testing.T) {
		a := NewSpanContext()
		b := NewSpanContext()
		if !a.Valid() || !b.Valid() {
			t.Fatal("fresh span contexts must be valid")
		}
		if a.OperationID == b.OperationID {
			t.Error("operation IDs collide")
		}
		if a.OperationID == a.CorrelationID {
			t.Error("operation and correlation IDs must be independent")
		}
	})

	t.Run("round trip through display form", func(t *testing.T) {
		orig := NewSpanContext()
		parsed, err := ParseSpanContext(orig.OperationID.String(), orig.CorrelationID.String())
		if err != nil {
			t.Fatalf("ParseSpanContext() error = %v", err)
		}
		if parsed != orig {
			t.Errorf("round trip changed span: %+v vs %+v", parsed, orig)
		}
	})

	t.Run("zero span is invalid", func(t *testing.T) {
		if (SpanContext{}).Valid() {
			t.Error("zero span must be invalid")
		}
		if (SpanContext{OperationID: NewToken()}).Valid() {
			t.Error("span with missing correlation ID must be invalid")
		}
	})

	t.Run("parse names the failing field", func(t *testing.T) {
		_, err := ParseSpanContext("nope", NewToken().Wire())
		if err == nil || !strings.Contains(err.Error(), "operation_id") {
			t.Errorf("error should name operation_id: %v", err)
		}
		_, err = ParseSpanContext(NewToken().Wire(), "nope")
		if err == nil || !strings.Contains(err.Error(), "correlation_id") {
			t.Errorf("error should name correlation_id: %v", err)
		}
	})
}
