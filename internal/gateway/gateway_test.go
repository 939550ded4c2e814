package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDetectTruncation(t *testing.T) {
	tests := []struct {
		name             string
		text             string
		finishReason     string
		completionTokens int
		maxTokens        int
		want             bool
	}{
		{
			name:         "finish reason length is authoritative",
			text:         `[{"a": 1}]`,
			finishReason: "length",
			want:         true,
		},
		{
			name:         "complete array with stop",
			text:         `[{"form_info": {}}]`,
			finishReason: "stop",
			want:         false,
		},
		{
			name:             "budget exhausted",
			text:             `[{"a": 1}]`,
			finishReason:     "stop",
			completionTokens: 4096,
			maxTokens:        4096,
			want:             true,
		},
		{
			name:         "JSON with no closing bracket near the end",
			text:         `[{"form_info": {"district": "some very long district name that keeps going`,
			finishReason: "stop",
			want:         true,
		},
		{
			name:         "closing brace within lookback window",
			text:         `[{"a": 1}]` + "\n```",
			finishReason: "stop",
			want:         false,
		},
		{
			name:         "plain text reply is not truncation",
			text:         "no reports found",
			finishReason: "stop",
			want:         false,
		},
		{
			name:         "empty reply",
			text:         "",
			finishReason: "stop",
			want:         false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectTruncation(tt.text, tt.finishReason, tt.completionTokens, tt.maxTokens)
			if got != tt.want {
				t.Errorf("detectTruncation() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestMapProviderError(t *testing.T) {
	t.Run("deadline exceeded becomes timeout", func(t *testing.T) {
		err := mapProviderError(context.DeadlineExceeded, "gpt-4o", 30*time.Second)
		var timeout *TimeoutError
		if !errors.As(err, &timeout) {
			t.Fatalf("error = %T, want TimeoutError", err)
		}
		if !strings.Contains(err.Error(), "gpt-4o") {
			t.Errorf("timeout should name the model: %v", err)
		}
	})

	t.Run("wrapped deadline becomes timeout", func(t *testing.T) {
		wrapped := errors.Join(errors.New("request failed"), context.DeadlineExceeded)
		var timeout *TimeoutError
		if !errors.As(mapProviderError(wrapped, "m", time.Second), &timeout) {
			t.Error("wrapped deadline should map to TimeoutError")
		}
	})

	t.Run("unknown transport error becomes unavailable", func(t *testing.T) {
		err := mapProviderError(errors.New("connection refused"), "m", time.Second)
		var unavailable *UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("error = %T, want UnavailableError", err)
		}
	})

	t.Run("nil passes through", func(t *testing.T) {
		if err := mapProviderError(nil, "m", 0); err != nil {
			t.Errorf("mapProviderError(nil) = %v", err)
		}
	})
}
