package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPSink(t *testing.T) {
	t.Run("annotate posts wire-form tokens", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/annotations" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if project := r.Header.Get("X-Project"); project != "tallyscan" {
				t.Errorf("unexpected project header: %s", project)
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		sink := NewHTTPSink(HTTPSinkConfig{
			BaseURL: server.URL,
			APIKey:  "test-key",
			Project: "tallyscan",
		})

		span := NewSpanContext()
		err := sink.Annotate(context.Background(), AnnotationEvent{
			Span:       span,
			Model:      "gpt-4o",
			ImageCount: 2,
		})
		if err != nil {
			t.Fatalf("Annotate() error = %v", err)
		}

		spanBody, ok := got["span_context"].(map[string]any)
		if !ok {
			t.Fatalf("missing span_context in payload: %v", got)
		}
		if spanBody["operation_id"] != span.OperationID.Wire() {
			t.Errorf("operation_id = %v, want wire form %s", spanBody["operation_id"], span.OperationID.Wire())
		}
		if got["id"] == "" || got["id"] == nil {
			t.Error("event ID should be assigned before delivery")
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sink := NewHTTPSink(HTTPSinkConfig{BaseURL: server.URL, MaxRetries: 3})
		err := sink.Evaluate(context.Background(), EvaluationEvent{
			Span:  NewSpanContext(),
			Label: "user_rating",
			Kind:  MetricScore,
		})
		if err != nil {
			t.Fatalf("Evaluate() error = %v after retries", err)
		}
		if calls.Load() != 3 {
			t.Errorf("got %d delivery attempts, want 3", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		sink := NewHTTPSink(HTTPSinkConfig{BaseURL: server.URL, MaxRetries: 3})
		err := sink.Annotate(context.Background(), AnnotationEvent{Span: NewSpanContext()})
		if err == nil {
			t.Fatal("expected error for rejected event")
		}
		if calls.Load() != 1 {
			t.Errorf("got %d delivery attempts, want 1 for a 4xx", calls.Load())
		}
	})
}
