package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/parse"
	"github.com/krittin/tallyscan/internal/prompt"
	"github.com/krittin/tallyscan/internal/report"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/telemetry"
	"github.com/krittin/tallyscan/internal/validate"
)

const mockReply = `[{
	"form_info": {"polling_station": "4"},
	"ballot_statistics": {"ballots_used": 100, "good_ballots": 95, "bad_ballots": 2, "no_vote_ballots": 3},
	"vote_results": [{"number": 1, "name": "a", "vote_count": 95, "vote_count_text": null}]
}]`

func testDefaults() Defaults {
	return Defaults{
		Model:         "mock-model",
		Temperature:   0.1,
		MaxTokens:     8192,
		SchemaVersion: "1.0.0",
	}
}

func testOrchestrator(t *testing.T, mock *gateway.MockClient, sink telemetry.Sink) *Orchestrator {
	t.Helper()
	schemas, err := schema.Load()
	if err != nil {
		t.Fatalf("schema.Load() error = %v", err)
	}
	return New(Config{
		Gateway:   mock,
		Schemas:   schemas,
		Validator: validate.New(sink, nil),
		Defaults:  testDefaults(),
	})
}

func onePageRequest() *report.ExtractionRequest {
	return &report.ExtractionRequest{
		Pages: []report.PageImage{{Data: []byte("img"), Filename: "page1.jpg"}},
	}
}

func TestExtract(t *testing.T) {
	t.Run("successful extraction", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		mock.Sink = sink
		o := testOrchestrator(t, mock, sink)

		result, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if len(result.Reports) != 1 {
			t.Fatalf("got %d reports, want 1", len(result.Reports))
		}
		if len(result.Verdicts) != 1 {
			t.Fatalf("got %d verdicts, want 1", len(result.Verdicts))
		}
		if result.Verdicts[0].Status != validate.StatusPass {
			t.Errorf("verdict = %s, want pass", result.Verdicts[0].Status)
		}
		if !result.Span.Valid() {
			t.Error("result must carry a valid span context")
		}
	})

	t.Run("span correlates annotation and evaluation events", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		mock.Sink = sink
		o := testOrchestrator(t, mock, sink)

		result, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}

		annotations := sink.Annotations()
		if len(annotations) != 1 {
			t.Fatalf("got %d annotation events, want 1", len(annotations))
		}
		if annotations[0].Span != result.Span {
			t.Errorf("annotation span %+v does not match result span %+v", annotations[0].Span, result.Span)
		}
		evaluations := sink.Evaluations()
		if len(evaluations) != 1 {
			t.Fatalf("got %d evaluation events, want 1", len(evaluations))
		}
		if evaluations[0].Span != result.Span {
			t.Errorf("evaluation span %+v does not match result span %+v", evaluations[0].Span, result.Span)
		}
	})

	t.Run("each extraction gets a fresh span", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		first, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("first Extract() error = %v", err)
		}
		second, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("second Extract() error = %v", err)
		}
		if first.Span == second.Span {
			t.Error("span contexts must differ between operations")
		}
	})

	t.Run("last span updated after completion", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		if _, ok := o.LastSpan(); ok {
			t.Fatal("LastSpan() should be empty before any extraction")
		}
		result, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		last, ok := o.LastSpan()
		if !ok {
			t.Fatal("LastSpan() empty after completed extraction")
		}
		if last != result.Span {
			t.Errorf("LastSpan() = %+v, want %+v", last, result.Span)
		}
	})

	t.Run("failed extraction does not claim the last-op slot", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		good, err := o.Extract(context.Background(), onePageRequest())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}

		mock.Err = errors.New("provider exploded")
		if _, err := o.Extract(context.Background(), onePageRequest()); err == nil {
			t.Fatal("expected gateway error to propagate")
		}

		last, ok := o.LastSpan()
		if !ok || last != good.Span {
			t.Errorf("failed extraction must not overwrite the slot: got %+v, want %+v", last, good.Span)
		}
	})

	t.Run("empty input fails before the model is called", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		o := testOrchestrator(t, mock, sink)

		_, err := o.Extract(context.Background(), &report.ExtractionRequest{})
		var empty *prompt.EmptyInputError
		if !errors.As(err, &empty) {
			t.Fatalf("error = %v, want EmptyInputError", err)
		}
		if len(mock.Requests()) != 0 {
			t.Error("gateway must not be called for empty input")
		}
	})

	t.Run("empty array reply is NoReportsError", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = "[]"
		o := testOrchestrator(t, mock, sink)

		_, err := o.Extract(context.Background(), onePageRequest())
		var noReports *NoReportsError
		if !errors.As(err, &noReports) {
			t.Fatalf("error = %v, want NoReportsError", err)
		}
	})

	t.Run("truncated garbage reply is TruncatedResponseError", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = `[{"form_info": {"district": "บาง`
		mock.Truncated = true
		o := testOrchestrator(t, mock, sink)

		_, err := o.Extract(context.Background(), onePageRequest())
		var truncated *parse.TruncatedResponseError
		if !errors.As(err, &truncated) {
			t.Fatalf("error = %v, want TruncatedResponseError", err)
		}
	})

	t.Run("caller cancellation after submit does not lose the result", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		ctx, cancel := context.WithCancel(context.Background())
		mock.OnSubmit = cancel

		result, err := o.Extract(ctx, onePageRequest())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if len(result.Reports) != 1 {
			t.Errorf("got %d reports, want 1", len(result.Reports))
		}
		if got := len(sink.Evaluations()); got != 1 {
			t.Errorf("got %d evaluation events, want 1 despite cancellation", got)
		}
		if _, ok := o.LastSpan(); !ok {
			t.Error("last-op slot must still be claimed")
		}
	})

	t.Run("gateway receives resolved config", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		req := onePageRequest()
		req.Config.Model = "gpt-4o-mini"
		if _, err := o.Extract(context.Background(), req); err != nil {
			t.Fatalf("Extract() error = %v", err)
		}

		configs := mock.Configs()
		if len(configs) != 1 {
			t.Fatalf("got %d gateway calls, want 1", len(configs))
		}
		cfg := configs[0]
		if cfg.Model != "gpt-4o-mini" {
			t.Errorf("model = %s, want request override", cfg.Model)
		}
		if cfg.Temperature != 0.1 || cfg.MaxTokens != 8192 {
			t.Errorf("defaults not applied: temp=%v maxTokens=%d", cfg.Temperature, cfg.MaxTokens)
		}
		if cfg.SchemaHash == "" {
			t.Error("schema hash must tag the call")
		}
		if !cfg.Span.Valid() {
			t.Error("gateway call must carry the operation span")
		}
	})

	t.Run("explicit zero temperature reaches the gateway", func(t *testing.T) {
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		o := testOrchestrator(t, mock, sink)

		req := onePageRequest()
		req.Config.Temperature = report.FloatPtr(0)
		if _, err := o.Extract(context.Background(), req); err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if got := mock.Configs()[0].Temperature; got != 0 {
			t.Errorf("temperature = %v, want 0", got)
		}
	})

	t.Run("submission log names the provider", func(t *testing.T) {
		var buf bytes.Buffer
		sink := telemetry.NewMemorySink()
		mock := gateway.NewMockClient()
		mock.ResponseText = mockReply
		schemas, err := schema.Load()
		if err != nil {
			t.Fatalf("schema.Load() error = %v", err)
		}
		o := New(Config{
			Gateway:   mock,
			Schemas:   schemas,
			Validator: validate.New(sink, nil),
			Defaults:  testDefaults(),
			Logger:    slog.New(slog.NewTextHandler(&buf, nil)),
		})

		if _, err := o.Extract(context.Background(), onePageRequest()); err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !strings.Contains(buf.String(), "provider=mock") {
			t.Errorf("log output missing provider name: %s", buf.String())
		}
	})
}

func TestResolveConfig(t *testing.T) {
	sink := telemetry.NewMemorySink()
	o := testOrchestrator(t, gateway.NewMockClient(), sink)

	tests := []struct {
		name      string
		cfg       report.ExtractionConfig
		wantField string
	}{
		{"temperature above bound", report.ExtractionConfig{Temperature: report.FloatPtr(2.5)}, "temperature"},
		{"temperature below bound", report.ExtractionConfig{Temperature: report.FloatPtr(-0.5)}, "temperature"},
		{"max tokens above bound", report.ExtractionConfig{MaxTokens: 100000}, "max_tokens"},
		{"negative max tokens", report.ExtractionConfig{MaxTokens: -1}, "max_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.resolveConfig(tt.cfg)
			var invalid *InvalidConfigError
			if !errors.As(err, &invalid) {
				t.Fatalf("error = %v, want InvalidConfigError", err)
			}
			if invalid.Field != tt.wantField {
				t.Errorf("field = %s, want %s", invalid.Field, tt.wantField)
			}
		})
	}

	t.Run("explicit zero temperature is not treated as unset", func(t *testing.T) {
		resolved, err := o.resolveConfig(report.ExtractionConfig{Temperature: report.FloatPtr(0)})
		if err != nil {
			t.Fatalf("resolveConfig() error = %v", err)
		}
		if resolved.Temperature == nil || *resolved.Temperature != 0 {
			t.Errorf("temperature = %v, want pinned 0", resolved.Temperature)
		}
	})

	t.Run("unknown schema version rejected", func(t *testing.T) {
		req := onePageRequest()
		req.Config.SchemaVersion = "9.9.9"
		_, err := o.Extract(context.Background(), req)
		var invalid *InvalidConfigError
		if !errors.As(err, &invalid) {
			t.Fatalf("error = %v, want InvalidConfigError", err)
		}
		if invalid.Field != "schema_version" {
			t.Errorf("field = %s, want schema_version", invalid.Field)
		}
	})

	t.Run("hot reload swaps defaults", func(t *testing.T) {
		o.SetDefaults(Defaults{Model: "new-model", Temperature: 0.3, MaxTokens: 4096, SchemaVersion: "1.0.0"})
		resolved, err := o.resolveConfig(report.ExtractionConfig{})
		if err != nil {
			t.Fatalf("resolveConfig() error = %v", err)
		}
		if resolved.Model != "new-model" || resolved.MaxTokens != 4096 {
			t.Errorf("defaults not swapped: %+v", resolved)
		}
	})
}
