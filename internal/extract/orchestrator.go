// Package extract owns the end-to-end extraction operation: prompt build,
// model call, parsing, validation, and span-context capture.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/parse"
	"github.com/krittin/tallyscan/internal/prompt"
	"github.com/krittin/tallyscan/internal/report"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/telemetry"
	"github.com/krittin/tallyscan/internal/validate"
)

// State tracks one extraction through the pipeline. Failed is reachable
// from any non-terminal state.
type State string

const (
	StateBuilding   State = "building"
	StateSubmitted  State = "submitted"
	StateParsing    State = "parsing"
	StateValidating State = "validating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// NoReportsError means parsing succeeded but produced zero reports, so
// there is nothing to return. Distinct from TruncatedResponseError.
type NoReportsError struct{}

func (e *NoReportsError) Error() string {
	return "model found no ballot reports in the submitted pages"
}

// InvalidConfigError is a caller mistake in the extraction config.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Defaults are the generation parameters used when the request leaves a
// field unset. Hot-reloaded from config.
type Defaults struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	SchemaVersion string
}

// Result is the consolidated outcome of one extraction. Span is the
// authoritative handle for later feedback correlation; callers should
// persist it rather than relying on the best-effort last-operation slot.
type Result struct {
	Reports  []report.Report       `json:"reports"`
	Verdicts []validate.Verdict    `json:"verdicts"`
	Span     telemetry.SpanContext `json:"span_context"`
	Warnings []string              `json:"warnings"`
}

// Config holds orchestrator dependencies.
type Config struct {
	Gateway   gateway.Client
	Schemas   *schema.Registry
	Validator *validate.Validator
	Defaults  Defaults
	Logger    *slog.Logger
}

// Orchestrator sequences the pipeline stages for one request at a time.
// Stages within one request are strictly sequential; concurrent requests
// each get their own SpanContext.
type Orchestrator struct {
	gateway   gateway.Client
	schemas   *schema.Registry
	validator *validate.Validator
	logger    *slog.Logger

	mu       sync.RWMutex
	defaults Defaults

	lastOp lastOpSlot
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		gateway:   cfg.Gateway,
		schemas:   cfg.Schemas,
		validator: cfg.Validator,
		defaults:  cfg.Defaults,
		logger:    cfg.Logger,
	}
}

// SetDefaults swaps the fallback generation parameters (config hot-reload).
func (o *Orchestrator) SetDefaults(d Defaults) {
	o.mu.Lock()
	o.defaults = d
	o.mu.Unlock()
}

// Defaults returns the current fallback generation parameters.
func (o *Orchestrator) Defaults() Defaults {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.defaults
}

// Extract runs the full pipeline. Partial success (some reports malformed)
// is reported through Result.Warnings, never as an error; Extract fails
// only when no report could be produced at all.
func (o *Orchestrator) Extract(ctx context.Context, req *report.ExtractionRequest) (*Result, error) {
	state := StateBuilding

	cfg, err := o.resolveConfig(req.Config)
	if err != nil {
		return nil, o.fail(state, err)
	}
	ver, err := o.schemas.Get(cfg.SchemaVersion)
	if err != nil {
		return nil, o.fail(state, &InvalidConfigError{Field: "schema_version", Reason: err.Error()})
	}

	// The span is minted while the operation is active and is the only
	// identifier stable enough to survive the request/response boundary.
	span := telemetry.NewSpanContext()
	logger := o.logger.With("operation_id", span.OperationID.String())

	payload, err := prompt.Build(req, ver)
	if err != nil {
		return nil, o.fail(state, err)
	}

	state = StateSubmitted
	logger.Info("submitting extraction",
		"provider", o.gateway.Name(),
		"model", cfg.Model,
		"pages", len(req.Pages),
		"schema_version", ver.Version)

	resp, err := o.gateway.Submit(ctx, payload, gateway.Config{
		Model:       cfg.Model,
		Temperature: *cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		SchemaHash:  ver.ShortHash(),
		Span:        span,
	})
	if err != nil {
		return nil, o.fail(state, err)
	}

	// Once the model has answered, parsing and validation run to
	// completion even if the caller has gone away; the span's telemetry
	// record has value on its own.
	detached := context.WithoutCancel(ctx)

	state = StateParsing
	parsed, err := parse.Parse(resp.Text, resp.Truncated)
	if err != nil {
		return nil, o.fail(state, err)
	}
	if len(parsed.Reports) == 0 {
		return nil, o.fail(state, &NoReportsError{})
	}

	state = StateValidating
	result := &Result{
		Reports:  parsed.Reports,
		Warnings: parsed.Warnings,
		Span:     span,
	}
	for i := range result.Reports {
		verdict := o.validator.Validate(detached, span, i, &result.Reports[i], ver)
		result.Verdicts = append(result.Verdicts, verdict)
	}

	// Capture strictly after the last evaluation event and before
	// returning, so late feedback always references a context all prior
	// telemetry already used.
	o.lastOp.store(span)

	state = StateCompleted
	logger.Info("extraction completed",
		"state", string(state),
		"reports", len(result.Reports),
		"warnings", len(result.Warnings),
		"truncated", resp.Truncated)
	return result, nil
}

// LastSpan returns the most recent completed operation's span context.
// This slot is a process-wide, last-writer-wins convenience fallback and
// is racy under concurrent extractions; the authoritative handle is the
// one embedded in each Result.
func (o *Orchestrator) LastSpan() (telemetry.SpanContext, bool) {
	return o.lastOp.load()
}

func (o *Orchestrator) fail(state State, err error) error {
	o.logger.Warn("extraction failed", "state", string(state), "error", err)
	return err
}

func (o *Orchestrator) resolveConfig(cfg report.ExtractionConfig) (report.ExtractionConfig, error) {
	defaults := o.Defaults()

	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == nil {
		cfg.Temperature = &defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = defaults.SchemaVersion
	}

	if cfg.Model == "" {
		return cfg, &InvalidConfigError{Field: "model", Reason: "no model configured"}
	}
	if *cfg.Temperature < 0 || *cfg.Temperature > 2 {
		return cfg, &InvalidConfigError{Field: "temperature", Reason: "must be within [0, 2]"}
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens > 65536 {
		return cfg, &InvalidConfigError{Field: "max_tokens", Reason: "must be within (0, 65536]"}
	}
	return cfg, nil
}
