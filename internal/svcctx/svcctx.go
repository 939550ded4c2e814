// Package svcctx provides service context for dependency injection via
// context. Separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/krittin/tallyscan/internal/config"
	"github.com/krittin/tallyscan/internal/extract"
	"github.com/krittin/tallyscan/internal/feedback"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/telemetry"
)

// Services holds the core services that flow through request context.
type Services struct {
	Orchestrator *extract.Orchestrator
	Correlator   *feedback.Correlator
	Schemas      *schema.Registry
	Sink         telemetry.Sink
	ConfigMgr    *config.Manager
	Logger       *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// OrchestratorFrom extracts the extraction orchestrator from context.
func OrchestratorFrom(ctx context.Context) *extract.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// CorrelatorFrom extracts the feedback correlator from context.
func CorrelatorFrom(ctx context.Context) *feedback.Correlator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Correlator
	}
	return nil
}

// SchemasFrom extracts the schema registry from context.
func SchemasFrom(ctx context.Context) *schema.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Schemas
	}
	return nil
}

// SinkFrom extracts the telemetry sink from context.
func SinkFrom(ctx context.Context) telemetry.Sink {
	if s := ServicesFrom(ctx); s != nil {
		return s.Sink
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
