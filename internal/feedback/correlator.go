// Package feedback attaches user judgments to past extraction operations.
//
// A judgment arrives minutes after the extraction, in its own HTTP
// request. The one rule that matters here: the event is tagged with the
// span context the caller stored from the extraction response, never with
// any identifier belonging to the feedback request's own scope. Those two
// scopes are different operations.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/krittin/tallyscan/internal/telemetry"
)

// Kind enumerates the judgment shapes a user can submit.
type Kind string

const (
	KindRating  Kind = "rating"
	KindThumbs  Kind = "thumbs"
	KindComment Kind = "comment"
)

// Event is one user judgment of an extraction result.
type Event struct {
	Span telemetry.SpanContext

	Kind   Kind
	Rating int    // 1-5, KindRating only
	Thumbs string // "up" or "down", KindThumbs only
	Text   string // free text; required for KindComment, optional otherwise

	SubmitterID string
	SessionID   string
}

// InvalidFeedbackError is a caller mistake in the submitted judgment.
type InvalidFeedbackError struct {
	Field  string
	Reason string
}

func (e *InvalidFeedbackError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Correlator forwards judgments to the telemetry sink.
type Correlator struct {
	sink   telemetry.Sink
	logger *slog.Logger
}

// New creates a Correlator.
func New(sink telemetry.Sink, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{sink: sink, logger: logger}
}

// Submit validates the judgment and sends it once. Duplicate submissions
// are not deduplicated; they appear as multiple events. A sink failure is
// returned to the caller so the transport layer can report success=false.
func (c *Correlator) Submit(ctx context.Context, ev Event) error {
	sinkEvent, err := c.toEvaluation(ev)
	if err != nil {
		return err
	}

	if err := c.sink.Evaluate(ctx, sinkEvent); err != nil {
		c.logger.Warn("failed to deliver feedback event",
			"error", err,
			"kind", string(ev.Kind),
			"operation_id", ev.Span.OperationID.String())
		return fmt.Errorf("telemetry sink rejected feedback: %w", err)
	}

	c.logger.Info("feedback recorded",
		"kind", string(ev.Kind),
		"operation_id", ev.Span.OperationID.String())
	return nil
}

// toEvaluation maps a judgment to the sink representation: ratings become
// scores, thumbs and comments become categorical labels. Free text rides
// in the reasoning field, never embedded as an opaque tag.
func (c *Correlator) toEvaluation(ev Event) (telemetry.EvaluationEvent, error) {
	if !ev.Span.Valid() {
		return telemetry.EvaluationEvent{}, &InvalidFeedbackError{Field: "span_context", Reason: "operation_id and correlation_id are required"}
	}

	out := telemetry.EvaluationEvent{
		Span:        ev.Span,
		Reasoning:   strings.TrimSpace(ev.Text),
		SubmitterID: ev.SubmitterID,
		SessionID:   ev.SessionID,
	}

	switch ev.Kind {
	case KindRating:
		if ev.Rating < 1 || ev.Rating > 5 {
			return telemetry.EvaluationEvent{}, &InvalidFeedbackError{Field: "value", Reason: "rating must be within [1, 5]"}
		}
		score := float64(ev.Rating-1) / 4.0
		out.Label = "user_rating"
		out.Kind = telemetry.MetricScore
		out.Score = &score
	case KindThumbs:
		if ev.Thumbs != "up" && ev.Thumbs != "down" {
			return telemetry.EvaluationEvent{}, &InvalidFeedbackError{Field: "value", Reason: `thumbs must be "up" or "down"`}
		}
		out.Label = "user_thumbs"
		out.Kind = telemetry.MetricCategorical
		out.Category = ev.Thumbs
	case KindComment:
		if strings.TrimSpace(ev.Text) == "" {
			return telemetry.EvaluationEvent{}, &InvalidFeedbackError{Field: "comment", Reason: "comment text is required"}
		}
		out.Label = "user_comment"
		out.Kind = telemetry.MetricCategorical
		out.Category = "comment"
	default:
		return telemetry.EvaluationEvent{}, &InvalidFeedbackError{Field: "feedback_type", Reason: fmt.Sprintf("unknown kind %q", ev.Kind)}
	}

	return out, nil
}
