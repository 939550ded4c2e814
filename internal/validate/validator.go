// Package validate checks each extracted report's internal arithmetic
// consistency and produces a structured verdict.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/krittin/tallyscan/internal/report"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/telemetry"
)

// Status classifies one report's consistency.
type Status string

const (
	StatusPass       Status = "pass"
	StatusFail       Status = "fail"
	StatusIncomplete Status = "incomplete"
)

// Check is one named sub-check contributing to the verdict score.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is the immutable validation outcome for one report.
type Verdict struct {
	ReportIndex int     `json:"report_index"`
	Status      Status  `json:"status"`
	Reasoning   string  `json:"reasoning"`
	Checks      []Check `json:"checks"`
	// Score is the proportion of sub-checks passed, in [0,1].
	Score float64 `json:"score"`
}

// Validator validates reports and emits one evaluation event per report.
type Validator struct {
	sink   telemetry.Sink
	logger *slog.Logger
}

// New creates a Validator.
func New(sink telemetry.Sink, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{sink: sink, logger: logger}
}

// Validate produces a verdict for one report and submits the evaluation
// event against the given span context. The caller must invoke this while
// that span is still the active operation; the event emission happens here,
// before control returns, so the ordering guarantee holds.
func (v *Validator) Validate(ctx context.Context, span telemetry.SpanContext, index int, rep *report.Report, ver *schema.Version) Verdict {
	verdict := Verdict{ReportIndex: index}

	stats := rep.BallotStatistics

	// The deciding test is an explicit absence check on each field. A
	// present 0 is a counted value and must never flip a field to
	// "missing"; truthiness here was a real defect class.
	if !stats.Complete() {
		missing := stats.MissingFields()
		verdict.Status = StatusIncomplete
		verdict.Reasoning = fmt.Sprintf("ballot statistics incomplete: missing %s; arithmetic check skipped",
			strings.Join(missing, ", "))
		verdict.Checks = append(verdict.Checks, Check{
			Name:   "statistics_present",
			Detail: "missing " + strings.Join(missing, ", "),
		})
	} else {
		verdict.Checks = append(verdict.Checks, Check{Name: "statistics_present", Passed: true})

		expected := *stats.GoodBallots + *stats.BadBallots + *stats.NoVoteBallots
		if *stats.BallotsUsed == expected {
			verdict.Status = StatusPass
			verdict.Reasoning = fmt.Sprintf("ballots_used=%d = %d+%d+%d=%d",
				*stats.BallotsUsed, *stats.GoodBallots, *stats.BadBallots, *stats.NoVoteBallots, expected)
			verdict.Checks = append(verdict.Checks, Check{Name: "ballot_arithmetic", Passed: true})
		} else {
			verdict.Status = StatusFail
			verdict.Reasoning = fmt.Sprintf("ballots_used=%d ≠ %d+%d+%d=%d",
				*stats.BallotsUsed, *stats.GoodBallots, *stats.BadBallots, *stats.NoVoteBallots, expected)
			verdict.Checks = append(verdict.Checks, Check{
				Name:   "ballot_arithmetic",
				Detail: verdict.Reasoning,
			})
		}
	}

	verdict.Checks = append(verdict.Checks, v.supplementaryChecks(rep, ver)...)
	verdict.Score = score(verdict.Checks)

	v.emit(ctx, span, verdict)
	return verdict
}

// supplementaryChecks never change the verdict status; they only refine
// the score.
func (v *Validator) supplementaryChecks(rep *report.Report, ver *schema.Version) []Check {
	var checks []Check

	checks = append(checks, Check{
		Name:   "vote_results_present",
		Passed: len(rep.VoteResults) > 0,
	})

	// Candidate votes should account for the good ballots when every row
	// was readable.
	if rep.BallotStatistics.GoodBallots != nil && len(rep.VoteResults) > 0 {
		total := 0
		allPresent := true
		for _, row := range rep.VoteResults {
			if row.VoteCount == nil {
				allPresent = false
				break
			}
			total += *row.VoteCount
		}
		if allPresent {
			checks = append(checks, Check{
				Name:   "vote_totals_consistent",
				Passed: total == *rep.BallotStatistics.GoodBallots,
				Detail: fmt.Sprintf("sum(vote_count)=%d good_ballots=%d", total, *rep.BallotStatistics.GoodBallots),
			})
		}
	}

	if ver != nil {
		doc, err := json.Marshal(rep)
		schemaOK := err == nil && ver.Validate(doc) == nil
		checks = append(checks, Check{Name: "schema_conformance", Passed: schemaOK})
	}

	return checks
}

func score(checks []Check) float64 {
	if len(checks) == 0 {
		return 0
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// emit submits the evaluation event. Delivery survives caller cancellation
// because the verdict record has value independent of the original caller.
func (v *Validator) emit(ctx context.Context, span telemetry.SpanContext, verdict Verdict) {
	if v.sink == nil {
		return
	}
	s := verdict.Score
	ev := telemetry.EvaluationEvent{
		Span:      span,
		Label:     "report_validation",
		Kind:      telemetry.MetricCategorical,
		Category:  string(verdict.Status),
		Score:     &s,
		Reasoning: verdict.Reasoning,
	}
	if err := v.sink.Evaluate(context.WithoutCancel(ctx), ev); err != nil {
		v.logger.Warn("failed to deliver evaluation event",
			"error", err,
			"report_index", verdict.ReportIndex,
			"operation_id", span.OperationID.String())
	}
}
