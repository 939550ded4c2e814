// Package parse turns raw model text into ballot reports. It tolerates
// markdown fences and truncated output, repairs what it can, and keeps a
// hard distinction between "nothing could be parsed" and "the model
// legitimately found zero reports".
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/krittin/tallyscan/internal/report"
)

// TruncatedResponseError means the response is not valid JSON and repair
// recovered zero complete reports. Distinct from a valid empty array.
type TruncatedResponseError struct {
	RawLength int
	Truncated bool
}

func (e *TruncatedResponseError) Error() string {
	return fmt.Sprintf(
		"model response is not parseable JSON and no complete report could be recovered (%d bytes, provider_truncated=%t); raise max output tokens and retry",
		e.RawLength, e.Truncated)
}

// MalformedReportError flags a single report in the response that is
// missing a required structural key. Other reports in the same response
// are unaffected.
type MalformedReportError struct {
	Index int
	Key   string
}

func (e *MalformedReportError) Error() string {
	return fmt.Sprintf("report %d is missing required key %q", e.Index, e.Key)
}

var requiredKeys = []string{"form_info", "ballot_statistics", "vote_results"}

// Result is the parser output: normalized reports plus non-fatal warnings.
type Result struct {
	Reports  []report.Report
	Warnings []string
}

// Parse converts raw model text into reports.
//
// Strict JSON is attempted first. On failure a bounded repair finds the
// last structurally balanced prefix and parses that; if repair yields zero
// complete reports the call fails with TruncatedResponseError. A valid
// empty array parses to zero reports with no error. Individual malformed
// reports become warnings; Parse fails outright only when every report in
// a non-empty response is malformed.
func Parse(text string, providerTruncated bool) (*Result, error) {
	result := &Result{}

	cleaned := stripCodeFences(strings.TrimSpace(text))

	elements, repaired, err := decodeElements(cleaned)
	if err != nil {
		return nil, &TruncatedResponseError{RawLength: len(text), Truncated: providerTruncated}
	}
	if repaired {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("response was not valid JSON; recovered %d report(s) from a balanced prefix", len(elements)))
	}

	if len(elements) == 0 {
		// Legitimate zero-report outcome.
		return result, nil
	}

	var malformed []error
	for i, raw := range elements {
		rep, err := normalizeReport(i, raw, result)
		if err != nil {
			malformed = append(malformed, err)
			result.Warnings = append(result.Warnings, err.Error())
			continue
		}
		result.Reports = append(result.Reports, *rep)
	}

	if len(result.Reports) == 0 && len(malformed) > 0 {
		return nil, fmt.Errorf("all %d report(s) in response are malformed: %w", len(malformed), malformed[0])
	}
	return result, nil
}

// decodeElements parses the text into top-level report objects, repairing a
// truncated suffix when strict parsing fails. The repaired flag is true
// when the balanced-prefix fallback was used.
func decodeElements(text string) ([]json.RawMessage, bool, error) {
	if elements, err := decodeStrict(text); err == nil {
		return elements, false, nil
	}

	prefix, ok := balancedPrefix(text)
	if !ok {
		return nil, false, fmt.Errorf("no balanced prefix found")
	}
	elements, err := decodeStrict(prefix)
	if err != nil {
		return nil, false, fmt.Errorf("balanced prefix does not parse: %w", err)
	}
	if len(elements) == 0 {
		return nil, false, fmt.Errorf("balanced prefix holds no complete report")
	}
	return elements, true, nil
}

// decodeStrict accepts a JSON array of objects, or a bare object which the
// model sometimes emits despite instructions.
func decodeStrict(text string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	if strings.HasPrefix(trimmed, "{") {
		if !json.Valid([]byte(trimmed)) {
			return nil, fmt.Errorf("invalid JSON object")
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// normalizeReport coerces one raw object into a Report. Numeric-looking
// strings become integers where the schema demands a number; null is
// preserved as nil, never coerced to 0.
func normalizeReport(index int, raw json.RawMessage, result *Result) (*report.Report, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &MalformedReportError{Index: index, Key: "(not an object)"}
	}

	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			return nil, &MalformedReportError{Index: index, Key: key}
		}
	}

	rep := &report.Report{FormInfo: map[string]*string{}}

	if info, ok := obj["form_info"].(map[string]any); ok {
		for k, v := range info {
			rep.FormInfo[k] = coerceString(v)
		}
	} else {
		return nil, &MalformedReportError{Index: index, Key: "form_info"}
	}

	stats, ok := obj["ballot_statistics"].(map[string]any)
	if !ok {
		return nil, &MalformedReportError{Index: index, Key: "ballot_statistics"}
	}
	rep.BallotStatistics = report.BallotStatistics{
		BallotsUsed:   coerceInt(stats["ballots_used"]),
		GoodBallots:   coerceInt(stats["good_ballots"]),
		BadBallots:    coerceInt(stats["bad_ballots"]),
		NoVoteBallots: coerceInt(stats["no_vote_ballots"]),
	}

	rows, ok := obj["vote_results"].([]any)
	if !ok {
		return nil, &MalformedReportError{Index: index, Key: "vote_results"}
	}
	for rowIdx, rowAny := range rows {
		row, ok := rowAny.(map[string]any)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("report %d: vote_results[%d] is not an object, skipped", index, rowIdx))
			continue
		}
		rep.VoteResults = append(rep.VoteResults, report.VoteResult{
			Number:        coerceInt(row["number"]),
			Name:          coerceString(row["name"]),
			VoteCount:     coerceInt(row["vote_count"]),
			VoteCountText: coerceString(row["vote_count_text"]),
		})
	}

	return rep, nil
}

// coerceInt converts a JSON value into *int. Absent and null stay nil.
// Numeric strings, including Thai numerals and digit-grouped forms, are
// accepted because the model transcribes handwritten cells inconsistently.
func coerceInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			iv := int(i)
			return &iv
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			iv := int(f)
			return &iv
		}
		return nil
	case float64:
		if n == float64(int(n)) {
			iv := int(n)
			return &iv
		}
		return nil
	case string:
		return parseIntString(n)
	default:
		return nil
	}
}

func parseIntString(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '๐' && r <= '๙':
			b.WriteRune('0' + (r - '๐'))
		case r == ',' || r == ' ':
			// digit grouping
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		default:
			return nil
		}
	}
	if b.Len() == 0 || b.String() == "-" {
		return nil
	}

	var value int
	if _, err := fmt.Sscanf(b.String(), "%d", &value); err != nil {
		return nil
	}
	return &value
}

// coerceString converts a JSON value into *string, preserving null.
func coerceString(v any) *string {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return &s
	case json.Number:
		str := s.String()
		return &str
	case bool:
		str := fmt.Sprint(s)
		return &str
	default:
		return nil
	}
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
