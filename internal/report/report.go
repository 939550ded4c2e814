// Package report defines the structured records extracted from ballot
// tally sheet images. A single scanned document can contain more than one
// polling-station report; how many come out of N pages is decided by the
// model, not by a fixed page-to-report ratio.
package report

import "fmt"

// PageImage is one page of a scanned document, in caller-specified order.
type PageImage struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
}

// ExtractionConfig selects the model and generation parameters for one
// extraction. Unset values fall back to the configured defaults.
// Temperature is a pointer so a caller can pin an explicit 0, which is a
// valid sampling temperature and not the same as leaving it unset.
type ExtractionConfig struct {
	Model         string   `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	SchemaVersion string   `json:"schema_version,omitempty"`
}

// ExtractionRequest is the immutable input to one extraction operation.
type ExtractionRequest struct {
	Pages  []PageImage
	Config ExtractionConfig
}

// BallotStatistics holds the four counted totals from the tally sheet.
// Fields are pointers because an unreadable cell is absent, and absent is
// not the same thing as a counted zero. Never test these with truthiness;
// compare against nil.
type BallotStatistics struct {
	BallotsUsed   *int `json:"ballots_used"`
	GoodBallots   *int `json:"good_ballots"`
	BadBallots    *int `json:"bad_ballots"`
	NoVoteBallots *int `json:"no_vote_ballots"`
}

// Complete reports whether all four totals were read from the sheet.
func (b BallotStatistics) Complete() bool {
	return b.BallotsUsed != nil && b.GoodBallots != nil && b.BadBallots != nil && b.NoVoteBallots != nil
}

// MissingFields lists the totals that could not be read, in a stable order.
func (b BallotStatistics) MissingFields() []string {
	var missing []string
	if b.BallotsUsed == nil {
		missing = append(missing, "ballots_used")
	}
	if b.GoodBallots == nil {
		missing = append(missing, "good_ballots")
	}
	if b.BadBallots == nil {
		missing = append(missing, "bad_ballots")
	}
	if b.NoVoteBallots == nil {
		missing = append(missing, "no_vote_ballots")
	}
	return missing
}

// VoteResult is one candidate or party row from the results table.
type VoteResult struct {
	Number        *int    `json:"number"`
	Name          *string `json:"name"`
	VoteCount     *int    `json:"vote_count"`
	VoteCountText *string `json:"vote_count_text"`
}

// Report is one polling-station's extracted ballot record.
type Report struct {
	FormInfo         map[string]*string `json:"form_info"`
	BallotStatistics BallotStatistics   `json:"ballot_statistics"`
	VoteResults      []VoteResult       `json:"vote_results"`
}

// Summary returns a short human-readable description for logs.
func (r *Report) Summary() string {
	station := ""
	if v, ok := r.FormInfo["polling_station"]; ok && v != nil {
		station = *v
	}
	return fmt.Sprintf("station=%q candidates=%d stats_complete=%t", station, len(r.VoteResults), r.BallotStatistics.Complete())
}

// IntPtr returns a pointer to v. Convenience for building literals in
// callers and tests.
func IntPtr(v int) *int { return &v }

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 { return &f }
