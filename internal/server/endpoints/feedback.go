package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/feedback"
	"github.com/krittin/tallyscan/internal/svcctx"
	"github.com/krittin/tallyscan/internal/telemetry"
)

// FeedbackRequest is the out-of-band judgment payload. SpanContext carries
// the tokens handed back by a prior extraction; both accept the grouped
// display form or the compact wire form. The judgment itself rides in
// Value, typed by FeedbackType: a number in [1, 5] for rating, "up" or
// "down" for thumbs, free text for comment. The typed fields are accepted
// as aliases and win when both are set.
type FeedbackRequest struct {
	SpanContext  SpanContextBody `json:"span_context"`
	FeedbackType string          `json:"feedback_type"`
	Value        json.RawMessage `json:"value,omitempty"`
	Rating       int             `json:"rating,omitempty"`
	Thumbs       string          `json:"thumbs,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	SubmitterID  string          `json:"submitter_id,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
}

// resolveValue folds the generic value field into the typed fields.
func (req *FeedbackRequest) resolveValue() error {
	if len(req.Value) == 0 {
		return nil
	}
	switch feedback.Kind(req.FeedbackType) {
	case feedback.KindRating:
		if req.Rating != 0 {
			return nil
		}
		if err := json.Unmarshal(req.Value, &req.Rating); err != nil {
			return errors.New("invalid value: rating must be an integer")
		}
	case feedback.KindThumbs:
		if req.Thumbs != "" {
			return nil
		}
		if err := json.Unmarshal(req.Value, &req.Thumbs); err != nil {
			return errors.New(`invalid value: thumbs must be "up" or "down"`)
		}
	default:
		if req.Comment != "" {
			return nil
		}
		if err := json.Unmarshal(req.Value, &req.Comment); err != nil {
			return errors.New("invalid value: must be a string")
		}
	}
	return nil
}

// FeedbackResponse reports delivery outcome. Sink unavailability is not a
// transport error; the judgment was accepted but could not be recorded.
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FeedbackEndpoint handles POST /feedback.
type FeedbackEndpoint struct{}

var _ api.Endpoint = (*FeedbackEndpoint)(nil)

func (e *FeedbackEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/feedback", e.handler
}

func (e *FeedbackEndpoint) RequiresInit() bool { return true }

func (e *FeedbackEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.resolveValue(); err != nil {
		writeTypedError(w, http.StatusBadRequest, "INVALID_FEEDBACK", err.Error())
		return
	}

	span, err := telemetry.ParseSpanContext(req.SpanContext.OperationID, req.SpanContext.CorrelationID)
	if err != nil {
		writeTypedError(w, http.StatusBadRequest, "INVALID_FEEDBACK", err.Error())
		return
	}

	ev := feedback.Event{
		Span:        span,
		Kind:        feedback.Kind(req.FeedbackType),
		Rating:      req.Rating,
		Thumbs:      req.Thumbs,
		Text:        req.Comment,
		SubmitterID: req.SubmitterID,
		SessionID:   req.SessionID,
	}

	if err := svcctx.CorrelatorFrom(r.Context()).Submit(r.Context(), ev); err != nil {
		var invalid *feedback.InvalidFeedbackError
		if errors.As(err, &invalid) {
			writeTypedError(w, http.StatusBadRequest, "INVALID_FEEDBACK", err.Error())
			return
		}
		// Accepted but undelivered. The caller should retry later.
		writeJSON(w, http.StatusOK, FeedbackResponse{
			Success: false,
			Message: "feedback accepted but telemetry delivery failed; retry later",
		})
		return
	}

	writeJSON(w, http.StatusOK, FeedbackResponse{Success: true})
}

func (e *FeedbackEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		rating      int
		thumbs      string
		comment     string
		submitterID string
		sessionID   string
	)
	cmd := &cobra.Command{
		Use:   "feedback <operation-id> <correlation-id>",
		Short: "Submit a judgment on a prior extraction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := FeedbackRequest{
				SpanContext: SpanContextBody{OperationID: args[0], CorrelationID: args[1]},
				Comment:     comment,
				SubmitterID: submitterID,
				SessionID:   sessionID,
			}
			switch {
			case cmd.Flags().Changed("rating"):
				req.FeedbackType = string(feedback.KindRating)
				req.Rating = rating
			case thumbs != "":
				req.FeedbackType = string(feedback.KindThumbs)
				req.Thumbs = thumbs
			case comment != "":
				req.FeedbackType = string(feedback.KindComment)
			default:
				return errors.New("one of --rating, --thumbs or --comment is required")
			}

			client := api.NewClient(getServerURL())
			var resp FeedbackResponse
			if err := client.Post("/feedback", req, &resp); err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "Rating in [1, 5]")
	cmd.Flags().StringVar(&thumbs, "thumbs", "", `"up" or "down"`)
	cmd.Flags().StringVar(&comment, "comment", "", "Free-text comment")
	cmd.Flags().StringVar(&submitterID, "submitter", "", "Submitter identifier")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier")
	return cmd
}
