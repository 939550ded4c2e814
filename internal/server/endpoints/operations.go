package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/svcctx"
)

// LastOperationEndpoint handles GET /api/operations/last. It serves the
// fallback handle for clients that lost the span context from their own
// extraction response. Under concurrent extractions the slot holds the
// most recent completion, which may not be the caller's.
type LastOperationEndpoint struct{}

var _ api.Endpoint = (*LastOperationEndpoint)(nil)

func (e *LastOperationEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/operations/last", e.handler
}

func (e *LastOperationEndpoint) RequiresInit() bool { return true }

func (e *LastOperationEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	span, ok := svcctx.OrchestratorFrom(r.Context()).LastSpan()
	if !ok {
		writeError(w, http.StatusNotFound, "no completed extraction yet")
		return
	}
	writeJSON(w, http.StatusOK, spanBody(span))
}

func (e *LastOperationEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "last-operation",
		Short: "Show the span context of the most recent completed extraction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var out SpanContextBody
			if err := client.Get("/api/operations/last", &out); err != nil {
				return err
			}
			return api.Output(out)
		},
	}
}
