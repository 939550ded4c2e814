package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/extract"
	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/ingest"
	"github.com/krittin/tallyscan/internal/parse"
	"github.com/krittin/tallyscan/internal/prompt"
	"github.com/krittin/tallyscan/internal/report"
	"github.com/krittin/tallyscan/internal/svcctx"
	"github.com/krittin/tallyscan/internal/validate"
)

// ExtractResponse is the consolidated extraction result returned to the
// caller. SpanContext is the handle to persist for later feedback.
type ExtractResponse struct {
	Reports     []report.Report    `json:"reports"`
	Verdicts    []validate.Verdict `json:"verdicts"`
	SpanContext SpanContextBody    `json:"span_context"`
	Warnings    []string           `json:"warnings"`
}

// ExtractEndpoint handles POST /extract with multipart page uploads.
type ExtractEndpoint struct{}

var _ api.Endpoint = (*ExtractEndpoint)(nil)

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return true }

func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 100 << 20 // 100MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeTypedError(w, http.StatusBadRequest, "EMPTY_INPUT", "no page images uploaded")
		return
	}

	cfg, err := parseExtractionConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Pages keep upload order; PDFs expand in place so page adjacency
	// survives for station-boundary inference.
	var pages []report.PageImage
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open uploaded file: %v", err))
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read uploaded file: %v", err))
			return
		}

		if ingest.IsPDF(fh.Filename) {
			expanded, err := ingest.ExpandPDF(data, fh.Filename)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			pages = append(pages, expanded...)
			continue
		}
		pages = append(pages, report.PageImage{Data: data, Filename: fh.Filename})
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	result, err := orch.Extract(r.Context(), &report.ExtractionRequest{Pages: pages, Config: cfg})
	if err != nil {
		status, code := classifyExtractError(err)
		writeTypedError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		Reports:     result.Reports,
		Verdicts:    result.Verdicts,
		SpanContext: spanBody(result.Span),
		Warnings:    result.Warnings,
	})
}

func parseExtractionConfig(r *http.Request) (report.ExtractionConfig, error) {
	cfg := report.ExtractionConfig{
		Model:         r.FormValue("model"),
		SchemaVersion: r.FormValue("schema_version"),
	}
	if v := r.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid temperature %q", v)
		}
		cfg.Temperature = &t
	}
	if v := r.FormValue("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid max_tokens %q", v)
		}
		cfg.MaxTokens = n
	}
	return cfg, nil
}

// classifyExtractError maps pipeline errors onto distinct status codes and
// typed error codes. Truncation and provider outage must stay actionable
// and never collapse into a generic 500.
func classifyExtractError(err error) (int, string) {
	var (
		emptyInput *prompt.EmptyInputError
		badConfig  *extract.InvalidConfigError
		timeout    *gateway.TimeoutError
		rejected   *gateway.RejectedError
		down       *gateway.UnavailableError
		truncated  *parse.TruncatedResponseError
		noReports  *extract.NoReportsError
	)
	switch {
	case errors.As(err, &emptyInput):
		return http.StatusBadRequest, "EMPTY_INPUT"
	case errors.As(err, &badConfig):
		return http.StatusBadRequest, "INVALID_CONFIG"
	case errors.As(err, &timeout), errors.As(err, &down):
		return http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"
	case errors.As(err, &rejected):
		return http.StatusBadGateway, "PROVIDER_REJECTED"
	case errors.As(err, &truncated):
		return http.StatusBadGateway, "TRUNCATED_RESPONSE"
	case errors.As(err, &noReports):
		return http.StatusInternalServerError, "NO_REPORTS_PARSED"
	default:
		return http.StatusInternalServerError, "EXTRACTION_FAILED"
	}
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		model         string
		temperature   string
		maxTokens     string
		schemaVersion string
	)
	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Extract ballot reports from page images or scanned PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ExtractResponse
			err := client.PostFiles("/extract", args, map[string]string{
				"model":          model,
				"temperature":    temperature,
				"max_tokens":     maxTokens,
				"schema_version": schemaVersion,
			}, &resp)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model ID override")
	cmd.Flags().StringVar(&temperature, "temperature", "", "Sampling temperature [0,2]")
	cmd.Flags().StringVar(&maxTokens, "max-tokens", "", "Max output tokens (0,65536]")
	cmd.Flags().StringVar(&schemaVersion, "schema-version", "", "Schema version to extract against")
	return cmd
}
