package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/svcctx"
)

// SchemaInfo is the wire view of a registered schema version.
type SchemaInfo struct {
	Version string   `json:"version"`
	Hash    string   `json:"hash"`
	Fields  []string `json:"fields"`
	Latest  bool     `json:"latest"`
}

func schemaInfo(v *schema.Version, latest *schema.Version) SchemaInfo {
	return SchemaInfo{
		Version: v.Version,
		Hash:    v.Hash,
		Fields:  v.Fields,
		Latest:  v.Version == latest.Version,
	}
}

// ListSchemasEndpoint handles GET /api/schema.
type ListSchemasEndpoint struct{}

var _ api.Endpoint = (*ListSchemasEndpoint)(nil)

func (e *ListSchemasEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/schema", e.handler
}

func (e *ListSchemasEndpoint) RequiresInit() bool { return true }

func (e *ListSchemasEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.SchemasFrom(r.Context())
	latest := reg.Latest()
	out := make([]SchemaInfo, 0)
	for _, v := range reg.Versions() {
		out = append(out, schemaInfo(v, latest))
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListSchemasEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List registered report schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var out []SchemaInfo
			if err := client.Get("/api/schema", &out); err != nil {
				return err
			}
			return api.Output(out)
		},
	}
}

// GetSchemaEndpoint handles GET /api/schema/{version}.
type GetSchemaEndpoint struct{}

var _ api.Endpoint = (*GetSchemaEndpoint)(nil)

func (e *GetSchemaEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/schema/{version}", e.handler
}

func (e *GetSchemaEndpoint) RequiresInit() bool { return true }

func (e *GetSchemaEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.SchemasFrom(r.Context())
	v, err := reg.Get(r.PathValue("version"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	// Full schema document, not just metadata.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(v.Raw)
}

func (e *GetSchemaEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <version>",
		Short: "Fetch a schema document by version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var out map[string]any
			if err := client.Get("/api/schema/"+args[0], &out); err != nil {
				return err
			}
			return api.Output(out)
		},
	}
}
