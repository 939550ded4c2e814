// Package schema holds the versioned target JSON schema describing one
// ballot report. Every extraction is tagged with the content hash of the
// schema version it ran under so downstream analysis can separate results
// generated under different schemas.
package schema

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Version is one registered schema version. Never mutated after load.
type Version struct {
	// Version is the semantic version string (e.g. "1.0.0").
	Version string `json:"version"`
	// Hash is the hex sha256 of the schema document.
	Hash string `json:"hash"`
	// Fields lists the top-level report properties.
	Fields []string `json:"fields"`
	// Raw is the schema document as embedded.
	Raw json.RawMessage `json:"-"`

	compiled *jsonschema.Schema
}

// registry maps semantic version to embedded filename. Append-only: a
// schema change gets a new entry, existing entries are never edited.
var registry = map[string]string{
	"1.0.0": "schemas/report_v1.json",
}

// latestVersion is the version handed out when the caller does not pin one.
const latestVersion = "1.0.0"

// Registry holds compiled schema versions.
type Registry struct {
	versions map[string]*Version
}

// Load reads, hashes, and compiles every embedded schema version.
func Load() (*Registry, error) {
	r := &Registry{versions: make(map[string]*Version, len(registry))}

	for version, filename := range registry {
		raw, err := schemaFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", version, err)
		}

		sum := sha256.Sum256(raw)

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(filename, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("failed to load schema %s: %w", version, err)
		}
		compiled, err := compiler.Compile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", version, err)
		}

		fields, err := topLevelFields(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect schema %s: %w", version, err)
		}

		r.versions[version] = &Version{
			Version:  version,
			Hash:     hex.EncodeToString(sum[:]),
			Fields:   fields,
			Raw:      raw,
			compiled: compiled,
		}
	}

	return r, nil
}

// Get returns a schema version, or the latest when version is empty.
func (r *Registry) Get(version string) (*Version, error) {
	if version == "" {
		version = latestVersion
	}
	v, ok := r.versions[version]
	if !ok {
		return nil, fmt.Errorf("unknown schema version %q", version)
	}
	return v, nil
}

// Latest returns the newest registered schema version.
func (r *Registry) Latest() *Version {
	return r.versions[latestVersion]
}

// Versions returns all registered versions sorted by version string.
func (r *Registry) Versions() []*Version {
	out := make([]*Version, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Validate checks a normalized report document against this version.
func (v *Version) Validate(doc json.RawMessage) error {
	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return fmt.Errorf("failed to decode report for validation: %w", err)
	}
	if err := v.compiled.Validate(parsed); err != nil {
		return fmt.Errorf("report does not match schema %s: %w", v.Version, err)
	}
	return nil
}

// ShortHash returns the first 12 hex characters of the content hash, the
// form used to tag telemetry events.
func (v *Version) ShortHash() string {
	if len(v.Hash) < 12 {
		return v.Hash
	}
	return v.Hash[:12]
}

func topLevelFields(raw json.RawMessage) ([]string, error) {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields, nil
}
