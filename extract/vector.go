// Copyright 2024 The Searchcore Authors
// This file is part of Searchcore.
//
// Searchcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Searchcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Searchcore. If not, see <http://www.gnu.org/licenses/>.

package extract

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	json "github.com/goccy/go-json"
)

// VectorSourceKind distinguishes the two ways a document's embedding can be
// obtained, per the embedder configuration supplement pulled from
// original_source/milli/src/vector (SPEC_FULL.md §6).
type VectorSourceKind int

const (
	// UserProvided: the document already carries the embedding under
	// "_vectors.<name>"; the extractor only validates its dimensionality.
	UserProvided VectorSourceKind = iota
	// Template: the extractor renders a Go template against the document to
	// produce the text that an embedder would turn into a vector. The
	// extractor itself does not call out to an embedding model; it stops at
	// producing the rendered prompt, which an embedder client (RestEmbedder
	// or the caller's own) consumes.
	Template
)

// EmbedderConfig describes one configured embedder.
type EmbedderConfig struct {
	Name       string
	Kind       VectorSourceKind
	Dimensions int
	Template   string // only used when Kind == Template
}

// VectorExtractor renders the embedding prompt (Template) or validates the
// provided vector (UserProvided) for one embedder.
type VectorExtractor struct {
	Config EmbedderConfig
	tmpl   *template.Template
}

// NewVectorExtractor compiles cfg.Template (if any) once, ahead of use
// across a whole batch.
func NewVectorExtractor(cfg EmbedderConfig) (*VectorExtractor, error) {
	ve := &VectorExtractor{Config: cfg}
	if cfg.Kind == Template {
		t, err := template.New(cfg.Name).Funcs(sprig.TxtFuncMap()).Parse(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("vector extractor %q: parse template: %w", cfg.Name, err)
		}
		ve.tmpl = t
	}
	return ve, nil
}

// RegeneratePrompt renders the embedder's template against a document
// record's decoded JSON fields. Only meaningful when Config.Kind == Template.
func (ve *VectorExtractor) RegeneratePrompt(doc map[string]any) (string, error) {
	if ve.tmpl == nil {
		return "", fmt.Errorf("vector extractor %q: not a template embedder", ve.Config.Name)
	}
	var buf bytes.Buffer
	if err := ve.tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("vector extractor %q: render: %w", ve.Config.Name, err)
	}
	return buf.String(), nil
}

// ValidateProvided checks a user-supplied vector's dimensionality.
func (ve *VectorExtractor) ValidateProvided(v []float32) error {
	if len(v) != ve.Config.Dimensions {
		return fmt.Errorf("vector extractor %q: expected %d dimensions, got %d", ve.Config.Name, ve.Config.Dimensions, len(v))
	}
	return nil
}

// vectorsFieldPrefix is the synthetic attribute namespace a document's
// embeddings live under: "_vectors.<name>" for the stored vector itself, and
// "_vectors.<name>.regenerate" as a boolean flag requesting the Template
// extractor re-render and re-embed rather than reuse a previously stored
// vector (SPEC_FULL.md §6).
const vectorsFieldPrefix = "_vectors."

// RegenerateFieldName returns the synthetic field name carrying the
// regenerate flag for embedder name.
func RegenerateFieldName(name string) string {
	return vectorsFieldPrefix + name + ".regenerate"
}

// VectorFieldName returns the synthetic field name an embedder's
// user-provided (or last-embedded) vector is stored under.
func VectorFieldName(name string) string {
	return vectorsFieldPrefix + name
}

// decodeUserVector decodes a raw JSON array of floats into a []float32.
func decodeUserVector(raw []byte) ([]float32, error) {
	var f64 []float64
	if err := json.Unmarshal(raw, &f64); err != nil {
		return nil, err
	}
	out := make([]float32, len(f64))
	for i, f := range f64 {
		out[i] = float32(f)
	}
	return out, nil
}

// DecodeUserVector is the exported form of decodeUserVector, for callers
// outside this package (the index package's document-ingestion pipeline)
// that need to parse a "_vectors.<name>" field's raw JSON the same way the
// extractor itself does.
func DecodeUserVector(raw []byte) ([]float32, error) {
	return decodeUserVector(raw)
}
