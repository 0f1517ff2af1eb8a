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

// Package search drives the ranking-rule pipeline against the candidate
// bitmap a query resolves to, applying distinct and pagination on top of
// the best-first bucket stream the ranking package produces.
package search

import (
	"strconv"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// Distinct lets at most one document per distinct value pass, applied as a
// post-filter over the ranking pipeline's best-first bucket stream: since
// buckets arrive best-ranked first, the first document seen for a given
// value is always the one kept (spec.md §4.11).
type Distinct interface {
	// Admit reports whether id should be kept. Called once per candidate, in
	// the order the ranking pipeline emits them (best-ranked first).
	Admit(id codec.DocumentID) (bool, error)
}

// NoopDistinct admits every document; used when no distinct field is set.
type NoopDistinct struct{}

func (NoopDistinct) Admit(codec.DocumentID) (bool, error) { return true, nil }

// FacetDistinct admits the first document seen for each value of fieldID,
// resolving a document's value via the reverse facet lookup tables
// (field_id_docid_facet_f64s / field_id_docid_facet_strings), since that is
// the only place a single document's own facet value can be read back
// without rescanning the whole level-0 facet tree.
type FacetDistinct struct {
	tx      kv.RoTx
	fieldID codec.FieldID
	seen    map[string]struct{}
}

// NewFacetDistinct builds a Distinct over fieldID. A field is either a
// numeric or a string facet, never both (per the extractor's facet
// classification), so Admit simply tries the numeric reverse table first
// and falls back to the string one rather than requiring the caller to
// already know the field's facet type.
func NewFacetDistinct(tx kv.RoTx, fieldID codec.FieldID) *FacetDistinct {
	return &FacetDistinct{tx: tx, fieldID: fieldID, seen: make(map[string]struct{})}
}

func (d *FacetDistinct) Admit(id codec.DocumentID) (bool, error) {
	value, ok, err := d.lookupValue(id)
	if err != nil {
		return false, err
	}
	if !ok {
		// No facet value for this document on the distinct field: spec.md
		// doesn't special-case this, so it behaves like any other value and
		// only the first such document is admitted.
		value = ""
	}
	if _, dup := d.seen[value]; dup {
		return false, nil
	}
	d.seen[value] = struct{}{}
	return true, nil
}

// lookupValue scans the reverse tables' docid-prefixed entries for id and
// returns the first (only) value recorded for it.
func (d *FacetDistinct) lookupValue(id codec.DocumentID) (string, bool, error) {
	prefix := reverseFacetPrefix(d.fieldID, id)

	var value string
	var found bool
	err := d.tx.ForPrefix(kv.FieldIdDocidFacetF64s, prefix, func(k, _ []byte) (bool, error) {
		value = formatFloat(codec.DecodeBEFloat64(k[len(prefix):]))
		found = true
		return false, nil
	})
	if err != nil || found {
		return value, found, err
	}

	err = d.tx.ForPrefix(kv.FieldIdDocidFacetStrings, prefix, func(k, _ []byte) (bool, error) {
		value = string(k[len(prefix):])
		found = true
		return false, nil
	})
	return value, found, err
}

// reverseFacetPrefix matches extract/facet.go's emitNumberFacet/emitStringFacet
// key layout: field_id and docid are both encoded as 4-byte big-endian, not
// packed to FieldID's 2-byte width.
func reverseFacetPrefix(fieldID codec.FieldID, id codec.DocumentID) []byte {
	b := make([]byte, 0, 8)
	b = append(b, codec.BEUint32(uint32(fieldID))...)
	b = append(b, codec.BEUint32(id)...)
	return b
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
