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
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

// FacetExtractor populates the facet databases for filterable/sortable
// fields: facet_id_f64_docids and facet_id_string_docids level-0 entries,
// facet_id_exists/is_null/is_empty_docids, the field_id_docid_facet_* reverse
// lookup tables, and facet_id_normalized_string_strings (keyed by field id
// and normalized value; the original, case-preserving string is not
// stored there). Hierarchical facet levels above 0 are built
// separately by the facet package once a full batch of level-0 entries has
// landed (spec.md §4.7), not per-document.
type FacetExtractor struct{}

func (FacetExtractor) Extract(op Operation, meta *fields.MetadataBuilder, snap *fields.Snapshot, arena *Arena, out *Deladd) error {
	if op.Old != nil {
		if err := walkFacets(op.Old, meta, snap, &arena.JSON, op.InternalID, out, true); err != nil {
			return err
		}
	}
	if op.New != nil {
		if err := walkFacets(op.New, meta, snap, &arena.JSON, op.InternalID, out, false); err != nil {
			return err
		}
	}
	return nil
}

func walkFacets(rec codec.Record, meta *fields.MetadataBuilder, snap *fields.Snapshot, p *fastjson.Parser, id codec.DocumentID, out *Deladd, isDel bool) error {
	for fieldID, raw := range rec {
		name, ok := snap.Name(fieldID)
		if !ok {
			continue
		}
		m := meta.Metadata(name)
		if !m.Filterable && !m.Sortable {
			continue
		}
		v, err := p.ParseBytes(raw)
		if err != nil {
			continue
		}
		set := func(table string, key []byte) { apply(out, TableKey(table, key), id, isDel) }

		set(kv.FacetIdExistsDocids, codec.BEUint32(uint32(fieldID)))

		switch v.Type() {
		case fastjson.TypeNull:
			set(kv.FacetIdIsNullDocids, codec.BEUint32(uint32(fieldID)))
		case fastjson.TypeString:
			b, _ := v.StringBytes()
			s := string(b)
			if s == "" {
				set(kv.FacetIdIsEmptyDocids, codec.BEUint32(uint32(fieldID)))
				continue
			}
			emitStringFacet(out, fieldID, s, id, isDel)
		case fastjson.TypeArray:
			arr := v.GetArray()
			if len(arr) == 0 {
				set(kv.FacetIdIsEmptyDocids, codec.BEUint32(uint32(fieldID)))
				continue
			}
			for _, item := range arr {
				emitScalarFacet(out, fieldID, item, id, isDel)
			}
		case fastjson.TypeObject:
			empty := true
			v.GetObject().Visit(func(_ []byte, _ *fastjson.Value) { empty = false })
			if empty {
				set(kv.FacetIdIsEmptyDocids, codec.BEUint32(uint32(fieldID)))
			}
		case fastjson.TypeNumber:
			f := v.GetFloat64()
			emitNumberFacet(out, fieldID, f, id, isDel)
		case fastjson.TypeTrue, fastjson.TypeFalse:
			// booleans are indexed as their canonical lowercase string form
			emitStringFacet(out, fieldID, strconv.FormatBool(v.Type() == fastjson.TypeTrue), id, isDel)
		}
	}
	return nil
}

func emitScalarFacet(out *Deladd, fieldID codec.FieldID, v *fastjson.Value, id codec.DocumentID, isDel bool) {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		emitStringFacet(out, fieldID, string(b), id, isDel)
	case fastjson.TypeNumber:
		emitNumberFacet(out, fieldID, v.GetFloat64(), id, isDel)
	}
}

func emitNumberFacet(out *Deladd, fieldID codec.FieldID, f float64, id codec.DocumentID, isDel bool) {
	if codec.IsFacetNaN(f) {
		return
	}
	f = codec.NormalizeFacetFloat(f)
	levelKey := codec.FacetF64Key{FieldID: fieldID, Level: 0, Left: f, Right: f}.Encode()
	apply(out, TableKey(kv.FacetIdF64Docids, levelKey), id, isDel)
	apply(out, TableKey(kv.FieldIdDocidFacetF64s, append(codec.BEUint32(uint32(fieldID)), append(codec.BEUint32(id), codec.BEFloat64(f)...)...)), id, isDel)
}

func emitStringFacet(out *Deladd, fieldID codec.FieldID, s string, id codec.DocumentID, isDel bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	levelKey := codec.FacetStringKey{FieldID: fieldID, Level: 0, Left: normalized, Right: normalized}.Encode()
	apply(out, TableKey(kv.FacetIdStringDocids, levelKey), id, isDel)

	fidKey := append(codec.BEUint32(uint32(fieldID)), codec.BEUint32(id)...)
	fidKey = append(fidKey, normalized...)
	apply(out, TableKey(kv.FieldIdDocidFacetStrings, fidKey), id, isDel)

	normKey := append(codec.BEUint32(uint32(fieldID)), normalized...)
	apply(out, TableKey(kv.FacetIdNormalizedStringStrings, normKey), id, isDel)
}

func apply(out *Deladd, key string, id codec.DocumentID, isDel bool) {
	if isDel {
		out.del(key, id)
	} else {
		out.add(key, id)
	}
}
