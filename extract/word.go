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
	"github.com/valyala/fastjson"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/fstindex"
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/tokenizer"
)

// WordExtractor populates word_docids, exact_word_docids, word_position_docids
// and word_fid_docids from the searchable attributes of a document.
//
// exact_word_docids intentionally mirrors word_docids rather than holding a
// distinct term set: typo tolerance is resolved at query time by walking the
// FST with an edit-distance automaton against word_docids, while
// exact_word_docids exists so the Exactness ranking rule can test "does this
// term appear verbatim" without paying for that automaton walk.
//
// It also precomputes word_prefix_docids/exact_word_prefix_docids for every
// prefix of a term up to fstindex.MaxPrefixLength runes, so a short prefix
// query resolves with a single bitmap union instead of a key-range scan.
type WordExtractor struct{}

func (WordExtractor) Extract(op Operation, meta *fields.MetadataBuilder, snap *fields.Snapshot, arena *Arena, out *Deladd) error {
	if op.Old != nil {
		if err := walkSearchable(op.Old, meta, snap, &arena.JSON, arena.Normalize, func(fieldID codec.FieldID, term string, wordIndex int) {
			recordWord(out, fieldID, term, wordIndex, op.InternalID, true)
		}); err != nil {
			return err
		}
	}
	if op.New != nil {
		if err := walkSearchable(op.New, meta, snap, &arena.JSON, arena.Normalize, func(fieldID codec.FieldID, term string, wordIndex int) {
			recordWord(out, fieldID, term, wordIndex, op.InternalID, false)
		}); err != nil {
			return err
		}
	}
	return nil
}

func recordWord(out *Deladd, fieldID codec.FieldID, term string, wordIndex int, id codec.DocumentID, isDel bool) {
	keys := []string{
		TableKey(kv.WordDocids, []byte(term)),
		TableKey(kv.ExactWordDocids, []byte(term)),
		TableKey(kv.WordFidDocids, codec.WordPositionKey(term, uint32(fieldID))),
	}
	// tokens past tokenizer.MaxWordIndex are left out of the position table only
	if wordIndex <= tokenizer.MaxWordIndex {
		pos := codec.PackPosition(uint32(fieldID), uint32(wordIndex))
		keys = append(keys, TableKey(kv.WordPositionDocids, codec.WordPositionKey(term, pos)))
	}
	for _, prefix := range termPrefixes(term, fstindex.MaxPrefixLength) {
		keys = append(keys,
			TableKey(kv.WordPrefixDocids, []byte(prefix)),
			TableKey(kv.ExactWordPrefixDocids, []byte(prefix)),
		)
	}
	for _, k := range keys {
		if isDel {
			out.del(k, id)
		} else {
			out.add(k, id)
		}
	}
}

// termPrefixes returns every rune-prefix of term up to maxLen runes long
// (including term itself when it is no longer than maxLen).
func termPrefixes(term string, maxLen int) []string {
	runes := []rune(term)
	n := len(runes)
	if n > maxLen {
		n = maxLen
	}
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, string(runes[:i]))
	}
	return out
}

// walkSearchable decodes every searchable field in rec and calls fn for each
// token, with wordIndex restarting at 0 for each string value and counting
// every token (it is not capped at tokenizer.MaxWordIndex; recordWord
// applies that bound).
func walkSearchable(rec codec.Record, meta *fields.MetadataBuilder, snap *fields.Snapshot, p *fastjson.Parser, norm *tokenizer.NormalizeCache, fn func(fieldID codec.FieldID, term string, wordIndex int)) error {
	for fieldID, raw := range rec {
		name, ok := snap.Name(fieldID)
		if !ok || !meta.Metadata(name).Searchable {
			continue
		}
		v, err := p.ParseBytes(raw)
		if err != nil {
			continue // non-JSON or unparsable leaf values are simply not searchable
		}
		for _, text := range stringLeaves(v) {
			it := tokenizer.New(text)
			// tok.WordIndex saturates at tokenizer.MaxWordIndex, so n is the
			// token's unsaturated index.
			for n := 0; ; n++ {
				tok, ok := it.Next()
				if !ok {
					break
				}
				fn(fieldID, norm.Normalize(tok.Text), n)
			}
		}
	}
	return nil
}

// stringLeaves collects every string leaf reachable from v: the value
// itself if it's a string, or recursively every string in an array/object.
func stringLeaves(v *fastjson.Value) []string {
	var out []string
	var walk func(*fastjson.Value)
	walk = func(v *fastjson.Value) {
		switch v.Type() {
		case fastjson.TypeString:
			b, _ := v.StringBytes()
			out = append(out, string(b))
		case fastjson.TypeArray:
			for _, item := range v.GetArray() {
				walk(item)
			}
		case fastjson.TypeObject:
			obj := v.GetObject()
			obj.Visit(func(_ []byte, item *fastjson.Value) {
				walk(item)
			})
		}
	}
	walk(v)
	return out
}
