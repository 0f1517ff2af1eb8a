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
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/tokenizer"
)

// maxProximityWindow bounds how far apart two tokens may be and still
// contribute a word-pair-proximity entry; anything further is simply never
// recorded; the ranking rule falls back to its own worst-case treatment.
const maxProximityWindow = 8

// ProximityExtractor populates word_pair_proximity_docids: for every ordered
// pair of distinct terms within maxProximityWindow tokens of each other in
// the same searchable field, the asymmetric distance between them.
//
// The distance formula is ported as-is from best_proximity.rs: terms in
// their natural reading order (lhs at or before rhs) are scored by the raw
// token gap capped at 8; a pair found in reverse order costs one extra, to
// bias ranking towards documents whose word order matches the query.
type ProximityExtractor struct{}

func indexProximity(lhs, rhs int) int {
	if lhs <= rhs {
		d := rhs - lhs
		if d > maxProximityWindow {
			return maxProximityWindow
		}
		return d
	}
	d := lhs - rhs
	if d > maxProximityWindow {
		return maxProximityWindow + 1
	}
	return d + 1
}

func (ProximityExtractor) Extract(op Operation, meta *fields.MetadataBuilder, snap *fields.Snapshot, arena *Arena, out *Deladd) error {
	if op.Old != nil {
		if err := walkProximityPairs(op.Old, meta, snap, &arena.JSON, arena.Normalize, func(w1, w2 string, prox uint8) {
			recordProximity(out, w1, w2, prox, op.InternalID, true)
		}); err != nil {
			return err
		}
	}
	if op.New != nil {
		if err := walkProximityPairs(op.New, meta, snap, &arena.JSON, arena.Normalize, func(w1, w2 string, prox uint8) {
			recordProximity(out, w1, w2, prox, op.InternalID, false)
		}); err != nil {
			return err
		}
	}
	return nil
}

func recordProximity(out *Deladd, w1, w2 string, prox uint8, id codec.DocumentID, isDel bool) {
	k := TableKey(kv.WordPairProximityDocids, codec.WordPairProximityKey(prox, w1, w2))
	if isDel {
		out.del(k, id)
	} else {
		out.add(k, id)
	}
}

type positionedTerm struct {
	term    string
	absPos  int // running token count within the field, hard-separator-forced gap applied
}

func walkProximityPairs(rec codec.Record, meta *fields.MetadataBuilder, snap *fields.Snapshot, p *fastjson.Parser, norm *tokenizer.NormalizeCache, fn func(w1, w2 string, prox uint8)) error {
	for fieldID, raw := range rec {
		name, ok := snap.Name(fieldID)
		if !ok || !meta.Metadata(name).Searchable {
			continue
		}
		v, err := p.ParseBytes(raw)
		if err != nil {
			continue
		}
		for _, text := range stringLeaves(v) {
			terms := collectPositioned(text, norm)
			for i := range terms {
				for j := i + 1; j < len(terms) && j-i <= maxProximityWindow; j++ {
					if terms[i].term == terms[j].term {
						continue
					}
					prox := indexProximity(terms[i].absPos, terms[j].absPos)
					fn(terms[i].term, terms[j].term, uint8(prox))
				}
			}
		}
	}
	return nil
}

// collectPositioned tokenizes text into positionedTerm, forcing a hard
// separator boundary to read as the maximum proximity window: any pair of
// tokens straddling a HardSeparator is pushed more than maxProximityWindow
// tokens apart, so indexProximity caps it at maxProximityWindow.
func collectPositioned(text string, norm *tokenizer.NormalizeCache) []positionedTerm {
	it := tokenizer.New(text)
	var out []positionedTerm
	gap := 0
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		if tok.Separator == tokenizer.HardSeparator {
			gap += maxProximityWindow + 1
		}
		out = append(out, positionedTerm{term: norm.Normalize(tok.Text), absPos: len(out) + gap})
	}
	return out
}
