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

// maxCountedWords caps field_id_word_count_docids: fields longer than this
// are all bucketed under the same count, since the Words ranking rule only
// needs "is this field short enough that every query term could plausibly
// match", not an exact count past the cap.
const maxCountedWords = tokenizer.MaxCountedWords

// WordCountExtractor populates field_id_word_count_docids. Docs are only
// recorded under the bucket for their final word count per field: old and
// new counts that happen to be equal produce no Deladd entries at all (an
// Update that doesn't change a field's word count is a no-op here).
type WordCountExtractor struct{}

func (WordCountExtractor) Extract(op Operation, meta *fields.MetadataBuilder, snap *fields.Snapshot, arena *Arena, out *Deladd) error {
	oldCounts, err := wordCounts(op.Old, meta, snap, &arena.JSON)
	if err != nil {
		return err
	}
	newCounts, err := wordCounts(op.New, meta, snap, &arena.JSON)
	if err != nil {
		return err
	}
	for fieldID, oldCount := range oldCounts {
		if newCounts[fieldID] == oldCount {
			continue // present in both with the same count: no change
		}
		k := TableKey(kv.FieldIdWordCountDocids, codec.FieldWordCountKey(fieldID, oldCount))
		out.del(k, op.InternalID)
	}
	for fieldID, newCount := range newCounts {
		if oldCounts[fieldID] == newCount {
			if _, hadOld := oldCounts[fieldID]; hadOld {
				continue
			}
		}
		k := TableKey(kv.FieldIdWordCountDocids, codec.FieldWordCountKey(fieldID, newCount))
		out.add(k, op.InternalID)
	}
	return nil
}

func wordCounts(rec codec.Record, meta *fields.MetadataBuilder, snap *fields.Snapshot, p *fastjson.Parser) (map[codec.FieldID]uint8, error) {
	counts := make(map[codec.FieldID]uint8)
	if rec == nil {
		return counts, nil
	}
	for fieldID, raw := range rec {
		name, ok := snap.Name(fieldID)
		if !ok || !meta.Metadata(name).Searchable {
			continue
		}
		v, err := p.ParseBytes(raw)
		if err != nil {
			continue
		}
		n := 0
		for _, text := range stringLeaves(v) {
			it := tokenizer.New(text)
			for {
				_, ok := it.Next()
				if !ok {
					break
				}
				n++
				if n >= maxCountedWords {
					break
				}
			}
			if n >= maxCountedWords {
				break
			}
		}
		if n > maxCountedWords {
			n = maxCountedWords
		}
		counts[fieldID] = uint8(n)
	}
	return counts, nil
}
