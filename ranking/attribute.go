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

package ranking

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// FieldMatch is one query term's resolved document set restricted to a
// single field (from word_fid_docids), annotated with that field's rank in
// the searchable-attributes order (0 = most important, per the order
// configured in settings).
type FieldMatch struct {
	FieldRank int
	Docids    *roaring.Bitmap
}

// NewAttributeRule ranks documents by the best (lowest-rank) searchable
// field any query term matched in: a match in the title ranks a document
// ahead of an otherwise-identical match only in the body.
func NewAttributeRule(matches []FieldMatch, candidates *roaring.Bitmap) *OrderedBitmapRule {
	best := make(map[uint32]int)
	for _, m := range matches {
		it := m.Docids.Iterator()
		for it.HasNext() {
			id := it.Next()
			if cur, ok := best[id]; !ok || m.FieldRank < cur {
				best[id] = m.FieldRank
			}
		}
	}

	ranks := make(map[int]*roaring.Bitmap)
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		r, ok := best[id]
		if !ok {
			continue
		}
		bm, ok := ranks[r]
		if !ok {
			bm = roaring.New()
			ranks[r] = bm
		}
		bm.Add(id)
	}

	rankList := make([]int, 0, len(ranks))
	for r := range ranks {
		rankList = append(rankList, r)
	}
	sort.Ints(rankList)

	buckets := make([]WeightedBitmap, 0, len(rankList))
	for _, r := range rankList {
		buckets = append(buckets, WeightedBitmap{Label: "attribute", Bitmap: ranks[r]})
	}
	return NewOrderedBitmapRule("attribute", buckets)
}
