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

import "github.com/RoaringBitmap/roaring/v2"

// ExactMatch is one query word position's resolved document set from
// exact_word_docids: documents where that position was matched by the exact,
// unmodified query term rather than a typo-tolerant, prefix, or synonym
// variant.
type ExactMatch struct {
	Position int
	Docids   *roaring.Bitmap
}

// NewExactnessRule builds the Exactness rule: documents matching every query
// term verbatim rank best, down to documents matching none of them verbatim
// (but still present in candidates via typo/prefix/synonym resolution).
func NewExactnessRule(matches []ExactMatch, candidates *roaring.Bitmap) *OrderedBitmapRule {
	n := len(matches)
	exactCount := make(map[uint32]int)
	it := candidates.Iterator()
	for it.HasNext() {
		exactCount[it.Next()] = 0
	}
	for _, m := range matches {
		mi := m.Docids.Iterator()
		for mi.HasNext() {
			id := mi.Next()
			if _, ok := exactCount[id]; ok {
				exactCount[id]++
			}
		}
	}

	buckets := make([]WeightedBitmap, 0, n+1)
	for missing := 0; missing <= n; missing++ {
		want := n - missing
		bm := roaring.New()
		for id, count := range exactCount {
			if count == want {
				bm.Add(id)
			}
		}
		buckets = append(buckets, WeightedBitmap{Label: "exactness", Bitmap: bm})
	}
	return NewOrderedBitmapRule("exactness", buckets)
}
