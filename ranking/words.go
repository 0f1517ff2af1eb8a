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

// TermMatch is one query word position's resolved document set: the union
// of every node (exact word, typo variant, prefix, synonym) that matched at
// that position, already resolved by the search executor against
// word_docids/word_prefix_docids before ranking begins.
type TermMatch struct {
	Position int
	Docids   *roaring.Bitmap
}

// NewWordsRule builds the Words rule: documents matching every query term
// rank best, documents missing one term next, and so on, regardless of
// which terms are missing (spec.md's "Words" rule only counts how many terms
// are present, not which).
func NewWordsRule(matches []TermMatch, candidates *roaring.Bitmap) *OrderedBitmapRule {
	n := len(matches)
	// matchCount[id] = number of positions that matched doc id.
	matchCount := make(map[uint32]int)
	it := candidates.Iterator()
	for it.HasNext() {
		matchCount[it.Next()] = 0
	}
	for _, m := range matches {
		mi := m.Docids.Iterator()
		for mi.HasNext() {
			id := mi.Next()
			if _, ok := matchCount[id]; ok {
				matchCount[id]++
			}
		}
	}

	buckets := make([]WeightedBitmap, 0, n+1)
	for missing := 0; missing <= n; missing++ {
		want := n - missing
		bm := roaring.New()
		for id, count := range matchCount {
			if count == want {
				bm.Add(id)
			}
		}
		buckets = append(buckets, WeightedBitmap{Label: "words", Bitmap: bm})
	}
	return NewOrderedBitmapRule("words", buckets)
}
