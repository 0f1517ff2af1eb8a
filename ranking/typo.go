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

// TypoMatch is one term's resolved document set at a given edit distance
// (0 for an exact or prefix match, 1 or 2 for a typo-tolerant match).
type TypoMatch struct {
	Position int
	Typos    int
	Docids   *roaring.Bitmap
}

// NewTypoRule builds the Typo rule: for each document, sum the minimum edit
// distance it needed at every position (0 if a position matched exactly as
// well as with typos), then rank ascending by that total.
func NewTypoRule(matches []TypoMatch, positions []int, candidates *roaring.Bitmap) *OrderedBitmapRule {
	best := make(map[uint32]map[int]int) // docid -> position -> min typos
	for _, m := range matches {
		it := m.Docids.Iterator()
		for it.HasNext() {
			id := it.Next()
			if _, ok := best[id]; !ok {
				best[id] = make(map[int]int)
			}
			if cur, ok := best[id][m.Position]; !ok || m.Typos < cur {
				best[id][m.Position] = m.Typos
			}
		}
	}

	totals := make(map[uint32]int)
	maxTotal := 0
	cIt := candidates.Iterator()
	for cIt.HasNext() {
		id := cIt.Next()
		sum := 0
		for _, pos := range positions {
			if t, ok := best[id][pos]; ok {
				sum += t
			}
		}
		totals[id] = sum
		if sum > maxTotal {
			maxTotal = sum
		}
	}

	order := make([]int, 0, maxTotal+1)
	for i := 0; i <= maxTotal; i++ {
		order = append(order, i)
	}
	sort.Ints(order)

	buckets := make([]WeightedBitmap, 0, len(order))
	for _, total := range order {
		bm := roaring.New()
		for id, sum := range totals {
			if sum == total {
				bm.Add(id)
			}
		}
		buckets = append(buckets, WeightedBitmap{Label: "typo", Bitmap: bm})
	}
	return NewOrderedBitmapRule("typo", buckets)
}
