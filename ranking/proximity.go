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

// PairProximity is one adjacent query-word pair's resolved document set at a
// specific proximity value, already looked up from word_pair_proximity_docids
// (see extract.ProximityExtractor for how the index_proximity value itself
// is computed at indexing time).
type PairProximity struct {
	PairIndex int // which adjacent query-word pair this is (0 = terms 0,1)
	Proximity int
	Docids    *roaring.Bitmap
}

// NewProximityRule ranks documents by the sum of the best (lowest) proximity
// found for every adjacent query-word pair, ascending: documents where every
// query word appears close together and in order rank best.
func NewProximityRule(matches []PairProximity, numPairs int, candidates *roaring.Bitmap) *OrderedBitmapRule {
	best := make(map[uint32]map[int]int)
	for _, m := range matches {
		it := m.Docids.Iterator()
		for it.HasNext() {
			id := it.Next()
			if _, ok := best[id]; !ok {
				best[id] = make(map[int]int)
			}
			if cur, ok := best[id][m.PairIndex]; !ok || m.Proximity < cur {
				best[id][m.PairIndex] = m.Proximity
			}
		}
	}

	const worstPerPair = 9 // 8 is the capped window, +1 for the reversed-order penalty
	totals := make(map[uint32]int)
	maxTotal := 0
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		sum := 0
		for pair := 0; pair < numPairs; pair++ {
			if p, ok := best[id][pair]; ok {
				sum += p
			} else {
				sum += worstPerPair
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
		buckets = append(buckets, WeightedBitmap{Label: "proximity", Bitmap: bm})
	}
	return NewOrderedBitmapRule("proximity", buckets)
}
