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

// GeoDistance is one document's great-circle distance, in meters, to the
// `_geoPoint(lat,lng)` sort anchor given in the query. The search executor
// resolves these once per query, with one geo index Distance lookup per
// live document, not per rule invocation.
type GeoDistance struct {
	Docid    uint32
	Distance float64
}

// Direction mirrors facet.Direction for the two orders _geoPoint(...):asc
// and _geoPoint(...):desc can be sorted in.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// NewGeoRule builds the Geo rule: documents closest to the anchor point rank
// first in Ascending order, farthest first in Descending. Documents with no
// resolved distance (no _geo value, or outside any filtered radius) form a
// trailing bucket, worst-ranked regardless of direction, handled by
// OrderedBitmapRule.Start's leftover bucket.
func NewGeoRule(distances []GeoDistance, dir Direction) *OrderedBitmapRule {
	sorted := make([]GeoDistance, len(distances))
	copy(sorted, distances)
	if dir == Ascending {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance > sorted[j].Distance })
	}

	buckets := make([]WeightedBitmap, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Distance == sorted[i].Distance {
			j++
		}
		bm := roaring.New()
		for _, gd := range sorted[i:j] {
			bm.Add(gd.Docid)
		}
		buckets = append(buckets, WeightedBitmap{Label: "geo", Bitmap: bm})
		i = j
	}
	return NewOrderedBitmapRule("geo", buckets)
}
