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

// WeightedBitmap is one precomputed scoring bucket, best-first; several
// rules (Words, Typo, Attribute, Exactness, Proximity) reduce to "classify
// every candidate into one of a handful of quality buckets" once the
// per-term matching work has already resolved term->docids, so they share
// this one Rule implementation instead of each reimplementing bucket
// bookkeeping.
type WeightedBitmap struct {
	Label string
	Bitmap *roaring.Bitmap
}

// OrderedBitmapRule is a Rule over a fixed, caller-supplied best-first list
// of WeightedBitmap buckets. Start intersects each bucket with the current
// candidate set in order and removes matched ids from later buckets, so a
// document is emitted in exactly the first (best) bucket it qualifies for.
type OrderedBitmapRule struct {
	name    string
	buckets []WeightedBitmap

	remaining []*roaring.Bitmap
	pos       int
}

// NewOrderedBitmapRule builds a Rule named name over buckets, which must
// already be ordered best-first.
func NewOrderedBitmapRule(name string, buckets []WeightedBitmap) *OrderedBitmapRule {
	return &OrderedBitmapRule{name: name, buckets: buckets}
}

func (r *OrderedBitmapRule) Name() string { return r.name }

func (r *OrderedBitmapRule) Start(candidates *roaring.Bitmap) error {
	r.remaining = r.remaining[:0]
	seen := roaring.New()
	for _, b := range r.buckets {
		inter := roaring.And(candidates, b.Bitmap)
		inter.AndNot(seen)
		r.remaining = append(r.remaining, inter)
		seen.Or(inter)
	}
	// anything in candidates matched by none of the buckets forms a final,
	// worst-ranked bucket of its own.
	leftover := roaring.AndNot(candidates, seen)
	r.remaining = append(r.remaining, leftover)
	r.pos = 0
	return nil
}

func (r *OrderedBitmapRule) Next() (*roaring.Bitmap, bool, error) {
	for r.pos < len(r.remaining) {
		b := r.remaining[r.pos]
		r.pos++
		if !b.IsEmpty() {
			return b, true, nil
		}
	}
	return nil, false, nil
}
