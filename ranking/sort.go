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
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/kv"
)

// SortRule wraps facet.Sort as a ranking Rule, for a user-requested
// "field:asc"/"field:desc" sort criterion placed anywhere in the ranking
// rule list (spec.md allows sort criteria to be interleaved with the
// built-in rules, not just appended after them).
type SortRule struct {
	tx      kv.RoTx
	fieldID codec.FieldID
	dir     facet.Direction

	inner *facet.Sort
}

// NewSortRule builds a Rule that orders by fieldID's facet value in dir.
func NewSortRule(tx kv.RoTx, fieldID codec.FieldID, dir facet.Direction) *SortRule {
	return &SortRule{tx: tx, fieldID: fieldID, dir: dir}
}

func (r *SortRule) Name() string { return "sort" }

func (r *SortRule) Start(candidates *roaring.Bitmap) error {
	s, err := facet.NewSort(r.tx, r.fieldID, candidates, r.dir)
	if err != nil {
		return err
	}
	r.inner = s
	return nil
}

func (r *SortRule) Next() (*roaring.Bitmap, bool, error) {
	_, docids, ok, err := r.inner.Next()
	return docids, ok, err
}
