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

// Package merge combines the per-chunk Deladd outputs of the extract package
// across every extractor goroutine into the final bitmaps written in one
// write transaction, per spec.md §4.6.
package merge

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
)

// Fn combines two encoded values already stored under the same database key
// (obtained via kv.RoTx.Get) with a freshly extracted delta, producing the
// new encoded value to write back. Every target database names exactly one
// Fn; callers look it up once per merge rather than branching per key.
type Fn func(existing []byte, del, add []codec.DocumentID) ([]byte, error)

// mergeRoaringBitmaps is the Fn for every posting-list database: decode the
// existing bitmap (nil if absent), remove del, add add, and re-encode with
// the Bounded/roaring auto-detection from the codec package.
func mergeRoaringBitmaps(existing []byte, del, add []codec.DocumentID) ([]byte, error) {
	bm, err := codec.DecodeBitmap(existing)
	if err != nil {
		return nil, err
	}
	for _, id := range del {
		bm.Remove(id)
	}
	for _, id := range add {
		bm.Add(id)
	}
	if bm.IsEmpty() {
		return nil, nil
	}
	return codec.EncodeBitmap(bm)
}

// MergeRoaringBitmaps is exported for tables outside this package's direct
// control (the facet level builder reuses it for level-0 entries).
var MergeRoaringBitmaps Fn = mergeRoaringBitmaps

// keepFirst resolves a key conflict by keeping whichever value was written
// first and ignoring later writers; used for tables where the first batch
// to touch a key authoritatively owns it (e.g. facet_id_normalized_string_strings
// the first time a given normalized form is seen).
func keepFirst(existing []byte, del, add []codec.DocumentID) ([]byte, error) {
	if existing != nil {
		return existing, nil
	}
	if len(add) == 0 {
		return nil, nil
	}
	return codec.BEUint32(add[0]), nil
}

var KeepFirst Fn = keepFirst

// keepLatest always prefers the most recently extracted value, used for
// single-valued reverse-lookup keys like field_id_docid_facet_* where a
// document can only have one facet value per field per level.
func keepLatest(existing []byte, del, add []codec.DocumentID) ([]byte, error) {
	if len(add) > 0 {
		return codec.BEUint32(add[len(add)-1]), nil
	}
	if len(del) > 0 {
		return nil, nil
	}
	return existing, nil
}

var KeepLatest Fn = keepLatest

// concatU32Arrays appends newly added docids to an existing flat
// little-endian u32 array without roaring's container overhead, for
// bounded small collections that are read back element-by-element rather
// than bitmap-tested (e.g. vector store offsets).
func concatU32Arrays(existing []byte, del, add []codec.DocumentID) ([]byte, error) {
	ids := make([]codec.DocumentID, 0, len(existing)/4+len(add))
	for i := 0; i+4 <= len(existing); i += 4 {
		ids = append(ids, codec.DecodeLEUint32(existing[i:i+4]))
	}
	delSet := make(map[codec.DocumentID]struct{}, len(del))
	for _, id := range del {
		delSet[id] = struct{}{}
	}
	out := make([]byte, 0, (len(ids)+len(add))*4)
	for _, id := range ids {
		if _, ok := delSet[id]; ok {
			continue
		}
		out = append(out, codec.LEUint32(id)...)
	}
	for _, id := range add {
		out = append(out, codec.LEUint32(id)...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

var ConcatU32Arrays Fn = concatU32Arrays

// keepFirstPrefixMergeRoaringBitmaps merges like mergeRoaringBitmaps but is
// used specifically for word-prefix databases, where the "first" qualifier
// in the original name refers to only precomputing prefixes up to
// fstindex.MaxPrefixLength; the merge behavior itself is identical to a
// plain roaring union/difference, so this simply aliases it. Kept as a
// distinct named Fn (rather than reusing MergeRoaringBitmaps directly) so
// the merger's table->Fn table documents the prefix tables' provenance.
var KeepFirstPrefixMergeRoaringBitmaps Fn = mergeRoaringBitmaps

// UnionAll is a convenience helper for combining multiple bitmaps (e.g. when
// expanding a prefix query across several FST-matched terms).
func UnionAll(bitmaps ...*roaring.Bitmap) *roaring.Bitmap {
	return roaring.FastOr(bitmaps...)
}
