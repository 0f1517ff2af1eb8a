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

// Package facet builds and walks the hierarchical facet level trees used for
// numeric and string range queries (spec.md §4.7): level 0 holds one entry
// per distinct value, and each level above groups GroupSize consecutive
// level-(n-1) entries into one wider [left, right] bound. Sort walks these
// levels top-down; the filter package's range comparisons scan level 0 only
// and do not consult the levels above it.
package facet

import (
	"encoding/binary"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"
	"github.com/thomaso-mirodin/intmath/i32"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// groupEnd returns the exclusive end index of the GroupSize-wide chunk
// starting at i, clamped to n.
func groupEnd(i, n int) int {
	return int(i32.Min(int32(i+GroupSize), int32(n)))
}

// fieldPrefix encodes fieldID the same way FacetF64Key/FacetStringKey do
// (u16 BE), for use as a ForPrefix scan prefix.
func fieldPrefix(fieldID codec.FieldID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, fieldID)
	return b
}

// GroupSize is the branching factor of the facet level tree.
const GroupSize = 4

// f64Entry is one level-0 numeric facet leaf staged in the btree before the
// hierarchy is rebuilt; btree.Less orders them by value so BuildF64Levels can
// walk them in sorted order without re-sorting a slice.
type f64Entry struct {
	value  float64
	docids *roaring.Bitmap
}

func (e *f64Entry) Less(than btree.Item) bool {
	return e.value < than.(*f64Entry).value
}

// BuildF64Levels reads every level-0 entry for fieldID out of
// facet_id_f64_docids and rewrites levels 1..N above it. Level 0 itself is
// maintained incrementally by the facet extractor and is never touched here.
func BuildF64Levels(tx kv.RwTx, fieldID codec.FieldID) error {
	tree := btree.New(32)
	prefix := fieldPrefix(fieldID)
	// level 0 keys are FacetF64Key{FieldID, Level:0, Left==Right}; walk them
	// via the shared field prefix, collecting any higher level already present
	// so it can be deleted (this rebuild fully replaces it).
	var stale [][]byte
	err := tx.ForPrefix(kv.FacetIdF64Docids, prefix, func(k, v []byte) (bool, error) {
		fk := codec.DecodeFacetF64Key(k)
		if fk.Level != 0 {
			stale = append(stale, append([]byte(nil), k...))
			return true, nil
		}
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		tree.ReplaceOrInsert(&f64Entry{value: fk.Left, docids: bm})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := tx.Delete(kv.FacetIdF64Docids, k); err != nil {
			return err
		}
	}

	entries := make([]*f64Entry, 0, tree.Len())
	tree.Ascend(func(i btree.Item) bool {
		entries = append(entries, i.(*f64Entry))
		return true
	})

	return writeF64Levels(tx, fieldID, entries)
}

func writeF64Levels(tx kv.RwTx, fieldID codec.FieldID, level0 []*f64Entry) error {
	type group struct {
		left, right float64
		docids      *roaring.Bitmap
	}
	current := make([]group, len(level0))
	for i, e := range level0 {
		current[i] = group{left: e.value, right: e.value, docids: e.docids}
	}

	level := uint8(1)
	for len(current) > 1 {
		var next []group
		for i := 0; i < len(current); i += GroupSize {
			end := groupEnd(i, len(current))
			chunk := current[i:end]
			merged := roaring.New()
			for _, g := range chunk {
				merged.Or(g.docids)
			}
			g := group{left: chunk[0].left, right: chunk[len(chunk)-1].right, docids: merged}
			next = append(next, g)

			key := codec.FacetF64Key{FieldID: fieldID, Level: level, Left: g.left, Right: g.right}.Encode()
			enc, err := codec.EncodeBitmap(g.docids)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.FacetIdF64Docids, key, enc); err != nil {
				return err
			}
		}
		current = next
		level++
	}
	return nil
}

// stringEntry mirrors f64Entry for the string facet hierarchy, ordered
// lexicographically on the normalized form.
type stringEntry struct {
	value  string
	docids *roaring.Bitmap
}

// BuildStringLevels is the string-facet counterpart of BuildF64Levels.
func BuildStringLevels(tx kv.RwTx, fieldID codec.FieldID) error {
	prefix := fieldPrefix(fieldID)
	var entries []stringEntry
	var stale [][]byte
	err := tx.ForPrefix(kv.FacetIdStringDocids, prefix, func(k, v []byte) (bool, error) {
		sk := codec.DecodeFacetStringKey(k)
		if sk.Level != 0 {
			stale = append(stale, append([]byte(nil), k...))
			return true, nil
		}
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		entries = append(entries, stringEntry{value: sk.Left, docids: bm})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := tx.Delete(kv.FacetIdStringDocids, k); err != nil {
			return err
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })

	type group struct {
		left, right string
		docids      *roaring.Bitmap
	}
	current := make([]group, len(entries))
	for i, e := range entries {
		current[i] = group{left: e.value, right: e.value, docids: e.docids}
	}

	level := uint8(1)
	for len(current) > 1 {
		var next []group
		for i := 0; i < len(current); i += GroupSize {
			end := groupEnd(i, len(current))
			chunk := current[i:end]
			merged := roaring.New()
			for _, g := range chunk {
				merged.Or(g.docids)
			}
			g := group{left: chunk[0].left, right: chunk[len(chunk)-1].right, docids: merged}
			next = append(next, g)

			key := codec.FacetStringKey{FieldID: fieldID, Level: level, Left: g.left, Right: g.right}.Encode()
			enc, err := codec.EncodeBitmap(g.docids)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.FacetIdStringDocids, key, enc); err != nil {
				return err
			}
		}
		current = next
		level++
	}
	return nil
}
