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

package facet

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// Direction selects which end of the facet value range Sort starts
// walking from.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// frame is one level of the facet tree the sort iterator is currently
// descending into: the remaining sibling groups at that level, not yet
// intersected with candidates, plus the level number they belong to.
type frame struct {
	level   uint8
	entries []levelEntry
	pos     int
}

type levelEntry struct {
	left, right float64
	docids      *roaring.Bitmap
}

// Sort lazily walks the facet_id_f64_docids tree for one field, yielding
// groups of docids in ascending (or descending) order of their facet value,
// intersected against a candidates bitmap. It descends into a group only
// when the group intersects candidates, so a sort over a small candidate
// set touches a small fraction of the tree, not the whole index. This is a
// direct port of ascending_facet_sort.rs's explicit stack-of-frames walk,
// chosen there (and kept here) specifically to avoid recursion depth
// proportional to the tree height times the candidate-set fan-out.
type Sort struct {
	tx         kv.RoTx
	fieldID    codec.FieldID
	candidates *roaring.Bitmap
	dir        Direction
	stack      []frame
	topLevel   uint8
}

// NewSort locates the topmost level for fieldID and prepares to walk it.
func NewSort(tx kv.RoTx, fieldID codec.FieldID, candidates *roaring.Bitmap, dir Direction) (*Sort, error) {
	s := &Sort{tx: tx, fieldID: fieldID, candidates: candidates, dir: dir}
	top, entries, err := topLevelEntries(tx, fieldID)
	if err != nil {
		return nil, err
	}
	s.topLevel = top
	if dir == Descending {
		reverseEntries(entries)
	}
	s.stack = []frame{{level: top, entries: entries}}
	return s, nil
}

// Next returns the next (value, docids) pair whose docids intersect
// candidates, descending through the tree as needed. docids returned is
// already intersected with candidates. Returns ok=false once the candidate
// set is exhausted.
func (s *Sort) Next() (value float64, docids *roaring.Bitmap, ok bool, err error) {
	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		if top.pos >= len(top.entries) {
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		e := top.entries[top.pos]
		top.pos++

		inter := roaring.And(e.docids, s.candidates)
		if inter.IsEmpty() {
			continue
		}
		if top.level == 0 {
			return e.left, inter, true, nil
		}

		children, err := childEntries(s.tx, s.fieldID, top.level-1, e.left, e.right)
		if err != nil {
			return 0, nil, false, err
		}
		if s.dir == Descending {
			reverseEntries(children)
		}
		s.stack = append(s.stack, frame{level: top.level - 1, entries: children})
	}
	return 0, nil, false, nil
}

func reverseEntries(e []levelEntry) {
	for i, j := 0, len(e)-1; i < j; i, j = i+1, j-1 {
		e[i], e[j] = e[j], e[i]
	}
}

func topLevelEntries(tx kv.RoTx, fieldID codec.FieldID) (uint8, []levelEntry, error) {
	var maxLevel uint8
	levels := make(map[uint8][]levelEntry)
	err := tx.ForPrefix(kv.FacetIdF64Docids, fieldPrefix(fieldID), func(k, v []byte) (bool, error) {
		fk := codec.DecodeFacetF64Key(k)
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		levels[fk.Level] = append(levels[fk.Level], levelEntry{left: fk.Left, right: fk.Right, docids: bm})
		if fk.Level > maxLevel {
			maxLevel = fk.Level
		}
		return true, nil
	})
	if err != nil {
		return 0, nil, err
	}
	entries := levels[maxLevel]
	sortEntries(entries)
	return maxLevel, entries, nil
}

func childEntries(tx kv.RoTx, fieldID codec.FieldID, level uint8, left, right float64) ([]levelEntry, error) {
	var out []levelEntry
	err := tx.ForPrefix(kv.FacetIdF64Docids, fieldPrefix(fieldID), func(k, v []byte) (bool, error) {
		fk := codec.DecodeFacetF64Key(k)
		if fk.Level != level || fk.Left < left || fk.Right > right {
			return true, nil
		}
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		out = append(out, levelEntry{left: fk.Left, right: fk.Right, docids: bm})
		return true, nil
	})
	sortEntries(out)
	return out, err
}

// sortEntries orders entries ascending by left bound; the underlying store
// is a plain key-value map with no ordering guarantee of its own, so every
// caller that walks the tree level by level must re-sort what it reads back
// (a real MDBX cursor would already return these in key order).
func sortEntries(e []levelEntry) {
	sort.Slice(e, func(i, j int) bool { return e[i].left < e[j].left })
}
