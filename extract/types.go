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

// Package extract turns document changes into per-database bitmap deltas.
// Each extractor runs single-threaded over one chunk of the incoming batch
// and emits Deladd entries that the merge package later combines across
// chunks and applies in one write transaction.
package extract

import (
	"sort"

	"github.com/tidwall/btree"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
)

// OperationKind distinguishes the three document-level changes a batch can
// contain, per spec.md §4.5.
type OperationKind int

const (
	Insert OperationKind = iota
	Update
	Delete
)

// Operation is one document's change within a batch. Old/New carry the
// decoded field values (field id -> raw JSON), already resolved
// against the fields map snapshot in effect for this batch.
type Operation struct {
	Kind       OperationKind
	InternalID codec.DocumentID
	Old        codec.Record // nil for Insert
	New        codec.Record // nil for Delete
}

// Deladd is the shared delete/add output format every extractor writes to:
// for a given target-database key, which docids must be removed from that
// key's posting bitmap and which must be added. Update is expressed as a
// Delete of the old value followed by an Add of the new one, so mergers
// never need to special-case it. Del/Add are staged in a tidwall/btree.Map
// rather than a plain map so one chunk's own Keys() already comes back in
// sorted order, ahead of the merger folding many chunks' keys together.
type Deladd struct {
	Del *btree.Map[string, *docidSet]
	Add *btree.Map[string, *docidSet]
}

// docidSet is an insertion-ordered set small enough that most keys hold a
// handful of ids; the merge package folds these into roaring bitmaps.
type docidSet struct {
	ids  []codec.DocumentID
	seen map[codec.DocumentID]struct{}
}

func newDocidSet() *docidSet {
	return &docidSet{seen: make(map[codec.DocumentID]struct{})}
}

func (s *docidSet) add(id codec.DocumentID) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// IDs returns the set's members in insertion order.
func (s *docidSet) IDs() []codec.DocumentID { return s.ids }

// NewDeladd returns an empty Deladd accumulator.
func NewDeladd() *Deladd {
	return &Deladd{Del: btree.NewMap[string, *docidSet](32), Add: btree.NewMap[string, *docidSet](32)}
}

func (d *Deladd) del(key string, id codec.DocumentID) {
	s, ok := d.Del.Get(key)
	if !ok {
		s = newDocidSet()
		d.Del.Set(key, s)
	}
	s.add(id)
}

func (d *Deladd) add(key string, id codec.DocumentID) {
	s, ok := d.Add.Get(key)
	if !ok {
		s = newDocidSet()
		d.Add.Set(key, s)
	}
	s.add(id)
}

// DelIDs returns the docids queued for removal under key.
func (d *Deladd) DelIDs(key string) []codec.DocumentID {
	if s, ok := d.Del.Get(key); ok {
		return s.IDs()
	}
	return nil
}

// AddIDs returns the docids queued for addition under key.
func (d *Deladd) AddIDs(key string) []codec.DocumentID {
	if s, ok := d.Add.Get(key); ok {
		return s.IDs()
	}
	return nil
}

// Keys returns every key touched by either Del or Add, in sorted order, for
// iteration by the merger.
func (d *Deladd) Keys() []string {
	seen := make(map[string]struct{}, d.Del.Len()+d.Add.Len())
	var out []string
	d.Del.Scan(func(k string, _ *docidSet) bool {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return true
	})
	d.Add.Scan(func(k string, _ *docidSet) bool {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return true
	})
	sort.Strings(out)
	return out
}

// Extractor is implemented by every per-document-change extractor. fieldMeta
// is the immutable field metadata snapshot for the batch (searchable /
// filterable / sortable / locale), shared read-only across extractor goroutines.
// arena is the caller's single-owner scratch state (see Arena).
type Extractor interface {
	Extract(op Operation, fieldMeta *fields.MetadataBuilder, fieldsSnap *fields.Snapshot, arena *Arena, out *Deladd) error
}

// TableKey namespaces a Deladd key by destination database, so that two
// extractors whose raw key encodings happen to collide (e.g. a packed
// position equal in bytes to a field id) never merge into the same bitmap.
func TableKey(table string, raw []byte) string {
	return table + "\x00" + string(raw)
}
