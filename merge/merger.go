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

package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/extract"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/fstindex"
	"github.com/meilisearch/searchcore/kv"
)

// fnByTable names the merge strategy for every target database. A table
// absent from this map is a programming error, caught eagerly in Apply
// rather than silently dropping writes.
var fnByTable = map[string]Fn{
	kv.WordDocids:                   MergeRoaringBitmaps,
	kv.ExactWordDocids:              MergeRoaringBitmaps,
	kv.WordPrefixDocids:             KeepFirstPrefixMergeRoaringBitmaps,
	kv.ExactWordPrefixDocids:        KeepFirstPrefixMergeRoaringBitmaps,
	kv.WordPairProximityDocids:      MergeRoaringBitmaps,
	kv.WordPositionDocids:           MergeRoaringBitmaps,
	kv.WordFidDocids:                MergeRoaringBitmaps,
	kv.FieldIdWordCountDocids:       MergeRoaringBitmaps,
	kv.FacetIdF64Docids:             MergeRoaringBitmaps,
	kv.FacetIdStringDocids:          MergeRoaringBitmaps,
	kv.FacetIdExistsDocids:          MergeRoaringBitmaps,
	kv.FacetIdIsNullDocids:          MergeRoaringBitmaps,
	kv.FacetIdIsEmptyDocids:         MergeRoaringBitmaps,
	kv.FieldIdDocidFacetF64s:        KeepLatest,
	kv.FieldIdDocidFacetStrings:     KeepLatest,
	kv.FacetIdNormalizedStringStrings: KeepFirst,
}

// splitTableKey reverses extract.TableKey.
func splitTableKey(k string) (table string, raw []byte, err error) {
	i := strings.IndexByte(k, 0x00)
	if i < 0 {
		return "", nil, fmt.Errorf("merge: key %q missing table prefix", k)
	}
	return k[:i], []byte(k[i+1:]), nil
}

// Merger applies the accumulated Deladd output of one batch's extractor
// goroutines to the database in a single write transaction.
type Merger struct{}

// Apply folds every delta in deltas together per raw key (a key touched by
// two different extractor chunks accumulates both sets of ids) and writes
// the merged result, deleting the key outright when a table's Fn returns a
// nil/empty value. The whole operation runs inside tx; callers commit or
// roll back tx themselves so a single failed key aborts the entire batch
// atomically (spec.md invariant: partial merges never become visible).
func (Merger) Apply(tx kv.RwTx, deltas []*extract.Deladd) error {
	type accum struct {
		del, add []uint32
	}
	byKey := make(map[string]*accum)
	order := make([]string, 0)
	touchedF64 := make(map[codec.FieldID]struct{})
	touchedString := make(map[codec.FieldID]struct{})

	for _, d := range deltas {
		for _, k := range d.Keys() {
			a, ok := byKey[k]
			if !ok {
				a = &accum{}
				byKey[k] = a
				order = append(order, k)
			}
			a.del = append(a.del, d.DelIDs(k)...)
			a.add = append(a.add, d.AddIDs(k)...)
		}
	}

	// Deterministic write order keeps the batch reproducible for tests and
	// makes a partially-applied crash dump easier to diagnose.
	sort.Strings(order)

	for _, k := range order {
		table, raw, err := splitTableKey(k)
		if err != nil {
			return err
		}
		fn, ok := fnByTable[table]
		if !ok {
			return fmt.Errorf("merge: no merge function registered for table %q", table)
		}
		a := byKey[k]
		existing, err := tx.Get(table, raw)
		if err != nil {
			return err
		}
		merged, err := fn(existing, a.del, a.add)
		if err != nil {
			return fmt.Errorf("merge: table %q key %x: %w", table, raw, err)
		}

		switch table {
		case kv.FacetIdF64Docids:
			if fk := codec.DecodeFacetF64Key(raw); fk.Level == 0 {
				touchedF64[fk.FieldID] = struct{}{}
			}
		case kv.FacetIdStringDocids:
			if sk := codec.DecodeFacetStringKey(raw); sk.Level == 0 {
				touchedString[sk.FieldID] = struct{}{}
			}
		}

		if merged == nil {
			if existing == nil {
				continue
			}
			if err := tx.Delete(table, raw); err != nil {
				return err
			}
			continue
		}
		if err := tx.Put(table, raw, merged); err != nil {
			return err
		}
	}

	// Rebuild the hierarchy above level 0 for every facet field this batch
	// actually touched (spec.md §4.6 step 5): untouched fields keep whatever
	// levels they already had, so a batch only pays for the facets it wrote.
	for fieldID := range touchedF64 {
		if err := facet.BuildF64Levels(tx, fieldID); err != nil {
			return fmt.Errorf("merge: rebuild f64 facet levels for field %d: %w", fieldID, err)
		}
	}
	for fieldID := range touchedString {
		if err := facet.BuildStringLevels(tx, fieldID); err != nil {
			return fmt.Errorf("merge: rebuild string facet levels for field %d: %w", fieldID, err)
		}
	}

	// Rebuild the term dictionary/bloom blobs once the batch's posting-list
	// writes have all landed, so they stay immutable between commits and
	// never reflect a half-applied batch (spec.md §5).
	if err := fstindex.Rebuild(tx); err != nil {
		return fmt.Errorf("merge: rebuild term dictionary: %w", err)
	}
	return nil
}
