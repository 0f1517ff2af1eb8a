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
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/extract"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

type wordFixture struct {
	fieldID codec.FieldID
	meta    *fields.MetadataBuilder
	snap    *fields.Snapshot
}

func wordFixtureMeta(t *testing.T) wordFixture {
	t.Helper()
	m := fields.New()
	id, err := m.Insert("title")
	require.NoError(t, err)
	return wordFixture{
		fieldID: id,
		meta:    fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}}),
		snap:    m.Snapshot(),
	}
}

// memTx is a minimal in-memory kv.RwTx stand-in for merger tests, avoiding a
// real mdbx environment.
type memTx struct {
	tables map[string]map[string][]byte
}

func newMemTx() *memTx {
	t := &memTx{tables: make(map[string]map[string][]byte)}
	for _, name := range kv.AllTables {
		t.tables[name] = make(map[string][]byte)
	}
	return t
}

func (m *memTx) Get(table string, key []byte) ([]byte, error) { return m.tables[table][string(key)], nil }
func (m *memTx) Has(table string, key []byte) (bool, error) {
	_, ok := m.tables[table][string(key)]
	return ok, nil
}
func (m *memTx) sortedKeys(table string) []string {
	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func (m *memTx) ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error {
	for _, k := range m.sortedKeys(table) {
		if fromKey != nil && k < string(fromKey) {
			continue
		}
		cont, err := fn([]byte(k), m.tables[table][k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
func (m *memTx) ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	for _, k := range m.sortedKeys(table) {
		if len(k) < len(prefix) || k[:len(prefix)] != string(prefix) {
			continue
		}
		cont, err := fn([]byte(k), m.tables[table][k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
func (m *memTx) Count(table string) (uint64, error) { return uint64(len(m.tables[table])), nil }
func (m *memTx) Rollback()                          {}
func (m *memTx) Put(table string, key, value []byte) error {
	m.tables[table][string(key)] = append([]byte(nil), value...)
	return nil
}
func (m *memTx) Delete(table string, key []byte) error {
	delete(m.tables[table], string(key))
	return nil
}
func (m *memTx) ClearTable(table string) error {
	m.tables[table] = make(map[string][]byte)
	return nil
}
func (m *memTx) Commit() error { return nil }

var _ kv.RwTx = (*memTx)(nil)

func TestMergerAppliesWordDocids(t *testing.T) {
	tx := newMemTx()
	d := extract.NewDeladd()
	meta := wordFixtureMeta(t)
	rec := map[codec.FieldID][]byte{meta.fieldID: []byte(`"fox jumps"`)}
	op := extract.Operation{Kind: extract.Insert, InternalID: 42, New: rec}
	arena := extract.NewArena()
	require.NoError(t, (extract.WordExtractor{}).Extract(op, meta.meta, meta.snap, arena, d))

	require.NoError(t, (Merger{}).Apply(tx, []*extract.Deladd{d}))

	raw := tx.tables[kv.WordDocids]["fox"]
	require.NotNil(t, raw)
	bm, err := codec.DecodeBitmap(raw)
	require.NoError(t, err)
	require.True(t, bm.Contains(42))
}

func TestMergerDeletesEmptyBitmap(t *testing.T) {
	tx := newMemTx()
	bm := roaring.New()
	bm.Add(1)
	encoded, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	tx.tables[kv.WordDocids]["fox"] = encoded

	d := extract.NewDeladd()
	meta := wordFixtureMeta(t)
	rec := map[codec.FieldID][]byte{meta.fieldID: []byte(`"fox"`)}
	op := extract.Operation{Kind: extract.Delete, InternalID: 1, Old: rec}
	arena := extract.NewArena()
	require.NoError(t, (extract.WordExtractor{}).Extract(op, meta.meta, meta.snap, arena, d))

	require.NoError(t, (Merger{}).Apply(tx, []*extract.Deladd{d}))
	_, ok := tx.tables[kv.WordDocids]["fox"]
	require.False(t, ok)
}

func TestMergerRebuildsFacetLevelsForTouchedField(t *testing.T) {
	tx := newMemTx()
	m := fields.New()
	priceID, err := m.Insert("price")
	require.NoError(t, err)
	snap := m.Snapshot()
	meta := fields.NewMetadataBuilder(fields.Settings{FilterableAttributes: []string{"price"}})

	d := extract.NewDeladd()
	arena := extract.NewArena()
	for id, price := range map[codec.DocumentID]string{1: "10", 2: "20", 3: "30"} {
		rec := map[codec.FieldID][]byte{priceID: []byte(price)}
		op := extract.Operation{Kind: extract.Insert, InternalID: id, New: rec}
		require.NoError(t, (extract.FacetExtractor{}).Extract(op, meta, snap, arena, d))
	}

	require.NoError(t, (Merger{}).Apply(tx, []*extract.Deladd{d}))

	// Level 0 holds one bitmap per exact value; Apply must have rebuilt a
	// level 1 entry spanning all three (facet.GroupSize == 4) once the
	// batch's level-0 writes landed, not just left them unmerged.
	foundLevel1 := false
	for k := range tx.tables[kv.FacetIdF64Docids] {
		fk := codec.DecodeFacetF64Key([]byte(k))
		if fk.FieldID == priceID && fk.Level == 1 {
			foundLevel1 = true
		}
	}
	require.True(t, foundLevel1, "expected a rebuilt level-1 facet entry for the touched field")
}
