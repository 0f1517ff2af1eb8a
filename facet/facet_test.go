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
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// memTx is a minimal in-memory kv.RwTx for facet-package tests.
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
func (m *memTx) ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error {
	return nil
}
func (m *memTx) ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	for k, v := range m.tables[table] {
		if len(k) < len(prefix) || k[:len(prefix)] != string(prefix) {
			continue
		}
		cont, err := fn([]byte(k), v)
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

func putLevel0(t *testing.T, tx *memTx, fieldID codec.FieldID, value float64, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	key := codec.FacetF64Key{FieldID: fieldID, Level: 0, Left: value, Right: value}.Encode()
	tx.tables[kv.FacetIdF64Docids][string(key)] = enc
}

func TestBuildF64LevelsCreatesHigherLevel(t *testing.T) {
	tx := newMemTx()
	for i, v := range []float64{1, 2, 3, 4, 5} {
		putLevel0(t, tx, 7, v, uint32(i))
	}
	require.NoError(t, BuildF64Levels(tx, 7))

	found := false
	for k := range tx.tables[kv.FacetIdF64Docids] {
		fk := codec.DecodeFacetF64Key([]byte(k))
		if fk.Level == 1 {
			found = true
		}
	}
	require.True(t, found, "expected a level-1 entry to be built")
}

func TestAscendingSortOrdersByValue(t *testing.T) {
	tx := newMemTx()
	putLevel0(t, tx, 3, 10, 1)
	putLevel0(t, tx, 3, 20, 2)
	putLevel0(t, tx, 3, 30, 3)
	require.NoError(t, BuildF64Levels(tx, 3))

	candidates := roaring.New()
	candidates.AddMany([]uint32{1, 2, 3})

	s, err := NewSort(tx, 3, candidates, Ascending)
	require.NoError(t, err)

	var seen []float64
	for {
		v, docids, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.False(t, docids.IsEmpty())
		seen = append(seen, v)
	}
	require.Equal(t, []float64{10, 20, 30}, seen)
}

func TestDescendingSortReversesOrder(t *testing.T) {
	tx := newMemTx()
	putLevel0(t, tx, 4, 10, 1)
	putLevel0(t, tx, 4, 20, 2)
	require.NoError(t, BuildF64Levels(tx, 4))

	candidates := roaring.New()
	candidates.AddMany([]uint32{1, 2})

	s, err := NewSort(tx, 4, candidates, Descending)
	require.NoError(t, err)

	var seen []float64
	for {
		v, _, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, v)
	}
	require.Equal(t, []float64{20, 10}, seen)
}
