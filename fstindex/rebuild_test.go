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

package fstindex

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/kv"
)

// memTx is a minimal in-memory kv.RwTx. Unlike the shared fixture other
// packages copy (whose ForEach is a no-op and whose ForPrefix walks an
// unordered Go map), Rebuild depends on a real, key-sorted ForEach — vellum
// requires terms inserted in ascending order — so this copy actually sorts.
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

func TestRebuildAndLoadWords(t *testing.T) {
	tx := newMemTx()
	for _, term := range []string{"banana", "apple", "cherry"} {
		require.NoError(t, tx.Put(kv.WordDocids, []byte(term), []byte{0x01}))
	}

	require.NoError(t, Rebuild(tx))

	dict, bloom, err := LoadWords(tx)
	require.NoError(t, err)
	require.NotNil(t, dict)
	require.NotNil(t, bloom)

	found, err := dict.Contains("apple")
	require.NoError(t, err)
	require.True(t, found)

	require.True(t, bloom.MaybeContains("apple"))
	require.False(t, bloom.MaybeContains("zzz-not-indexed"))
}

func TestRebuildAndLoadPrefixes(t *testing.T) {
	tx := newMemTx()
	for _, term := range []string{"car", "card", "care"} {
		require.NoError(t, tx.Put(kv.WordPrefixDocids, []byte(term), []byte{0x01}))
	}

	require.NoError(t, Rebuild(tx))

	dict, _, err := LoadPrefixes(tx)
	require.NoError(t, err)
	require.NotNil(t, dict)

	got, err := dict.Prefix("car")
	require.NoError(t, err)
	require.Equal(t, []string{"car", "card", "care"}, got)
}

func TestLoadWordsReturnsNilBeforeFirstRebuild(t *testing.T) {
	tx := newMemTx()
	dict, bloom, err := LoadWords(tx)
	require.NoError(t, err)
	require.Nil(t, dict)
	require.Nil(t, bloom)
}
