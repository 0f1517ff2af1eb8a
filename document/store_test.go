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

package document

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// memTx is a minimal in-memory kv.RwTx stand-in, mirroring merge/merger_test.go's
// and filter/filter_test.go's own copies.
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

func (m *memTx) Get(table string, key []byte) ([]byte, error) {
	return m.tables[table][string(key)], nil
}
func (m *memTx) Has(table string, key []byte) (bool, error) {
	_, ok := m.tables[table][string(key)]
	return ok, nil
}
func (m *memTx) ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error {
	for k, v := range m.tables[table] {
		if len(fromKey) > 0 && k < string(fromKey) {
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
func (m *memTx) ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error {
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

// TestStoreRoundTrip pins that a record survives Put/Get unchanged, for both
// the small (uncompressed) and large (zstd-compressed) encoding path.
// Mismatches are reported three ways on purpose: go-cmp's tree diff for the
// common case, go-test/deep as a second independent comparator (it treats
// byte-slice equality differently enough from cmp that the two together
// catch more encoding regressions than either alone), and spew.Sdump to
// render the actual decoded record when a failure needs a full dump rather
// than just a diff.
func TestStoreRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rec  codec.Record
	}{
		{"small", codec.Record{1: []byte(`"hello"`), 2: []byte("42")}},
		{"large", codec.Record{1: bytes.Repeat([]byte("x"), compressThreshold*2)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := newMemTx()
			require.NoError(t, (Store{}).Put(tx, 1, tc.rec))

			got, err := (Store{}).Get(tx, 1)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.rec, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("record mismatch (-want +got):\n%s\nfull dump:\n%s", diff, spew.Sdump(got))
			}
			if diff := deep.Equal(tc.rec, got); diff != nil {
				t.Fatalf("deep.Equal found additional mismatch: %v", diff)
			}
		})
	}
}
