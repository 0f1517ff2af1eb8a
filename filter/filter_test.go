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

package filter

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

// memTx is a minimal in-memory kv.RwTx, mirroring facet/facet_test.go's and
// merge/merger_test.go's own copies.
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

func putF64(t *testing.T, tx *memTx, fieldID codec.FieldID, value float64, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	key := codec.FacetF64Key{FieldID: fieldID, Level: 0, Left: value, Right: value}.Encode()
	tx.tables[kv.FacetIdF64Docids][string(key)] = enc
}

func putString(t *testing.T, tx *memTx, fieldID codec.FieldID, value string, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	key := codec.FacetStringKey{FieldID: fieldID, Level: 0, Left: value, Right: value}.Encode()
	tx.tables[kv.FacetIdStringDocids][string(key)] = enc
}

func putExists(t *testing.T, tx *memTx, fieldID codec.FieldID, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	tx.tables[kv.FacetIdExistsDocids][string(codec.BEUint32(uint32(fieldID)))] = enc
}

func testMeta() (*fields.MetadataBuilder, *fields.Snapshot) {
	m := fields.New()
	priceID, _ := m.Insert("price")
	colorID, _ := m.Insert("color")
	titleID, _ := m.Insert("title") // searchable only, not filterable
	_ = priceID
	_ = colorID
	_ = titleID
	snap := m.Snapshot()
	builder := fields.NewMetadataBuilder(fields.Settings{
		SearchableAttributes: []string{"title"},
		FilterableAttributes: []string{"price", "color"},
	})
	return builder, snap
}

func TestParseScalarComparison(t *testing.T) {
	expr, err := Parse("price > 10")
	require.NoError(t, err)
	cmp, ok := expr.(Cmp)
	require.True(t, ok)
	require.Equal(t, "price", cmp.Field)
	require.Equal(t, Gt, cmp.Op)
	require.Equal(t, 10.0, cmp.Value)
}

func TestParseAndOrPrecedence(t *testing.T) {
	expr, err := Parse("color = red AND price > 10 OR color = blue")
	require.NoError(t, err)
	or, ok := expr.(Or)
	require.True(t, ok)
	require.Len(t, or.Children, 2)
	and, ok := or.Children[0].(And)
	require.True(t, ok)
	require.Len(t, and.Children, 2)
}

func TestParseNotExists(t *testing.T) {
	expr, err := Parse("color NOT EXISTS")
	require.NoError(t, err)
	ex, ok := expr.(Exists)
	require.True(t, ok)
	require.True(t, ex.Negate)
}

func TestParseInList(t *testing.T) {
	expr, err := Parse("color IN [red, 'blue', \"green\"]")
	require.NoError(t, err)
	in, ok := expr.(In)
	require.True(t, ok)
	require.Equal(t, []any{"red", "blue", "green"}, in.Values)
}

func TestParseIsNullAndEmpty(t *testing.T) {
	expr, err := Parse("color IS NULL")
	require.NoError(t, err)
	require.Equal(t, IsNull{Field: "color"}, expr)

	expr, err = Parse("color IS NOT EMPTY")
	require.NoError(t, err)
	require.Equal(t, IsEmpty{Field: "color", Negate: true}, expr)
}

func TestParseGeoRadius(t *testing.T) {
	expr, err := Parse("_geoRadius(45.0, 9.0, 1000)")
	require.NoError(t, err)
	require.Equal(t, GeoRadius{Lat: 45.0, Lng: 9.0, RadiusMeters: 1000}, expr)
}

func TestParseGeoBoundingBox(t *testing.T) {
	expr, err := Parse("_geoBoundingBox([89,179],[-89,-179])")
	require.NoError(t, err)
	require.Equal(t, GeoBoundingBox{Lat1: 89, Lng1: 179, Lat2: -89, Lng2: -179}, expr)
}

func TestParseParentheses(t *testing.T) {
	expr, err := Parse("(color = red OR color = blue) AND price < 5")
	require.NoError(t, err)
	and, ok := expr.(And)
	require.True(t, ok)
	_, ok = and.Children[0].(Or)
	require.True(t, ok)
}

func TestEvalNumericRange(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	priceID, _ := snap.ID("price")
	putF64(t, tx, priceID, 5, 1)
	putF64(t, tx, priceID, 15, 2)
	putF64(t, tx, priceID, 25, 3)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	expr, err := Parse("price > 10")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3}, bm.ToArray())
}

func TestEvalEqualityString(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	colorID, _ := snap.ID("color")
	putString(t, tx, colorID, "red", 1, 2)
	putString(t, tx, colorID, "blue", 3)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	expr, err := Parse("color = red")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, bm.ToArray())
}

func TestEvalNotSubtractsFromUniverse(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	colorID, _ := snap.ID("color")
	putString(t, tx, colorID, "red", 1)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	expr, err := Parse("NOT color = red")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3}, bm.ToArray())
}

func TestEvalAndShortCircuitsOnEmpty(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	colorID, _ := snap.ID("color")
	priceID, _ := snap.ID("price")
	putString(t, tx, colorID, "red", 1)
	putF64(t, tx, priceID, 999, 2)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2})

	expr, err := Parse("color = red AND price = 999")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.True(t, bm.IsEmpty())
}

func TestEvalUnfilterableFieldSuggestsFilterableOne(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	universe := roaring.New()

	expr, err := Parse("colour = red")
	require.NoError(t, err)
	_, err = Eval(tx, expr, meta, snap, universe, nil, nil)
	require.Error(t, err)
	var ife *InvalidFilterError
	require.ErrorAs(t, err, &ife)
	require.Equal(t, "color", ife.Suggestion)
}

func TestEvalExistsFlag(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	colorID, _ := snap.ID("color")
	putExists(t, tx, colorID, 1, 2)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	expr, err := Parse("color EXISTS")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, bm.ToArray())
}

func TestEvalNumericLiteralAgainstNonNumericFieldIsEmpty(t *testing.T) {
	tx := newMemTx()
	meta, snap := testMeta()
	colorID, _ := snap.ID("color")
	putString(t, tx, colorID, "red", 1)

	universe := roaring.New()
	universe.AddMany([]uint32{1})

	expr, err := Parse("color > 10")
	require.NoError(t, err)
	bm, err := Eval(tx, expr, meta, snap, universe, nil, nil)
	require.NoError(t, err)
	require.True(t, bm.IsEmpty())
}
