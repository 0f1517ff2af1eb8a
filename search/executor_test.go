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

package search

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/filter"
	"github.com/meilisearch/searchcore/kv"
)

// memTx is a minimal in-memory kv.RwTx, mirroring filter/filter_test.go's
// and facet/facet_test.go's own copies.
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

// nopGeo satisfies GeoIndex for tests that never touch geo.
type nopGeo struct{}

func (nopGeo) Radius(lat, lng, radiusMeters float64) (*roaring.Bitmap, error) { return roaring.New(), nil }
func (nopGeo) BoundingBox(lat1, lng1, lat2, lng2 float64) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}
func (nopGeo) Distance(lat, lng float64, id codec.DocumentID) (float64, bool) { return 0, false }

var _ GeoIndex = nopGeo{}

func putWord(t *testing.T, tx *memTx, term string, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	tx.tables[kv.WordDocids][term] = enc
	tx.tables[kv.ExactWordDocids][term] = enc
}

func putWordPosition(t *testing.T, tx *memTx, term string, fieldID codec.FieldID, wordIndex int, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	pos := codec.PackPosition(uint32(fieldID), uint32(wordIndex))
	key := codec.WordPositionKey(term, pos)
	tx.tables[kv.WordPositionDocids][string(key)] = enc
}

func putStringFacet(t *testing.T, tx *memTx, fieldID codec.FieldID, docID codec.DocumentID, value string) {
	t.Helper()
	key := make([]byte, 0, 8+len(value))
	key = append(key, codec.BEUint32(uint32(fieldID))...)
	key = append(key, codec.BEUint32(docID)...)
	key = append(key, value...)
	tx.tables[kv.FieldIdDocidFacetStrings][string(key)] = []byte{1}
}

func putF64Facet(t *testing.T, tx *memTx, fieldID codec.FieldID, value float64, ids ...uint32) {
	t.Helper()
	bm := roaring.New()
	bm.AddMany(ids)
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)
	key := codec.FacetF64Key{FieldID: fieldID, Level: 0, Left: value, Right: value}.Encode()
	tx.tables[kv.FacetIdF64Docids][string(key)] = enc
}

func docIDs(hits []Hit) []codec.DocumentID {
	out := make([]codec.DocumentID, len(hits))
	for i, h := range hits {
		out[i] = h.DocumentID
	}
	return out
}

func TestSearchMatchAllNoQuery(t *testing.T) {
	tx := newMemTx()
	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})
	snap := fields.New().Snapshot()

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{1, 2, 3}, docIDs(res.Hits))
	require.Equal(t, 3, res.EstimatedTotalHits)
}

func TestSearchExactWordMatch(t *testing.T) {
	tx := newMemTx()
	putWord(t, tx, "brown", 1, 2)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})
	snap := fields.New().Snapshot()

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{QueryText: "brown"})
	require.NoError(t, err)
	require.ElementsMatch(t, []codec.DocumentID{1, 2}, docIDs(res.Hits))
}

func TestSearchTypoTolerantMatch(t *testing.T) {
	tx := newMemTx()
	putWord(t, tx, "world", 1)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2})

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})
	snap := fields.New().Snapshot()

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{QueryText: "worle"}) // one substitution, edit distance 1
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{1}, docIDs(res.Hits))
}

func TestSearchPrefixMatch(t *testing.T) {
	tx := newMemTx()
	putWord(t, tx, "world", 1)
	tx.tables[kv.WordPrefixDocids]["wor"] = tx.tables[kv.WordDocids]["world"]

	universe := roaring.New()
	universe.Add(1)

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})
	snap := fields.New().Snapshot()

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{QueryText: "wor"})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{1}, docIDs(res.Hits))
}

func TestSearchPhraseMatch(t *testing.T) {
	tx := newMemTx()
	m := fields.New()
	titleID, err := m.Insert("title")
	require.NoError(t, err)
	snap := m.Snapshot()

	putWordPosition(t, tx, "fox", titleID, 0, 1)
	putWordPosition(t, tx, "jumps", titleID, 1, 1)
	// doc 2 has "fox" but not immediately followed by "jumps".
	putWordPosition(t, tx, "fox", titleID, 5, 2)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2})

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{QueryText: `"fox jumps"`})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{1}, docIDs(res.Hits))
}

func TestSearchFilterRestrictsCandidates(t *testing.T) {
	tx := newMemTx()
	m := fields.New()
	priceID, err := m.Insert("price")
	require.NoError(t, err)
	snap := m.Snapshot()

	putF64Facet(t, tx, priceID, 5, 1)
	putF64Facet(t, tx, priceID, 20, 2, 3)

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	meta := fields.NewMetadataBuilder(fields.Settings{
		SearchableAttributes: []string{"*"},
		FilterableAttributes: []string{"price"},
	})

	expr, err := filter.Parse("price > 10")
	require.NoError(t, err)

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{Filter: expr})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{2, 3}, docIDs(res.Hits))
}

func TestSearchDistinctKeepsFirstPerValue(t *testing.T) {
	tx := newMemTx()
	m := fields.New()
	colorID, err := m.Insert("color")
	require.NoError(t, err)
	snap := m.Snapshot()

	putStringFacet(t, tx, colorID, 1, "red")
	putStringFacet(t, tx, colorID, 2, "red")
	putStringFacet(t, tx, colorID, 3, "blue")

	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3})

	meta := fields.NewMetadataBuilder(fields.Settings{
		SearchableAttributes: []string{"*"},
		FilterableAttributes: []string{"color"},
	})

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	res, err := e.Search(Request{DistinctField: "color"})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{1, 3}, docIDs(res.Hits))
}

func TestSearchPaginationWindow(t *testing.T) {
	tx := newMemTx()
	universe := roaring.New()
	universe.AddMany([]uint32{1, 2, 3, 4, 5})

	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"*"}})
	snap := fields.New().Snapshot()

	e, err := NewExecutor(tx, meta, snap, nopGeo{}, universe, nil)
	require.NoError(t, err)
	one := 1
	two := 2
	res, err := e.Search(Request{Pagination: Pagination{Offset: &one, Limit: &two}})
	require.NoError(t, err)
	require.Equal(t, []codec.DocumentID{2, 3}, docIDs(res.Hits))
}

func TestPaginationWindowRejectsBothAddressingModes(t *testing.T) {
	zero := 0
	p := Pagination{Offset: &zero, Page: &zero}
	_, _, err := p.Window()
	require.Error(t, err)
}

func TestPaginationWindowDefaults(t *testing.T) {
	p := Pagination{}
	skip, take, err := p.Window()
	require.NoError(t, err)
	require.Equal(t, 0, skip)
	require.Equal(t, DefaultHitsPerPage, take)
}

func TestPaginationWindowPageBased(t *testing.T) {
	page := 3
	hpp := 10
	p := Pagination{Page: &page, HitsPerPage: &hpp}
	skip, take, err := p.Window()
	require.NoError(t, err)
	require.Equal(t, 20, skip)
	require.Equal(t, 10, take)
}

func TestBoundedLevenshteinBounds(t *testing.T) {
	require.Equal(t, 0, boundedLevenshtein("world", "world", 2))
	require.Equal(t, 1, boundedLevenshtein("wrold", "world", 2))
	require.Equal(t, -1, boundedLevenshtein("hello", "world", 2))
}
