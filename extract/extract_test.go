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

package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

func newFixture(t *testing.T) (*fields.MetadataBuilder, *fields.Snapshot, codec.FieldID) {
	t.Helper()
	m := fields.New()
	titleID, err := m.Insert("title")
	require.NoError(t, err)
	snap := m.Snapshot()
	meta := fields.NewMetadataBuilder(fields.Settings{SearchableAttributes: []string{"title"}})
	return meta, snap, titleID
}

func TestIndexProximity(t *testing.T) {
	require.Equal(t, 1, indexProximity(0, 1))
	require.Equal(t, maxProximityWindow, indexProximity(0, 100))
	require.Equal(t, 2, indexProximity(1, 0)) // reversed: raw gap 1, +1 penalty
	require.Equal(t, maxProximityWindow+1, indexProximity(100, 0))
}

func TestWordExtractorInsert(t *testing.T) {
	meta, snap, titleID := newFixture(t)
	arena := NewArena()
	out := NewDeladd()

	rec := codec.Record{titleID: []byte(`"the quick brown fox"`)}
	op := Operation{Kind: Insert, InternalID: 7, New: rec}

	require.NoError(t, WordExtractor{}.Extract(op, meta, snap, arena, out))

	key := TableKey(kv.WordDocids, []byte("quick"))
	require.Equal(t, []codec.DocumentID{7}, out.AddIDs(key))
	require.Empty(t, out.DelIDs(key))
}

func TestWordExtractorDelete(t *testing.T) {
	meta, snap, titleID := newFixture(t)
	arena := NewArena()
	out := NewDeladd()

	rec := codec.Record{titleID: []byte(`"fox"`)}
	op := Operation{Kind: Delete, InternalID: 3, Old: rec}

	require.NoError(t, WordExtractor{}.Extract(op, meta, snap, arena, out))

	key := TableKey(kv.WordDocids, []byte("fox"))
	require.Equal(t, []codec.DocumentID{3}, out.DelIDs(key))
}

func TestProximityExtractorAdjacentWords(t *testing.T) {
	meta, snap, titleID := newFixture(t)
	arena := NewArena()
	out := NewDeladd()

	rec := codec.Record{titleID: []byte(`"quick brown fox"`)}
	op := Operation{Kind: Insert, InternalID: 1, New: rec}
	require.NoError(t, ProximityExtractor{}.Extract(op, meta, snap, arena, out))

	key := TableKey(kv.WordPairProximityDocids, codec.WordPairProximityKey(1, "quick", "brown"))
	require.Equal(t, []codec.DocumentID{1}, out.AddIDs(key))
}

func TestWordCountExtractorOnlyOnChange(t *testing.T) {
	meta, snap, titleID := newFixture(t)
	arena := NewArena()
	out := NewDeladd()

	oldRec := codec.Record{titleID: []byte(`"a b"`)}
	newRec := codec.Record{titleID: []byte(`"a b"`)}
	op := Operation{Kind: Update, InternalID: 5, Old: oldRec, New: newRec}
	require.NoError(t, WordCountExtractor{}.Extract(op, meta, snap, arena, out))
	require.Empty(t, out.Keys())
}

func TestWordCountExtractorChangedCount(t *testing.T) {
	meta, snap, titleID := newFixture(t)
	arena := NewArena()
	out := NewDeladd()

	oldRec := codec.Record{titleID: []byte(`"a b"`)}
	newRec := codec.Record{titleID: []byte(`"a b c"`)}
	op := Operation{Kind: Update, InternalID: 5, Old: oldRec, New: newRec}
	require.NoError(t, WordCountExtractor{}.Extract(op, meta, snap, arena, out))

	delKey := TableKey(kv.FieldIdWordCountDocids, codec.FieldWordCountKey(titleID, 2))
	addKey := TableKey(kv.FieldIdWordCountDocids, codec.FieldWordCountKey(titleID, 3))
	require.Equal(t, []codec.DocumentID{5}, out.DelIDs(delKey))
	require.Equal(t, []codec.DocumentID{5}, out.AddIDs(addKey))
}

func TestGeoExtractorValidatesBounds(t *testing.T) {
	m := fields.New()
	geoID, err := m.Insert(GeoField)
	require.NoError(t, err)

	op := Operation{InternalID: 9, New: codec.Record{geoID: []byte(`{"lat": 48.8, "lng": 2.3}`)}}
	change, err := GeoExtractor{}.Extract(op, geoID)
	require.NoError(t, err)
	require.NotNil(t, change.Add)
	require.InDelta(t, 48.8, change.Add.Lat, 0.0001)

	badOp := Operation{InternalID: 9, New: codec.Record{geoID: []byte(`{"lat": 200, "lng": 2.3}`)}}
	_, err = GeoExtractor{}.Extract(badOp, geoID)
	require.Error(t, err)
}
