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

package vector

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func TestEmbedderQueryOrdersByDistance(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	require.NoError(t, e.Add(1, [][]float32{{0, 0}}))
	require.NoError(t, e.Add(2, [][]float32{{10, 0}}))
	require.NoError(t, e.Add(3, [][]float32{{1, 0}}))

	got, err := e.Query([]float32{0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint32(1), got[0].DocID)
	require.Equal(t, uint32(3), got[1].DocID)
	require.Equal(t, uint32(2), got[2].DocID)
}

func TestEmbedderQueryRejectsWrongDimensions(t *testing.T) {
	e := NewEmbedder(3, Euclidean)
	_, err := e.Query([]float32{1, 2}, 1, nil)
	require.Error(t, err)
}

func TestEmbedderAddRejectsWrongDimensions(t *testing.T) {
	e := NewEmbedder(3, Euclidean)
	err := e.Add(1, [][]float32{{1, 2}})
	require.Error(t, err)
}

func TestEmbedderMultipleVectorsPerDocBestWins(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	// doc 1 owns two vectors; the closer one should represent it.
	require.NoError(t, e.Add(1, [][]float32{{5, 0}, {1, 0}}))
	require.NoError(t, e.Add(2, [][]float32{{2, 0}}))

	got, err := e.Query([]float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint32(1), got[0].DocID)
	require.InDelta(t, float64(1), float64(got[0].Distance), 0.01)
	require.Equal(t, uint32(2), got[1].DocID)
}

func TestEmbedderReinsertOrphansPreviousVectors(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	require.NoError(t, e.Add(1, [][]float32{{0, 0}}))
	require.Equal(t, 1, e.Len())

	// Re-indexing doc 1 with a far-away vector should mean it no longer
	// shows up as the nearest neighbor to the origin.
	require.NoError(t, e.Add(1, [][]float32{{100, 100}}))
	require.Equal(t, 1, e.Len())

	require.NoError(t, e.Add(2, [][]float32{{1, 0}}))
	got, err := e.Query([]float32{0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint32(2), got[0].DocID)
}

func TestEmbedderRemoveDropsDocument(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	require.NoError(t, e.Add(1, [][]float32{{0, 0}}))
	require.NoError(t, e.Add(2, [][]float32{{1, 0}}))
	require.Equal(t, 2, e.Len())

	e.Remove(1)
	require.Equal(t, 1, e.Len())

	got, err := e.Query([]float32{0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint32(2), got[0].DocID)
}

func TestEmbedderQueryHonorsFilter(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	for id := uint32(1); id <= 10; id++ {
		require.NoError(t, e.Add(id, [][]float32{{float32(id), 0}}))
	}

	filter := roaring.New()
	filter.Add(7)
	filter.Add(9)

	got, err := e.Query([]float32{0, 0}, 2, filter)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint32(7), got[0].DocID)
	require.Equal(t, uint32(9), got[1].DocID)
}

func TestEmbedderQueryEmptyGraph(t *testing.T) {
	e := NewEmbedder(2, Euclidean)
	got, err := e.Query([]float32{0, 0}, 5, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestEmbedderCosineNormalizesVectors(t *testing.T) {
	e := NewEmbedder(2, Cosine)
	require.NoError(t, e.Add(1, [][]float32{{2, 0}}))
	require.NoError(t, e.Add(2, [][]float32{{0, 5}}))

	// A query vector pointing along the same direction as doc 1 should be
	// nearest it under cosine distance regardless of magnitude.
	got, err := e.Query([]float32{10, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint32(1), got[0].DocID)
}

func TestStoreRegisterAndEmbedder(t *testing.T) {
	s := NewStore()
	s.Register("default", 4, Cosine)

	e, ok := s.Embedder("default")
	require.True(t, ok)
	require.NotNil(t, e)

	_, ok = s.Embedder("missing")
	require.False(t, ok)
}

func TestStoreRemoveDocumentClearsAllEmbedders(t *testing.T) {
	s := NewStore()
	a := s.Register("a", 2, Euclidean)
	b := s.Register("b", 2, Euclidean)
	require.NoError(t, a.Add(1, [][]float32{{0, 0}}))
	require.NoError(t, b.Add(1, [][]float32{{0, 0}}))

	s.RemoveDocument(1)
	require.Equal(t, 0, a.Len())
	require.Equal(t, 0, b.Len())
}

func TestStoreNamesSorted(t *testing.T) {
	s := NewStore()
	s.Register("zeta", 2, Euclidean)
	s.Register("alpha", 2, Euclidean)
	require.Equal(t, []string{"alpha", "zeta"}, s.Names())
}
