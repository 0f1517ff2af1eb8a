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
	"go.uber.org/mock/gomock"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/kv/kvmock"
)

// TestEqualityBitmapHitsTxExactlyOnce pins the single-key-lookup contract
// equalityBitmap's doc comment describes: one Get against the facet table,
// not a prefix scan, for an exact-match literal.
func TestEqualityBitmapHitsTxExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	tx := kvmock.NewMockRoTx(ctrl)

	bm := roaring.New()
	bm.AddMany([]uint32{7, 9})
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)

	tx.EXPECT().Get(kv.FacetIdStringDocids, gomock.Any()).Return(enc, nil).Times(1)

	e := &evaluator{tx: tx}
	got, err := e.equalityBitmap(3, "red")
	require.NoError(t, err)
	require.Equal(t, []uint32{7, 9}, got.ToArray())
}

// TestEqualityBitmapCacheAvoidsSecondTxCall asserts a populated
// facet.BitmapCache short-circuits the second identical lookup entirely:
// gomock.Times(1) fails the test if cachedBitmap falls through to tx.Get
// twice.
func TestEqualityBitmapCacheAvoidsSecondTxCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	tx := kvmock.NewMockRoTx(ctrl)

	bm := roaring.New()
	bm.AddMany([]uint32{1})
	enc, err := codec.EncodeBitmap(bm)
	require.NoError(t, err)

	tx.EXPECT().Get(kv.FacetIdF64Docids, gomock.Any()).Return(enc, nil).Times(1)

	e := &evaluator{tx: tx, cache: facet.NewBitmapCache(16)}
	for i := 0; i < 2; i++ {
		got, err := e.equalityBitmap(5, 42.0)
		require.NoError(t, err)
		require.Equal(t, []uint32{1}, got.ToArray())
	}
}
