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

package codec

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func TestPackPositionRoundTrip(t *testing.T) {
	pos := PackPosition(3, 42)
	attr, idx := UnpackPosition(pos)
	require.Equal(t, uint32(3), attr)
	require.Equal(t, uint32(42), idx)
}

func TestBEFloat64Ordering(t *testing.T) {
	values := []float64{-100.5, -1, -0.0001, 0, 0.0001, 1, 100.5}
	for i := 1; i < len(values); i++ {
		require.Less(t, string(BEFloat64(values[i-1])), string(BEFloat64(values[i])))
	}
	require.Equal(t, BEFloat64(0), BEFloat64(-0.0))
}

func TestBEFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{-12345.6789, 0, 1, -1, 3.14159} {
		got := DecodeBEFloat64(BEFloat64(v))
		require.InDelta(t, v, got, 1e-9)
	}
}

func TestBitmapCodecBoundedRoundTrip(t *testing.T) {
	bm := roaring.New()
	bm.AddMany([]uint32{1, 5, 9})
	enc, err := EncodeBitmap(bm)
	require.NoError(t, err)
	require.Equal(t, byte(boundedMagic), enc[0])

	dec, err := DecodeBitmap(enc)
	require.NoError(t, err)
	require.True(t, bm.Equals(dec))
}

func TestBitmapCodecLargeRoundTrip(t *testing.T) {
	bm := roaring.New()
	for i := uint32(0); i < 10000; i++ {
		bm.Add(i * 3)
	}
	enc, err := EncodeBitmap(bm)
	require.NoError(t, err)
	require.NotEqual(t, byte(boundedMagic), enc[0])

	dec, err := DecodeBitmap(enc)
	require.NoError(t, err)
	require.True(t, bm.Equals(dec))
}

func TestRecordRoundTrip(t *testing.T) {
	r := Record{
		1: []byte(`"Gläss"`),
		2: []byte(`["blue","red"]`),
		5: []byte(`42`),
	}
	enc := EncodeRecord(r)
	dec, err := DecodeRecord(enc)
	require.NoError(t, err)
	require.Equal(t, r, dec)
}

func TestFacetKeyRoundTrip(t *testing.T) {
	k := FacetF64Key{FieldID: 7, Level: 2, Left: -5.5, Right: 100.25}
	dec := DecodeFacetF64Key(k.Encode())
	require.Equal(t, k.FieldID, dec.FieldID)
	require.Equal(t, k.Level, dec.Level)
	require.InDelta(t, k.Left, dec.Left, 1e-9)
	require.InDelta(t, k.Right, dec.Right, 1e-9)

	sk := FacetStringKey{FieldID: 3, Level: 0, Left: "alpha", Right: "beta"}
	sdec := DecodeFacetStringKey(sk.Encode())
	require.Equal(t, sk, sdec)
}
