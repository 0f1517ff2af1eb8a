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

package geoindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meilisearch/searchcore/extract"
)

func TestBoundingBoxMatchesSpecScenarioC(t *testing.T) {
	tr := New()
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 1, Lat: 34.05, Lng: -118.24}})
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 2, Lat: 45.48, Lng: 9.20}})
	// doc 3 has no _geo value at all, so it is simply never inserted.

	bm, err := tr.BoundingBox(89, 179, -89, -179)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, bm.ToArray())
}

func TestRadiusExcludesFarPoints(t *testing.T) {
	tr := New()
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 1, Lat: 48.8566, Lng: 2.3522}})   // Paris
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 2, Lat: 51.5074, Lng: -0.1278}}) // London
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 3, Lat: 35.6762, Lng: 139.6503}}) // Tokyo

	bm, err := tr.Radius(48.8566, 2.3522, 500_000) // 500km around Paris
	require.NoError(t, err)
	require.Contains(t, bm.ToArray(), uint32(1))
	require.NotContains(t, bm.ToArray(), uint32(3))
}

func TestApplyUpdateMovesPoint(t *testing.T) {
	tr := New()
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 1, Lat: 0, Lng: 0}})
	tr.Apply(extract.GeoChange{
		Remove: &extract.GeoPoint{InternalID: 1, Lat: 0, Lng: 0},
		Add:    &extract.GeoPoint{InternalID: 1, Lat: 10, Lng: 10},
	})

	dist, ok := tr.Distance(10, 10, 1)
	require.True(t, ok)
	require.InDelta(t, 0, dist, 1.0)
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	tr := New()
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 1, Lat: 34.05, Lng: -118.24}})
	tr.Apply(extract.GeoChange{Add: &extract.GeoPoint{InternalID: 2, Lat: 45.48, Lng: 9.20}})

	blob := tr.Encode()
	restored, err := Decode(blob)
	require.NoError(t, err)

	bm, err := restored.BoundingBox(89, 179, -89, -179)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, bm.ToArray())
}
