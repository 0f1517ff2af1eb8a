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

// Package geoindex maintains the in-memory R-tree of document coordinates
// backing `_geoRadius`/`_geoBoundingBox` filters and the Geo ranking rule.
// The tree itself is never persisted directly; Tree.Encode/Decode (de)serialize
// it to the blob stored under the Main database's geo key, rebuilt into
// memory on index open (spec.md: "Geo R-tree: serialized blob in main").
package geoindex

import (
	"encoding/binary"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/rtree"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/extract"
)

// MainKeyGeo is the kv.Main key under which Tree.Encode's blob is stored,
// matching the name kv.Main's own doc comment already reserves for it
// ("serialized geo R-tree blob").
const MainKeyGeo = "geo"

// earthRadiusMeters is the mean Earth radius used by the haversine formula;
// good enough for the application-level geo filtering this engine does, not
// for geodetic survey work.
const earthRadiusMeters = 6371000.0

// Tree is a 2-dimensional R-tree over (lat, lng) points, one per document
// that carries a `_geo` value. It is not safe for concurrent use without
// external synchronization, matching the single-writer model of the rest
// of the index (index.Index serializes writes through the one RwTx).
type Tree struct {
	tree   rtree.RTreeG[codec.DocumentID]
	points map[codec.DocumentID]point
}

type point struct{ lat, lng float64 }

// New returns an empty Tree.
func New() *Tree {
	return &Tree{points: make(map[codec.DocumentID]point)}
}

// Apply folds one document's GeoChange into the tree: removing its old
// point (if any) before inserting its new one, so an Update that moves a
// document's coordinates never leaves a stale entry behind.
func (t *Tree) Apply(change extract.GeoChange) {
	if change.Remove != nil {
		t.remove(change.Remove.InternalID, change.Remove.Lat, change.Remove.Lng)
	}
	if change.Add != nil {
		t.insert(change.Add.InternalID, change.Add.Lat, change.Add.Lng)
	}
}

func (t *Tree) insert(id codec.DocumentID, lat, lng float64) {
	t.remove(id, lat, lng) // idempotent: drop any stale entry for id first
	t.points[id] = point{lat: lat, lng: lng}
	min, max := [2]float64{lat, lng}, [2]float64{lat, lng}
	t.tree.Insert(min, max, id)
}

func (t *Tree) remove(id codec.DocumentID, lat, lng float64) {
	if p, ok := t.points[id]; ok {
		min, max := [2]float64{p.lat, p.lng}, [2]float64{p.lat, p.lng}
		t.tree.Delete(min, max, id)
		delete(t.points, id)
		return
	}
	min, max := [2]float64{lat, lng}, [2]float64{lat, lng}
	t.tree.Delete(min, max, id)
}

// Radius returns every document within radiusMeters of (lat, lng), great-
// circle distance. The R-tree search first narrows to a bounding box
// generous enough to contain the circle, then haversine filters exactly.
func (t *Tree) Radius(lat, lng, radiusMeters float64) (*roaring.Bitmap, error) {
	latDelta := radiusMeters / earthRadiusMeters * (180 / math.Pi)
	lngDelta := latDelta / math.Max(math.Cos(lat*math.Pi/180), 1e-6)
	min := [2]float64{lat - latDelta, lng - lngDelta}
	max := [2]float64{lat + latDelta, lng + lngDelta}

	out := roaring.New()
	t.tree.Search(min, max, func(_, _ [2]float64, id codec.DocumentID) bool {
		p := t.points[id]
		if haversine(lat, lng, p.lat, p.lng) <= radiusMeters {
			out.Add(id)
		}
		return true
	})
	return out, nil
}

// BoundingBox returns every document whose point lies within the box
// spanned by the two opposite corners, normalizing whichever corner order
// the caller supplied (spec.md's example passes the north-west and
// south-east corners, i.e. max-lat/min-lat swapped from min/max order).
func (t *Tree) BoundingBox(lat1, lng1, lat2, lng2 float64) (*roaring.Bitmap, error) {
	min := [2]float64{math.Min(lat1, lat2), math.Min(lng1, lng2)}
	max := [2]float64{math.Max(lat1, lat2), math.Max(lng1, lng2)}

	out := roaring.New()
	t.tree.Search(min, max, func(_, _ [2]float64, id codec.DocumentID) bool {
		out.Add(id)
		return true
	})
	return out, nil
}

// Distance returns the great-circle distance, in meters, from (lat, lng) to
// id's indexed point, for the Geo ranking rule's GeoDistance inputs.
// ok is false if id has no indexed point.
func (t *Tree) Distance(lat, lng float64, id codec.DocumentID) (meters float64, ok bool) {
	p, ok := t.points[id]
	if !ok {
		return 0, false
	}
	return haversine(lat, lng, p.lat, p.lng), true
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Encode serializes every indexed point as a flat id(u32 BE) | lat(f64 BE) |
// lng(f64 BE) run, the blob persisted under Main's geo key.
func (t *Tree) Encode() []byte {
	buf := make([]byte, 0, len(t.points)*20)
	for id, p := range t.points {
		var rec [20]byte
		binary.BigEndian.PutUint32(rec[0:4], id)
		binary.BigEndian.PutUint64(rec[4:12], math.Float64bits(p.lat))
		binary.BigEndian.PutUint64(rec[12:20], math.Float64bits(p.lng))
		buf = append(buf, rec[:]...)
	}
	return buf
}

// Decode rebuilds a Tree from a blob produced by Encode.
func Decode(b []byte) (*Tree, error) {
	t := New()
	const recLen = 20
	for off := 0; off+recLen <= len(b); off += recLen {
		id := binary.BigEndian.Uint32(b[off : off+4])
		lat := math.Float64frombits(binary.BigEndian.Uint64(b[off+4 : off+12]))
		lng := math.Float64frombits(binary.BigEndian.Uint64(b[off+12 : off+20]))
		t.insert(id, lat, lng)
	}
	return t, nil
}
