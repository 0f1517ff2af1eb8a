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
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/fields"
)

// GeoField is the reserved attribute name holding a document's coordinates,
// per spec.md §4.11: {"lat": <f64>, "lng": <f64>}. A document carrying a
// partial or malformed _geo is rejected outright rather than silently
// dropped from geo search.
const GeoField = "_geo"

// GeoPoint is one document's resolved coordinates.
type GeoPoint struct {
	InternalID codec.DocumentID
	Lat, Lng   float64
}

// GeoChange is the geo-index delta for one document operation: at most one
// of Remove/Add is set per direction (Remove carries the old point when an
// update or delete removes geo data, Add the new point when an insert or
// update introduces or changes it).
type GeoChange struct {
	Remove *GeoPoint
	Add    *GeoPoint
}

// GeoExtractor computes the GeoChange for one operation. It does not satisfy
// the Extractor interface (it returns a typed value, not a Deladd) because
// the geo index is an R-tree, not a bitmap table; the merger calls it
// directly and feeds results to geoindex.Tree.
type GeoExtractor struct{}

func (GeoExtractor) Extract(op Operation, fieldID codec.FieldID) (GeoChange, error) {
	var change GeoChange
	if op.Old != nil {
		if raw, ok := op.Old[fieldID]; ok {
			p, err := parseGeoPoint(raw, op.InternalID)
			if err != nil {
				return change, err
			}
			change.Remove = p
		}
	}
	if op.New != nil {
		if raw, ok := op.New[fieldID]; ok {
			p, err := parseGeoPoint(raw, op.InternalID)
			if err != nil {
				return change, err
			}
			change.Add = p
		}
	}
	return change, nil
}

func parseGeoPoint(raw []byte, id codec.DocumentID) (*GeoPoint, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("_geo: invalid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("_geo: expected an object with lat/lng, got %s", v.Type())
	}
	latV := v.Get("lat")
	lngV := v.Get("lng")
	if latV == nil || lngV == nil {
		return nil, fmt.Errorf("_geo: must set both lat and lng")
	}
	lat, err := latV.Float64()
	if err != nil {
		return nil, fmt.Errorf("_geo.lat: %w", err)
	}
	lng, err := lngV.Float64()
	if err != nil {
		return nil, fmt.Errorf("_geo.lng: %w", err)
	}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("_geo.lat: %f out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return nil, fmt.Errorf("_geo.lng: %f out of range [-180, 180]", lng)
	}
	return &GeoPoint{InternalID: id, Lat: lat, Lng: lng}, nil
}

// geoFieldID resolves GeoField against a fields snapshot; callers skip geo
// extraction entirely when it returns false (no document in the batch has
// ever set _geo).
func geoFieldID(snap *fields.Snapshot) (codec.FieldID, bool) {
	return snap.ID(GeoField)
}
