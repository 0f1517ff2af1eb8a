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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xrash/smetrics"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

// GeoIndex resolves geo predicates against the R-tree; satisfied by
// geoindex.Tree. Kept as a narrow interface here so filter does not
// depend on the R-tree's storage format, only on the two query shapes the
// grammar exposes.
type GeoIndex interface {
	Radius(lat, lng, radiusMeters float64) (*roaring.Bitmap, error)
	BoundingBox(lat1, lng1, lat2, lng2 float64) (*roaring.Bitmap, error)
}

// InvalidFilterError reports a filter referencing a field that either does
// not exist or is not filterable, with a Jaro-Winkler "did you mean"
// suggestion over the index's actual filterable fields (spec.md §6.3).
type InvalidFilterError struct {
	Field      string
	Suggestion string
}

func (e *InvalidFilterError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("filter: field %q is not filterable", e.Field)
	}
	return fmt.Sprintf("filter: field %q is not filterable (did you mean %q?)", e.Field, e.Suggestion)
}

func newInvalidFilterError(field string, candidates []string) *InvalidFilterError {
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := smetrics.JaroWinkler(field, c, 0.7, 4)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore < 0.5 {
		best = ""
	}
	return &InvalidFilterError{Field: field, Suggestion: best}
}

// Eval evaluates expr against the facet databases and geo index, returning
// the matching document-id bitmap. universe must already exclude
// soft-deleted ids (spec.md invariant 7); Not subtracts from it. cache may
// be nil, in which case every equality lookup decodes its bitmap fresh.
func Eval(tx kv.RoTx, expr Expr, meta *fields.MetadataBuilder, snap *fields.Snapshot, universe *roaring.Bitmap, geo GeoIndex, cache *facet.BitmapCache) (*roaring.Bitmap, error) {
	e := &evaluator{tx: tx, meta: meta, snap: snap, universe: universe, geo: geo, cache: cache}
	return e.eval(expr)
}

type evaluator struct {
	tx       kv.RoTx
	meta     *fields.MetadataBuilder
	snap     *fields.Snapshot
	universe *roaring.Bitmap
	geo      GeoIndex
	cache    *facet.BitmapCache
}

func (e *evaluator) eval(expr Expr) (*roaring.Bitmap, error) {
	switch n := expr.(type) {
	case And:
		return e.evalAnd(n)
	case Or:
		return e.evalOr(n)
	case Not:
		child, err := e.eval(n.Child)
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(e.universe, child), nil
	case Cmp:
		return e.evalCmp(n)
	case In:
		return e.evalIn(n)
	case Exists:
		return e.evalFlag(n.Field, n.Negate, kv.FacetIdExistsDocids)
	case IsNull:
		return e.evalFlag(n.Field, n.Negate, kv.FacetIdIsNullDocids)
	case IsEmpty:
		return e.evalFlag(n.Field, n.Negate, kv.FacetIdIsEmptyDocids)
	case GeoRadius:
		if e.geo == nil {
			return nil, fmt.Errorf("filter: _geoRadius used but no geo index is available")
		}
		return e.geo.Radius(n.Lat, n.Lng, n.RadiusMeters)
	case GeoBoundingBox:
		if e.geo == nil {
			return nil, fmt.Errorf("filter: _geoBoundingBox used but no geo index is available")
		}
		return e.geo.BoundingBox(n.Lat1, n.Lng1, n.Lat2, n.Lng2)
	default:
		return nil, fmt.Errorf("filter: unhandled expression node %T", expr)
	}
}

func (e *evaluator) evalAnd(n And) (*roaring.Bitmap, error) {
	result := e.universe.Clone()
	for _, c := range n.Children {
		child, err := e.eval(c)
		if err != nil {
			return nil, err
		}
		result.And(child)
		if result.IsEmpty() {
			break
		}
	}
	return result, nil
}

func (e *evaluator) evalOr(n Or) (*roaring.Bitmap, error) {
	result := roaring.New()
	for _, c := range n.Children {
		child, err := e.eval(c)
		if err != nil {
			return nil, err
		}
		result.Or(child)
	}
	return result, nil
}

// fieldID resolves name to a field id, checking it is configured filterable
// (spec.md's filter grammar only operates on filterable fields) and
// producing a "did you mean" error otherwise.
func (e *evaluator) fieldID(name string) (codec.FieldID, error) {
	if !e.meta.Metadata(name).Filterable {
		return 0, newInvalidFilterError(name, e.meta.FilterableNames())
	}
	id, ok := e.snap.ID(name)
	if !ok {
		return 0, newInvalidFilterError(name, e.meta.FilterableNames())
	}
	return id, nil
}

func (e *evaluator) evalFlag(field string, negate bool, table string) (*roaring.Bitmap, error) {
	fieldID, err := e.fieldID(field)
	if err != nil {
		return nil, err
	}
	bm, err := readBitmap(e.tx, table, codec.BEUint32(uint32(fieldID)))
	if err != nil {
		return nil, err
	}
	if negate {
		return roaring.AndNot(e.universe, bm), nil
	}
	return bm, nil
}

func (e *evaluator) evalCmp(n Cmp) (*roaring.Bitmap, error) {
	fieldID, err := e.fieldID(n.Field)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case Eq, Neq:
		eq, err := e.equalityBitmap(fieldID, n.Value)
		if err != nil {
			return nil, err
		}
		if n.Op == Eq {
			return eq, nil
		}
		exists, err := readBitmap(e.tx, kv.FacetIdExistsDocids, codec.BEUint32(uint32(fieldID)))
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(exists, eq), nil
	case Gt, Gte, Lt, Lte:
		f, ok := n.Value.(float64)
		if !ok {
			// non-numeric literal against an ordering operator: spec.md only
			// defines the symmetric case explicitly, so treat it the same way.
			return roaring.New(), nil
		}
		return e.rangeBitmap(fieldID, n.Op, f)
	default:
		return nil, fmt.Errorf("filter: unknown comparison operator %v", n.Op)
	}
}

func (e *evaluator) evalIn(n In) (*roaring.Bitmap, error) {
	fieldID, err := e.fieldID(n.Field)
	if err != nil {
		return nil, err
	}
	union := roaring.New()
	for _, v := range n.Values {
		bm, err := e.equalityBitmap(fieldID, v)
		if err != nil {
			return nil, err
		}
		union.Or(bm)
	}
	if n.Negate {
		exists, err := readBitmap(e.tx, kv.FacetIdExistsDocids, codec.BEUint32(uint32(fieldID)))
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(exists, union), nil
	}
	return union, nil
}

// equalityBitmap looks up the exact-match bitmap for value, which is a
// single key lookup rather than a tree walk: level-0 facet entries are
// stored with Left==Right==the value itself (see extract.emitNumberFacet /
// emitStringFacet). A float literal against a field whose values are
// strings (or vice versa) simply misses the lookup and returns empty,
// which is spec.md §6.3's documented "non-numeric field vs numeric
// literal" behavior generalized to both directions.
func (e *evaluator) equalityBitmap(fieldID codec.FieldID, value any) (*roaring.Bitmap, error) {
	switch v := value.(type) {
	case float64:
		key := codec.FacetF64Key{FieldID: fieldID, Level: 0, Left: v, Right: v}.Encode()
		return e.cachedBitmap(kv.FacetIdF64Docids, key)
	case string:
		normalized := strings.ToLower(strings.TrimSpace(v))
		key := codec.FacetStringKey{FieldID: fieldID, Level: 0, Left: normalized, Right: normalized}.Encode()
		return e.cachedBitmap(kv.FacetIdStringDocids, key)
	default:
		return nil, fmt.Errorf("filter: unsupported literal type %T", value)
	}
}

// cachedBitmap is readBitmap with e.cache consulted first: an equality
// filter on a common facet value decodes the same (table, key) pair on
// every search until the next commit invalidates it.
func (e *evaluator) cachedBitmap(table string, key []byte) (*roaring.Bitmap, error) {
	if e.cache == nil {
		return readBitmap(e.tx, table, key)
	}
	cacheKey := table + string(key)
	if bm, ok := e.cache.Get(cacheKey); ok {
		return bm, nil
	}
	bm, err := readBitmap(e.tx, table, key)
	if err != nil {
		return nil, err
	}
	e.cache.Add(cacheKey, bm)
	return bm, nil
}

// rangeBitmap scans every level-0 numeric entry for fieldID and unions
// those satisfying op against threshold. Level-0 is the only level that
// must be consulted for correctness; levels above it exist for facet.Sort's
// ordered walk, not for range membership.
func (e *evaluator) rangeBitmap(fieldID codec.FieldID, op Op, threshold float64) (*roaring.Bitmap, error) {
	union := roaring.New()
	var scanErr error
	err := e.tx.ForPrefix(kv.FacetIdF64Docids, fieldIDPrefix(fieldID), func(k, v []byte) (bool, error) {
		fk := codec.DecodeFacetF64Key(k)
		if fk.Level != 0 {
			return true, nil
		}
		if !satisfies(op, fk.Left, threshold) {
			return true, nil
		}
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			scanErr = err
			return false, err
		}
		union.Or(bm)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return union, nil
}

func satisfies(op Op, value, threshold float64) bool {
	switch op {
	case Gt:
		return value > threshold
	case Gte:
		return value >= threshold
	case Lt:
		return value < threshold
	case Lte:
		return value <= threshold
	default:
		return false
	}
}

func fieldIDPrefix(fieldID codec.FieldID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, fieldID)
	return b
}

func readBitmap(tx kv.RoTx, table string, key []byte) (*roaring.Bitmap, error) {
	v, err := tx.Get(table, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return roaring.New(), nil
	}
	return codec.DecodeBitmap(v)
}
