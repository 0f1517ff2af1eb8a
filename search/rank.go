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
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/query"
	"github.com/meilisearch/searchcore/ranking"
)

// buildRankingGraph composes the standard Words/Typo/Proximity/Attribute/
// Exactness rules from resolved, followed by one Sort or Geo rule per
// clause in sortClauses, in spec.md §4.9's left-to-right order.
func (e *Executor) buildRankingGraph(res resolution, sortClauses []SortClause, candidates *roaring.Bitmap) (*ranking.Graph, error) {
	var rules []ranking.Rule

	if len(res.positions) > 0 {
		words := make([]ranking.TermMatch, 0, len(res.positions))
		typos := make([]ranking.TypoMatch, 0, len(res.positions))
		exact := make([]ranking.ExactMatch, 0, len(res.positions))
		fieldMatches := make([]ranking.FieldMatch, 0, len(res.positions))

		for _, pos := range res.positions {
			nodes := res.byPosition[pos]
			union := roaring.New()
			for _, rn := range nodes {
				union.Or(rn.docids)
				typos = append(typos, ranking.TypoMatch{Position: pos, Typos: rn.typos, Docids: rn.docids})
			}
			words = append(words, ranking.TermMatch{Position: pos, Docids: union})

			if bm, err := e.exactnessBitmap(nodes); err == nil && !bm.IsEmpty() {
				exact = append(exact, ranking.ExactMatch{Position: pos, Docids: bm})
			} else if err != nil {
				return nil, err
			}

			fms, err := e.fieldRankMatches(nodes)
			if err != nil {
				return nil, err
			}
			fieldMatches = append(fieldMatches, fms...)
		}

		rules = append(rules, ranking.NewWordsRule(words, candidates))
		rules = append(rules, ranking.NewTypoRule(typos, res.positions, candidates))

		if len(res.positions) > 1 {
			pairs, err := e.proximityMatches(res)
			if err != nil {
				return nil, err
			}
			rules = append(rules, ranking.NewProximityRule(pairs, len(res.positions)-1, candidates))
		}

		rules = append(rules, ranking.NewAttributeRule(fieldMatches, candidates))
		rules = append(rules, ranking.NewExactnessRule(exact, candidates))
	}

	for _, sc := range sortClauses {
		if sc.Geo {
			distances, err := e.geoDistances(sc.Lat, sc.Lng)
			if err != nil {
				return nil, err
			}
			dir := ranking.Ascending
			if sc.Direction == facet.Descending {
				dir = ranking.Descending
			}
			rules = append(rules, ranking.NewGeoRule(distances, dir))
			continue
		}
		fieldID, ok := e.snap.ID(sc.Field)
		if !ok {
			continue
		}
		rules = append(rules, ranking.NewSortRule(e.tx, fieldID, sc.Direction))
	}

	return ranking.NewGraph(rules...), nil
}

// exactnessBitmap resolves which documents matched this position's base
// query word verbatim (no typo correction applied), via exact_word_docids.
// Phrase/ngram/split-word nodes have no single base word to check and are
// simply skipped (they never contribute to the Exactness bucket at this
// position — spec.md leaves the exact cross-node interaction unspecified).
func (e *Executor) exactnessBitmap(nodes []resolvedNode) (*roaring.Bitmap, error) {
	for _, rn := range nodes {
		if rn.node.Kind != query.NodeWord && rn.node.Kind != query.NodeTypoTolerant {
			continue
		}
		v, err := e.tx.Get(kv.ExactWordDocids, []byte(rn.node.Term))
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		return codec.DecodeBitmap(v)
	}
	return roaring.New(), nil
}

// fieldRankMatches looks up, for every distinct base term at this position,
// which searchable fields it occurs in (word_fid_docids), converts each
// field id to its declared searchable-attribute rank, and returns one
// FieldMatch per (field rank, docids) pair found.
func (e *Executor) fieldRankMatches(nodes []resolvedNode) ([]ranking.FieldMatch, error) {
	var out []ranking.FieldMatch
	seenTerm := make(map[string]struct{})
	for _, rn := range nodes {
		term := rn.node.Term
		if rn.node.Kind == query.NodeNgram {
			term += rn.node.Term2
		}
		if term == "" {
			continue
		}
		if _, dup := seenTerm[term]; dup {
			continue
		}
		seenTerm[term] = struct{}{}

		prefix := []byte(term)
		err := e.tx.ForPrefix(kv.WordFidDocids, prefix, func(k, v []byte) (bool, error) {
			if len(k) != len(term)+4 {
				return true, nil
			}
			fieldID := codec.FieldID(codec.DecodeBEUint32(k[len(term):]))
			name, ok := e.snap.Name(fieldID)
			if !ok {
				return true, nil
			}
			bm, err := codec.DecodeBitmap(v)
			if err != nil {
				return false, err
			}
			out = append(out, ranking.FieldMatch{FieldRank: e.meta.SearchableRank(name), Docids: bm})
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// proximityMatches resolves, for each adjacent pair of query positions, the
// per-proximity-value document sets via word_pair_proximity_docids, trying
// every combination of base terms resolved at the two positions.
func (e *Executor) proximityMatches(res resolution) ([]ranking.PairProximity, error) {
	var out []ranking.PairProximity
	for pairIdx := 0; pairIdx+1 < len(res.positions); pairIdx++ {
		left := res.byPosition[res.positions[pairIdx]]
		right := res.byPosition[res.positions[pairIdx+1]]
		byProx := make(map[int]*roaring.Bitmap)
		for _, lrn := range left {
			for _, rrn := range right {
				w1, w2 := lrn.node.Term, rrn.node.Term
				if w1 == "" || w2 == "" {
					continue
				}
				for prox := uint8(0); prox <= 9; prox++ {
					key := codec.WordPairProximityKey(prox, w1, w2)
					v, err := e.tx.Get(kv.WordPairProximityDocids, key)
					if err != nil {
						return nil, err
					}
					if v == nil {
						continue
					}
					bm, err := codec.DecodeBitmap(v)
					if err != nil {
						return nil, err
					}
					if existing, ok := byProx[int(prox)]; ok {
						existing.Or(bm)
					} else {
						byProx[int(prox)] = bm.Clone()
					}
				}
			}
		}
		for prox, bm := range byProx {
			out = append(out, ranking.PairProximity{PairIndex: pairIdx, Proximity: prox, Docids: bm})
		}
	}
	return out, nil
}

// geoDistances resolves every live document's distance to (lat, lng) for the
// Geo ranking rule, restricted to documents the geo index actually knows
// about (documents without a _geo value never get a GeoDistance entry and
// fall into OrderedBitmapRule's trailing worst-ranked bucket).
func (e *Executor) geoDistances(lat, lng float64) ([]ranking.GeoDistance, error) {
	var out []ranking.GeoDistance
	it := e.universe.Iterator()
	for it.HasNext() {
		id := it.Next()
		if d, ok := e.geo.Distance(lat, lng, id); ok {
			out = append(out, ranking.GeoDistance{Docid: id, Distance: d})
		}
	}
	return out, nil
}

func (e *Executor) buildDistinct(field string) (Distinct, error) {
	if field == "" {
		return NoopDistinct{}, nil
	}
	fieldID, ok := e.snap.ID(field)
	if !ok {
		return NoopDistinct{}, nil
	}
	return NewFacetDistinct(e.tx, fieldID), nil
}

// drain walks rankingGraph's best-first bucket stream, applying distinct and
// the requested [skip, skip+take) window, stopping as soon as the window is
// full (spec.md §4.9's short-circuiting).
func (e *Executor) drain(g *ranking.Graph, candidates *roaring.Bitmap, distinct Distinct, skip, take int) (Result, error) {
	var hits []Hit
	var admitErr error
	scanned := 0

	err := g.Buckets(candidates, func(bucket *roaring.Bitmap) bool {
		it := bucket.Iterator()
		for it.HasNext() {
			id := it.Next()
			ok, err := distinct.Admit(id)
			if err != nil {
				admitErr = err
				return false
			}
			if !ok {
				continue
			}
			if scanned < skip {
				scanned++
				continue
			}
			hits = append(hits, Hit{DocumentID: id})
			scanned++
			if len(hits) >= take {
				return false
			}
		}
		return true
	})
	if err != nil {
		return Result{}, err
	}
	if admitErr != nil {
		return Result{}, admitErr
	}

	// scanned is an exact total when the walk exhausted every bucket before
	// the window filled, and a lower bound otherwise: distinct rejections
	// mean the true total could exceed what was actually walked (spec.md
	// §4.11, "distinct affects estimated_total_hits only in lower-bound
	// form").
	return Result{Hits: hits, EstimatedTotalHits: scanned}, nil
}
