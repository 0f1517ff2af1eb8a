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
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/filter"
	"github.com/meilisearch/searchcore/fstindex"
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/query"
)

// SortClause is one parsed entry of a search request's "sort" option: either
// a field name or the special geo-anchor form "_geoPoint(lat,lng)".
type SortClause struct {
	Field     string
	Geo       bool
	Lat, Lng  float64
	Direction facet.Direction
}

// Request bundles the parsed, already-validated parts of a search request
// (spec.md §6.4); the HTTP/API layer this engine sits under is responsible
// for parsing request JSON into this shape.
type Request struct {
	QueryText      string
	QueryResources query.Resources
	Filter         filter.Expr // nil: no filtering
	Sort           []SortClause
	Pagination     Pagination
	DistinctField  string // "" disables distinct
	Explain        bool   // true: Result.ExplainDOT holds the rule chain's DOT dump
}

// Hit is one ranked result.
type Hit struct {
	DocumentID codec.DocumentID
}

// Result is the executor's output, matching the shape of spec.md §6.1's
// search() return value minus the fields (facets, per-hit score details,
// processing_time_ms) that belong to layers above this package.
type Result struct {
	Hits               []Hit
	EstimatedTotalHits int
	// ExplainDOT holds ranking.Graph.DOT()'s rendering of the rule chain built
	// for this request, set only when Request.Explain was true (building it
	// is free, but most callers never look at it).
	ExplainDOT string
}

// Executor drives one search request against a read transaction.
type Executor struct {
	tx       kv.RoTx
	meta     *fields.MetadataBuilder
	snap     *fields.Snapshot
	geo      GeoIndex
	universe *roaring.Bitmap // every document id minus soft-deleted

	// wordDict/prefixDict are loaded once per Executor from kv.Main, where
	// merge.Merger's call to fstindex.Rebuild leaves them after every
	// committed batch. Either may be nil (a fresh, never-yet-committed
	// environment), in which case resolveNode falls back to scanning
	// word_docids/word_prefix_docids directly.
	wordDict   *fstindex.Dict
	prefixDict *fstindex.Dict

	// facetCache memoizes equality-filter bitmap lookups across every node
	// of one query's graph, and across every Executor sharing an Index; may
	// be nil.
	facetCache *facet.BitmapCache
}

// GeoIndex is the narrow geo lookup surface the executor needs: query
// filtering (via filter.GeoIndex) plus per-document distance for the Geo
// ranking rule and sort clause.
type GeoIndex interface {
	filter.GeoIndex
	Distance(lat, lng float64, id codec.DocumentID) (meters float64, ok bool)
}

// NewExecutor builds an Executor over tx. universe is every live document id
// (all docids minus soft-deleted), supplied by the caller per filter.Eval's
// own contract. Term/prefix dictionaries are loaded eagerly so a single
// Executor reuses them across every node of one query's graph; callers
// construct a fresh Executor per request, matching the read transaction's
// own per-request lifetime.
func NewExecutor(tx kv.RoTx, meta *fields.MetadataBuilder, snap *fields.Snapshot, geo GeoIndex, universe *roaring.Bitmap, facetCache *facet.BitmapCache) (*Executor, error) {
	wordDict, _, err := fstindex.LoadWords(tx)
	if err != nil {
		return nil, err
	}
	prefixDict, _, err := fstindex.LoadPrefixes(tx)
	if err != nil {
		return nil, err
	}
	return &Executor{
		tx: tx, meta: meta, snap: snap, geo: geo, universe: universe,
		wordDict: wordDict, prefixDict: prefixDict, facetCache: facetCache,
	}, nil
}

// Search runs req and returns the ranked, paginated, distinct-filtered
// result.
func (e *Executor) Search(req Request) (Result, error) {
	candidates := e.universe.Clone()

	if req.Filter != nil {
		bm, err := filter.Eval(e.tx, req.Filter, e.meta, e.snap, e.universe, e.geo, e.facetCache)
		if err != nil {
			return Result{}, err
		}
		candidates = bm
	}

	graph := query.Compile(req.QueryText, req.QueryResources)
	resolved, err := e.resolveGraph(graph)
	if err != nil {
		return Result{}, err
	}
	if req.QueryText != "" {
		candidates = roaring.And(candidates, resolved.matchedAny)
	}

	rankingGraph, err := e.buildRankingGraph(resolved, req.Sort, candidates)
	if err != nil {
		return Result{}, err
	}

	skip, take, err := req.Pagination.Window()
	if err != nil {
		return Result{}, err
	}

	distinct, err := e.buildDistinct(req.DistinctField)
	if err != nil {
		return Result{}, err
	}

	result, err := e.drain(rankingGraph, candidates, distinct, skip, take)
	if err != nil {
		return Result{}, err
	}
	if req.Explain {
		result.ExplainDOT = rankingGraph.DOT()
	}
	return result, nil
}

// resolution holds, per query-graph position, every node's resolved bitmap,
// plus the union of all of them (the overall "matched this query at all"
// candidate restriction).
type resolution struct {
	byPosition map[int][]resolvedNode
	matchedAny *roaring.Bitmap
	positions  []int // sorted, deduplicated query.Node positions excluding Start/End
}

type resolvedNode struct {
	node   query.Node
	typos  int // effective typo cost for the Typo rule
	docids *roaring.Bitmap
}

func (e *Executor) resolveGraph(g *query.Graph) (resolution, error) {
	res := resolution{byPosition: make(map[int][]resolvedNode), matchedAny: roaring.New()}
	posSeen := make(map[int]struct{})
	for _, n := range g.Nodes {
		if n.Kind == query.NodeStart || n.Kind == query.NodeEnd {
			continue
		}
		nodes, err := e.resolveNode(n)
		if err != nil {
			return resolution{}, err
		}
		for _, rn := range nodes {
			res.byPosition[n.Position] = append(res.byPosition[n.Position], rn)
			res.matchedAny.Or(rn.docids)
		}
		posSeen[n.Position] = struct{}{}
	}
	for p := range posSeen {
		res.positions = append(res.positions, p)
	}
	sort.Ints(res.positions)
	return res, nil
}

// resolveNode expands a single query-graph node into one or more
// (typo-cost, docids) results. Typo-tolerant nodes may resolve to several
// results at different costs (one per distinct edit distance actually found
// in the vocabulary); every other kind resolves to exactly one.
func (e *Executor) resolveNode(n query.Node) ([]resolvedNode, error) {
	switch n.Kind {
	case query.NodeWord, query.NodeSynonym:
		bm, err := e.exactTermBitmap(n.Term)
		if err != nil {
			return nil, err
		}
		return []resolvedNode{{node: n, typos: 0, docids: bm}}, nil

	case query.NodePrefix:
		bm, err := e.prefixBitmap(n.Term)
		if err != nil {
			return nil, err
		}
		return []resolvedNode{{node: n, typos: 0, docids: bm}}, nil

	case query.NodeNgram:
		bm, err := e.exactTermBitmap(n.Term + n.Term2)
		if err != nil {
			return nil, err
		}
		return []resolvedNode{{node: n, typos: n.NgramCost, docids: bm}}, nil

	case query.NodePhrase, query.NodeSplitWord:
		bm, err := e.adjacentPairBitmap(n.Term, n.Term2)
		if err != nil {
			return nil, err
		}
		typos := 0
		if n.Kind == query.NodeSplitWord {
			typos = 1
		}
		return []resolvedNode{{node: n, typos: typos, docids: bm}}, nil

	case query.NodeTypoTolerant:
		return e.typoTolerantBitmaps(n)

	default:
		return nil, nil
	}
}

func (e *Executor) exactTermBitmap(term string) (*roaring.Bitmap, error) {
	v, err := e.tx.Get(kv.WordDocids, []byte(term))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return roaring.New(), nil
	}
	return codec.DecodeBitmap(v)
}

// prefixBitmap unions the bitmaps of every indexed term sharing prefix.
// Short prefixes (up to fstindex.MaxPrefixLength) resolve directly against
// the precomputed kv.WordPrefixDocids entry word_extractor writes for them;
// anything longer walks wordDict (when one has been built) to enumerate
// matching terms without a key-range scan, falling back to scanning
// word_docids by key range when no dictionary is available yet (a freshly
// opened, never-committed environment).
func (e *Executor) prefixBitmap(prefix string) (*roaring.Bitmap, error) {
	if len([]rune(prefix)) <= fstindex.MaxPrefixLength {
		v, err := e.tx.Get(kv.WordPrefixDocids, []byte(prefix))
		if err != nil {
			return nil, err
		}
		if v != nil {
			return codec.DecodeBitmap(v)
		}
		return roaring.New(), nil
	}

	if e.wordDict != nil {
		return e.unionDictTerms(kv.WordDocids, func() ([]string, error) { return e.wordDict.Prefix(prefix) })
	}

	out := roaring.New()
	err := e.tx.ForPrefix(kv.WordDocids, []byte(prefix), func(_, v []byte) (bool, error) {
		bm, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		out.Or(bm)
		return true, nil
	})
	return out, err
}

// unionDictTerms looks up terms() in table and unions every bitmap found.
func (e *Executor) unionDictTerms(table string, terms func() ([]string, error)) (*roaring.Bitmap, error) {
	matches, err := terms()
	if err != nil {
		return nil, err
	}
	out := roaring.New()
	for _, term := range matches {
		v, err := e.tx.Get(table, []byte(term))
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
		out.Or(bm)
	}
	return out, nil
}

// adjacentPairBitmap returns every document where w1 occurs immediately
// before w2 in the same field, via word_position_docids: for every position
// p at which w1 occurs, check w2's presence at p+1 directly.
func (e *Executor) adjacentPairBitmap(w1, w2 string) (*roaring.Bitmap, error) {
	out := roaring.New()
	prefix := []byte(w1)
	err := e.tx.ForPrefix(kv.WordPositionDocids, prefix, func(k, v []byte) (bool, error) {
		if len(k) != len(w1)+4 || string(k[:len(w1)]) != w1 {
			return true, nil
		}
		pos := codec.DecodeBEUint32(k[len(w1):])
		attr, idx := codec.UnpackPosition(pos)
		nextKey := codec.WordPositionKey(w2, codec.PackPosition(attr, idx+1))
		nv, err := e.tx.Get(kv.WordPositionDocids, nextKey)
		if err != nil {
			return false, err
		}
		if nv == nil {
			return true, nil
		}
		lhs, err := codec.DecodeBitmap(v)
		if err != nil {
			return false, err
		}
		rhs, err := codec.DecodeBitmap(nv)
		if err != nil {
			return false, err
		}
		out.Or(roaring.And(lhs, rhs))
		return true, nil
	})
	return out, err
}

// typoTolerantBitmaps groups every term within n.MaxTypos edit distance of
// n.Term by its exact distance, producing one resolvedNode per distance
// actually found. When wordDict is available, candidate terms come from
// walking the FST with a Levenshtein automaton (fstindex.Dict.Fuzzy) —
// touching only matching terms, not the whole vocabulary. Without a
// dictionary yet (a freshly opened, never-committed environment) this falls
// back to testing every indexed term individually.
func (e *Executor) typoTolerantBitmaps(n query.Node) ([]resolvedNode, error) {
	if n.MaxTypos == 0 {
		bm, err := e.exactTermBitmap(n.Term)
		if err != nil {
			return nil, err
		}
		return []resolvedNode{{node: n, typos: 0, docids: bm}}, nil
	}

	byDistance := make(map[int]*roaring.Bitmap)
	if e.wordDict != nil {
		terms, err := e.wordDict.Fuzzy(n.Term, uint8(n.MaxTypos))
		if err != nil {
			return nil, err
		}
		for _, term := range terms {
			d := boundedLevenshtein(n.Term, term, n.MaxTypos)
			if d < 0 {
				continue
			}
			v, err := e.tx.Get(kv.WordDocids, []byte(term))
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
			mergeDistance(byDistance, d, bm)
		}
	} else {
		err := e.tx.ForPrefix(kv.WordDocids, nil, func(k, v []byte) (bool, error) {
			term := string(k)
			d := boundedLevenshtein(n.Term, term, n.MaxTypos)
			if d < 0 {
				return true, nil
			}
			bm, err := codec.DecodeBitmap(v)
			if err != nil {
				return false, err
			}
			mergeDistance(byDistance, d, bm)
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]resolvedNode, 0, len(byDistance))
	for d, bm := range byDistance {
		out = append(out, resolvedNode{node: n, typos: d, docids: bm})
	}
	return out, nil
}

func mergeDistance(byDistance map[int]*roaring.Bitmap, d int, bm *roaring.Bitmap) {
	if existing, ok := byDistance[d]; ok {
		existing.Or(bm)
	} else {
		byDistance[d] = bm.Clone()
	}
}

// boundedLevenshtein returns the edit distance between a and b, or -1 if it
// exceeds max (computed eagerly rather than early-exited, which is fine at
// the short word lengths typo tolerance applies to in the first place).
func boundedLevenshtein(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > max {
		return -1
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	d := prev[len(rb)]
	if d > max {
		return -1
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
