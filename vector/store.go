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

// Package vector holds the per-embedder ANN indexes described by spec.md
// §4.13: "per embedder: an ANN index keyed by internal id, supporting
// query(vector, k) -> [(docid, distance)]". It is grounded on
// github.com/coder/hnsw, a pure-Go HNSW implementation with no cgo surface,
// pulled in from the broader example pack rather than the teacher itself
// (see DESIGN.md) since the teacher has no vector-search component of its
// own to imitate.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/coder/hnsw"

	"github.com/meilisearch/searchcore/codec"
)

// Metric selects the distance function an embedder's index scores by.
type Metric int

const (
	// Cosine normalizes every vector to unit length on insertion and query,
	// matching coder/hnsw's CosineDistance convention (0 = identical, 2 =
	// opposite).
	Cosine Metric = iota
	// Euclidean leaves vectors unnormalized and scores by L2 distance.
	Euclidean
)

// defaultM and defaultEfSearch mirror coder/hnsw's own recommended defaults,
// as surfaced by the pack's HNSW store wrapper.
const (
	defaultM        = 16
	defaultEfSearch = 20
	defaultMl       = 0.25 // 1/ln(M) for M=16
)

// Result is one ranked neighbor of a query vector.
type Result struct {
	DocID    codec.DocumentID
	Distance float32
}

// key packs a document id and a per-document vector slot into the single
// uint64 coder/hnsw wants as a graph key, so a document may own more than
// one embedding (spec.md §4.13's "multiple vectors per document are
// allowed") without the graph needing to know about documents at all.
type key uint64

func packKey(id codec.DocumentID, slot uint32) key {
	return key(uint64(id)<<32 | uint64(slot))
}

func (k key) docID() codec.DocumentID { return codec.DocumentID(uint64(k) >> 32) }

// Embedder is one embedder's ANN index: a single coder/hnsw graph holding
// every vector of every document indexed under it, keyed by (docid, slot).
// A document's previous slots are lazily orphaned on re-insertion rather
// than removed from the graph, following the pack's documented workaround
// for a coder/hnsw bug where deleting the last remaining node corrupts the
// graph (see DESIGN.md); orphaned keys are filtered out of query results by
// consulting deleted instead.
type Embedder struct {
	mu         sync.RWMutex
	dimensions int
	metric     Metric
	graph      *hnsw.Graph[key]
	slots      map[codec.DocumentID]uint32 // next free slot index per doc
	deleted    map[key]struct{}
	size       int // live (non-deleted) vector count
}

// NewEmbedder constructs an empty ANN index for one embedder's vectors.
func NewEmbedder(dimensions int, metric Metric) *Embedder {
	g := hnsw.NewGraph[key]()
	g.M = defaultM
	g.EfSearch = defaultEfSearch
	g.Ml = defaultMl
	switch metric {
	case Euclidean:
		g.Distance = hnsw.EuclideanDistance
	default:
		g.Distance = hnsw.CosineDistance
	}
	return &Embedder{
		dimensions: dimensions,
		metric:     metric,
		graph:      g,
		slots:      make(map[codec.DocumentID]uint32),
		deleted:    make(map[key]struct{}),
	}
}

// Remove orphans every vector currently indexed for id, so a subsequent
// re-insertion (or document deletion) leaves no stale neighbor behind in
// query results. The node stays physically present in the graph; see the
// Embedder doc comment.
func (e *Embedder) Remove(id codec.DocumentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(id)
}

func (e *Embedder) remove(id codec.DocumentID) {
	next, ok := e.slots[id]
	if !ok {
		return
	}
	for slot := uint32(0); slot < next; slot++ {
		k := packKey(id, slot)
		if _, already := e.deleted[k]; !already {
			e.deleted[k] = struct{}{}
			e.size--
		}
	}
	delete(e.slots, id)
}

// Add replaces id's vectors with vectors, validating every one against
// Embedder's configured dimensionality. Passing zero vectors is equivalent
// to Remove(id).
func (e *Embedder) Add(id codec.DocumentID, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != e.dimensions {
			return fmt.Errorf("vector %d for doc %d: expected %d dimensions, got %d", i, id, e.dimensions, len(v))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(id)
	if len(vectors) == 0 {
		return nil
	}

	for slot, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		if e.metric == Cosine {
			normalize(vec)
		}
		e.graph.Add(hnsw.MakeNode(packKey(id, uint32(slot)), vec))
	}
	e.slots[id] = uint32(len(vectors))
	e.size += len(vectors)
	return nil
}

// Len reports the number of live (non-orphaned) vectors in the index.
func (e *Embedder) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.size
}

// Query returns the k nearest documents to vec, best (smallest distance)
// first, collapsing multiple matching vectors of the same document down to
// its single best distance (spec.md §4.13: "the best per-doc distance
// represents the doc"). filter, if non-nil, restricts results to documents
// present in the bitmap: since coder/hnsw has no native pre-filtered search,
// this widens the internal candidate count geometrically and re-queries
// until k filtered, non-orphaned documents are found or the whole graph has
// been searched — a correctness-first approximation of filtered ANN search,
// the same fallback-scan tradeoff search/executor.go documents for when no
// fstindex dictionary is loaded.
func (e *Embedder) Query(vec []float32, k int, filter *roaring.Bitmap) ([]Result, error) {
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("query vector: expected %d dimensions, got %d", e.dimensions, len(vec))
	}
	if k <= 0 {
		return nil, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(vec))
	copy(q, vec)
	if e.metric == Cosine {
		normalize(q)
	}

	want := k
	internalK := k
	if filter != nil {
		internalK = k * 4
		if internalK < 16 {
			internalK = 16
		}
	}

	var best map[codec.DocumentID]float32
	for {
		if internalK > e.graph.Len() {
			internalK = e.graph.Len()
		}
		nodes := e.graph.Search(q, internalK)
		best = e.bestPerDoc(nodes, q, filter)
		if len(best) >= want || internalK >= e.graph.Len() {
			break
		}
		internalK *= 4
	}

	out := make([]Result, 0, len(best))
	for id, dist := range best {
		out = append(out, Result{DocID: id, Distance: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].DocID < out[j].DocID
	})
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

// bestPerDoc collapses a raw neighbor list down to one (best-distance)
// entry per document, skipping orphaned slots and anything outside filter.
func (e *Embedder) bestPerDoc(nodes []hnsw.Node[key], q []float32, filter *roaring.Bitmap) map[codec.DocumentID]float32 {
	best := make(map[codec.DocumentID]float32, len(nodes))
	for _, n := range nodes {
		if _, gone := e.deleted[n.Key]; gone {
			continue
		}
		id := n.Key.docID()
		if filter != nil && !filter.Contains(id) {
			continue
		}
		d := e.graph.Distance(q, n.Value)
		if cur, ok := best[id]; !ok || d < cur {
			best[id] = d
		}
	}
	return best
}

// normalize scales v to unit length in place, matching the pack's
// normalizeVectorInPlace convention for cosine-metric indexes.
func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// Store holds one Embedder per configured embedder name.
type Store struct {
	mu        sync.RWMutex
	embedders map[string]*Embedder
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{embedders: make(map[string]*Embedder)}
}

// Register creates (or replaces) the named embedder's index. Settings
// changes that alter an embedder's dimensionality call this again, which
// discards whatever was previously indexed under that name.
func (s *Store) Register(name string, dimensions int, metric Metric) *Embedder {
	e := NewEmbedder(dimensions, metric)
	s.mu.Lock()
	s.embedders[name] = e
	s.mu.Unlock()
	return e
}

// Embedder returns the named embedder's index, or false if it isn't
// registered.
func (s *Store) Embedder(name string) (*Embedder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embedders[name]
	return e, ok
}

// RemoveDocument orphans id's vectors from every registered embedder, for
// use when a document is deleted outright.
func (s *Store) RemoveDocument(id codec.DocumentID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.embedders {
		e.Remove(id)
	}
}

// Names returns the registered embedder names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.embedders))
	for name := range s.embedders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
