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

package query

// NodeKind distinguishes the term-node variants a query graph can contain.
// A node is never a Go pointer-heavy tree: Graph stores nodes in a flat
// slice and edges as index pairs, so the whole graph is one contiguous
// allocation per query (spec.md §9, "no heap pointers" for hot-path query
// state).
type NodeKind int

const (
	NodeWord NodeKind = iota
	NodeTypoTolerant
	NodePrefix
	NodeNgram
	NodePhrase
	NodeSplitWord
	NodeSynonym
	NodeStart
	NodeEnd
)

// Node is one term position in the query graph.
type Node struct {
	Kind NodeKind
	// Term is the literal text for Word/TypoTolerant/Prefix/Synonym nodes,
	// or the first word of an Ngram/SplitWord pair.
	Term string
	// Term2 is the second word of an Ngram/SplitWord pair; empty otherwise.
	Term2 string
	// MaxTypos bounds edit distance for NodeTypoTolerant (0, 1 or 2,
	// computed from term length by MaxTyposForLength).
	MaxTypos int
	// NgramCost is subtracted from the rule's score for a NodeNgram match,
	// reflecting that fusing two query words into one n-gram term costs one
	// fewer "typo budget" than matching them as separate words would.
	NgramCost int
	// Position is this node's word_index within the query, used to compute
	// proximity against the document's word_pair_proximity_docids.
	Position int
}

// edge is a directed index pair; OutEdges[i] lists every index j such that
// an edge i->j exists.
type Graph struct {
	Nodes    []Node
	OutEdges [][]int
}

// NewGraph returns an empty graph seeded with a Start node at index 0.
func NewGraph() *Graph {
	g := &Graph{}
	g.addNode(Node{Kind: NodeStart})
	return g
}

func (g *Graph) addNode(n Node) int {
	g.Nodes = append(g.Nodes, n)
	g.OutEdges = append(g.OutEdges, nil)
	return len(g.Nodes) - 1
}

// AddNode appends n and links it from every index in from.
func (g *Graph) AddNode(n Node, from ...int) int {
	idx := g.addNode(n)
	for _, f := range from {
		g.OutEdges[f] = append(g.OutEdges[f], idx)
	}
	return idx
}

// Link adds an edge from -> to without creating a new node (used to connect
// alternate paths, e.g. a split-word pair back into the main chain).
func (g *Graph) Link(from, to int) {
	g.OutEdges[from] = append(g.OutEdges[from], to)
}

// MaxTyposForLength implements the length-bucketed typo tolerance from
// spec.md §9: words of 4 characters or fewer are never typo-tolerant, words
// of 5 to 8 characters tolerate one edit, longer words tolerate two.
func MaxTyposForLength(n int) int {
	switch {
	case n <= 4:
		return 0
	case n <= 8:
		return 1
	default:
		return 2
	}
}
