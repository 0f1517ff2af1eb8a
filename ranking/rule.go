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

// Package ranking implements the bucket-iterator ranking-rule pipeline:
// Words, Typo, Proximity, Attribute, Exactness, Sort, Geo and Custom rules
// each refine a candidate bitmap into smaller, better-ranked buckets, in
// left-to-right rule order (spec.md §4.9).
package ranking

import "github.com/RoaringBitmap/roaring/v2"

// Rule narrows a candidate bitmap into successively better-ranked buckets.
// Next is called repeatedly; each call returns the next bucket in
// descending order of quality for this rule (best matches first), already
// intersected with the candidates passed to Start. A Rule stops producing
// buckets once every candidate has been placed into some earlier bucket.
type Rule interface {
	// Name identifies the rule for logging/debugging and for the settings
	// surface that reorders/disables rules.
	Name() string
	// Start (re)initializes the rule against a fresh candidate set; called
	// once per query, and again for each parent-rule bucket when this rule
	// sits downstream of another in the pipeline.
	Start(candidates *roaring.Bitmap) error
	// Next returns the next bucket, or ok=false once candidates is
	// exhausted for this Start call.
	Next() (bucket *roaring.Bitmap, ok bool, err error)
}

// Graph composes a left-to-right chain of Rules into buckets, by enumerating
// each rule's buckets and recursing into the next rule for every non-empty
// bucket, down to the last rule (spec.md §4.9's Cartesian
// bucket enumeration in ascending lexicographic order of rule indices).
type Graph struct {
	rules []Rule
}

// NewGraph composes rules into a Graph, applied in the given order.
func NewGraph(rules ...Rule) *Graph {
	return &Graph{rules: rules}
}

// Buckets drains the full ranked sequence of non-empty, pairwise-disjoint
// document-id buckets for candidates, calling emit for each in best-first
// order. emit returns false to stop early (e.g. once enough results have
// been collected for the requested page), letting Buckets short-circuit
// rather than compute rankings no caller will ever read.
func (g *Graph) Buckets(candidates *roaring.Bitmap, emit func(*roaring.Bitmap) bool) error {
	return g.recurse(0, candidates, emit)
}

func (g *Graph) recurse(ruleIdx int, candidates *roaring.Bitmap, emit func(*roaring.Bitmap) bool) error {
	if candidates.IsEmpty() {
		return nil
	}
	if ruleIdx >= len(g.rules) {
		return emitOrStop(candidates, emit)
	}
	rule := g.rules[ruleIdx]
	if err := rule.Start(candidates); err != nil {
		return err
	}
	for {
		bucket, ok, err := rule.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		stop, err := g.recurseEmit(ruleIdx+1, bucket, emit)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (g *Graph) recurseEmit(ruleIdx int, bucket *roaring.Bitmap, emit func(*roaring.Bitmap) bool) (stop bool, err error) {
	stopped := false
	wrapped := func(b *roaring.Bitmap) bool {
		if !emit(b) {
			stopped = true
			return false
		}
		return true
	}
	if err := g.recurse(ruleIdx, bucket, wrapped); err != nil {
		return false, err
	}
	return stopped, nil
}

func emitOrStop(bucket *roaring.Bitmap, emit func(*roaring.Bitmap) bool) error {
	emit(bucket)
	return nil
}
