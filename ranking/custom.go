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

package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dop251/goja"
)

// CustomScorer evaluates a user-supplied JavaScript expression once per
// candidate document, handed that document's stored record (already decoded
// to a plain map) as the bound variable `doc`. The expression must evaluate
// to a number; documents are then bucketed by that number, ascending or
// descending per the rule's configured direction.
//
// A fresh goja.Runtime is used per document rather than one Runtime reused
// across calls, since goja.Runtime is not safe for concurrent use and the
// search executor may evaluate several candidates from different goroutines
// of a worker pool.
type CustomScorer struct {
	program *goja.Program
}

// NewCustomScorer compiles expr once; compile errors surface immediately
// rather than on the first document, since a bad custom ranking rule should
// fail index settings validation, not a live search.
func NewCustomScorer(expr string) (*CustomScorer, error) {
	prog, err := goja.Compile("custom-ranking-rule", expr, false)
	if err != nil {
		return nil, fmt.Errorf("compiling custom ranking expression: %w", err)
	}
	return &CustomScorer{program: prog}, nil
}

// Score runs the compiled expression against doc and returns the resulting
// number. Non-numeric results are rejected rather than coerced, since a
// custom rule silently ranking by NaN would be worse than failing loudly.
func (c *CustomScorer) Score(doc map[string]any) (float64, error) {
	vm := goja.New()
	if err := vm.Set("doc", doc); err != nil {
		return 0, err
	}
	v, err := vm.RunProgram(c.program)
	if err != nil {
		return 0, fmt.Errorf("evaluating custom ranking expression: %w", err)
	}
	f := v.ToFloat()
	if math.IsNaN(f) {
		return 0, fmt.Errorf("custom ranking expression did not evaluate to a number")
	}
	return f, nil
}

// CustomScore is one document's already-evaluated CustomScorer result,
// resolved by the search executor before ranking begins (scoring every
// candidate up front lets the rule bucket without re-invoking goja per
// Next() call).
type CustomScore struct {
	Docid uint32
	Value float64
}

// NewCustomRule builds the custom ranking rule: candidates are grouped into
// buckets of equal score, ordered per dir.
func NewCustomRule(scores []CustomScore, dir Direction) *OrderedBitmapRule {
	sorted := make([]CustomScore, len(scores))
	copy(sorted, scores)
	if dir == Ascending {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	}

	buckets := make([]WeightedBitmap, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Value == sorted[i].Value {
			j++
		}
		bm := roaring.New()
		for _, s := range sorted[i:j] {
			bm.Add(s.Docid)
		}
		buckets = append(buckets, WeightedBitmap{Label: "custom", Bitmap: bm})
		i = j
	}
	return NewOrderedBitmapRule("custom", buckets)
}
