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

import "github.com/emicklei/dot"

// DOT renders the rule chain as a left-to-right DOT digraph, one node per
// Rule in pipeline order, for dumping alongside a slow query's explain
// output (spec.md doesn't require this at query time; it's a debugging aid
// for understanding which rule narrowed a result set before reaching for a
// debugger).
func (g *Graph) DOT() string {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")

	var prev dot.Node
	for i, rule := range g.rules {
		n := graph.Node(rule.Name()).Attr("shape", "box")
		if i > 0 {
			graph.Edge(prev, n)
		}
		prev = n
	}
	return graph.String()
}
