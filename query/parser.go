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

import (
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/meilisearch/searchcore/tokenizer"
)

// Resources bundles the lookups the parser needs beyond the raw query text.
type Resources struct {
	// Stopwords are dropped entirely unless they are the query's only word.
	// A mapset.Set rather than a bare map since index.Settings.stopwordSet
	// builds this fresh from a []string on every search and membership
	// testing is all this ever does with it.
	Stopwords mapset.Set[string]
	// Synonyms maps a normalized word to its alternate forms, each expanded
	// as a NodeSynonym alternative at the same graph position.
	Synonyms map[string][]string
}

// span2 is one lexed span already broken into its words, flattened ahead of
// graph construction so the parser can see "is this the query's last word"
// without re-lexing.
type span2 struct {
	quoted bool
	words  []string
}

// Compile builds a Graph from a raw query string. Quoted spans become
// NodePhrase chains (exact adjacency required, no typo tolerance); free
// spans are tokenized and each word becomes a NodeTypoTolerant node, with a
// NodePrefix variant added only for the final word of the entire query (the
// "as-you-type" prefix match), NodeNgram alternatives added for every
// adjacent pair of free words (fused two-word term, one cheaper than
// matching both words separately), and NodeSynonym alternatives added per
// Resources.Synonyms.
func Compile(query string, res Resources) *Graph {
	spans := flattenSpans(query)
	lastWordIndex := -1
	for _, s := range spans {
		lastWordIndex += len(s.words)
	}

	g := NewGraph()
	tail := []int{0}
	position := 0
	var prevFreeWord string
	havePrevFreeWord := false
	globalWordIdx := -1

	for _, s := range spans {
		if s.quoted {
			havePrevFreeWord = false
			if len(s.words) == 0 {
				continue
			}
			n := Node{Kind: NodePhrase, Term: s.words[0], Position: position}
			if len(s.words) > 1 {
				n.Term2 = s.words[1]
			}
			idx := g.AddNode(n, tail...)
			tail = []int{idx}
			position += len(s.words)
			globalWordIdx += len(s.words)
			continue
		}
		for _, w := range s.words {
			globalWordIdx++
			if res.Stopwords != nil && res.Stopwords.Contains(w) && !(lastWordIndex == 0) {
				havePrevFreeWord = false
				continue
			}
			isLast := globalWordIdx == lastWordIndex
			idx := addWordNode(g, w, position, tail, isLast)
			tail = []int{idx}
			for _, alt := range res.Synonyms[w] {
				g.AddNode(Node{Kind: NodeSynonym, Term: alt, Position: position}, idx)
			}
			if havePrevFreeWord {
				g.AddNode(Node{Kind: NodeNgram, Term: prevFreeWord, Term2: w, NgramCost: 1, Position: position - 1}, tail...)
			}
			prevFreeWord = w
			havePrevFreeWord = true
			position++
		}
	}

	g.AddNode(Node{Kind: NodeEnd}, tail...)
	return g
}

func flattenSpans(query string) []span2 {
	var out []span2
	for _, s := range All(NewLexer(query)) {
		out = append(out, span2{quoted: s.Kind == Quoted, words: collectWords(s.Text)})
	}
	return out
}

func addWordNode(g *Graph, w string, position int, from []int, isPrefixCandidate bool) int {
	maxTypos := MaxTyposForLength(utf8.RuneCountInString(w))
	n := Node{Kind: NodeTypoTolerant, Term: w, MaxTypos: maxTypos, Position: position}
	idx := g.AddNode(n, from...)
	if isPrefixCandidate {
		g.AddNode(Node{Kind: NodePrefix, Term: w, Position: position}, from...)
	}
	return idx
}

// collectWords tokenizes text with the tokenizer package and returns the
// normalized word strings.
func collectWords(text string) []string {
	it := tokenizer.New(text)
	var out []string
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, tok.Text)
	}
	return out
}
