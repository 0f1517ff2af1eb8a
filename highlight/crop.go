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

package highlight

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/meilisearch/searchcore/tokenizer"
)

// MatchSpec is one query position's literal (already normalized) term, and
// its rank: the term's position within the query, used to score whether a
// run of matches in an attribute's text appears in the same order the
// query asked for them.
type MatchSpec struct {
	Term string
	Rank int
}

// Match bundles the word and phrase match specs resolved from a query
// graph (see search.resolveGraph and its per-node Term/Position fields),
// against which CropAttribute marks token-level matches. Each inner slice
// of Phrases is already in consecutive query order (Term, Term2, ...).
type Match struct {
	Words   []MatchSpec
	Phrases [][]MatchSpec
}

// matchPoint is one matched token: tokenIndex into the tokenized attribute,
// rank copied from the MatchSpec that matched it, and groupID identifying
// which query element (word or phrase) it belongs to — repeats of the same
// query word count once towards a window's unique match total, which is
// why groupID is keyed by query element rather than by occurrence.
type matchPoint struct {
	tokenIndex int
	rank       int
	groupID    int
}

// CropAttribute implements spec.md §4.12's match-interval selection: it
// tokenizes text, locates word/phrase matches (phrases are matched first
// and greedily left to right, so a token already claimed by a phrase is
// never also counted as a standalone word match — the "longest match,
// earliest position" rule), slides a window of at most cropSize tokens to
// find the one maximizing (unique match count, -distance sum, order
// matches), wraps every matched token with tags.PreTag/PostTag, and
// prefixes/suffixes tags.CropMarker wherever the window doesn't reach the
// attribute's boundary.
func CropAttribute(text string, m Match, cropSize int, tags Tags) string {
	toks := tokenizeAll(text)
	if len(toks) == 0 {
		return text
	}

	claimed := make([]bool, len(toks))
	points := matchPhrases(toks, claimed, m.Phrases)
	points = append(points, matchWords(toks, claimed, m.Words, len(m.Phrases))...)
	sort.Slice(points, func(i, j int) bool { return points[i].tokenIndex < points[j].tokenIndex })

	start, end := bestWindow(points, len(toks), cropSize)
	return render(text, toks, points, start, end, tags)
}

func tokenizeAll(text string) []tokenizer.Token {
	it := tokenizer.New(text)
	var out []tokenizer.Token
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, tok)
	}
	return out
}

// matchPhrases greedily matches each phrase spec, left to right, against
// unclaimed tokens, marking every matched token as claimed so a later word
// match never re-claims it.
func matchPhrases(toks []tokenizer.Token, claimed []bool, phrases [][]MatchSpec) []matchPoint {
	var out []matchPoint
	for p, phrase := range phrases {
		if len(phrase) == 0 {
			continue
		}
		i := 0
		for i+len(phrase) <= len(toks) {
			if phraseMatchesAt(toks, claimed, phrase, i) {
				for k, spec := range phrase {
					claimed[i+k] = true
					out = append(out, matchPoint{tokenIndex: i + k, rank: spec.Rank, groupID: p})
				}
				i += len(phrase)
				continue
			}
			i++
		}
	}
	return out
}

func phraseMatchesAt(toks []tokenizer.Token, claimed []bool, phrase []MatchSpec, at int) bool {
	for k, spec := range phrase {
		if claimed[at+k] || toks[at+k].Text != spec.Term {
			return false
		}
	}
	return true
}

// matchWords marks every unclaimed token whose text equals one of words'
// terms. groupIDOffset keeps word group ids distinct from the phrase group
// ids already assigned by matchPhrases.
func matchWords(toks []tokenizer.Token, claimed []bool, words []MatchSpec, groupIDOffset int) []matchPoint {
	var out []matchPoint
	for i, tok := range toks {
		if claimed[i] {
			continue
		}
		for w, spec := range words {
			if tok.Text == spec.Term {
				claimed[i] = true
				out = append(out, matchPoint{tokenIndex: i, rank: spec.Rank, groupID: groupIDOffset + w})
				break
			}
		}
	}
	return out
}

// windowScore is lexicographically compared, greatest wins: more distinct
// query elements matched, then a smaller summed positional gap between
// consecutive matches (capped at 7 per spec.md §4.12), then more
// consecutive match pairs appearing in the same order the query asked for
// them.
type windowScore struct {
	uniqueMatches  int
	negDistanceSum int
	orderMatches   int
}

func (a windowScore) greaterThan(b windowScore) bool {
	if a.uniqueMatches != b.uniqueMatches {
		return a.uniqueMatches > b.uniqueMatches
	}
	if a.negDistanceSum != b.negDistanceSum {
		return a.negDistanceSum > b.negDistanceSum
	}
	return a.orderMatches > b.orderMatches
}

// bestWindow slides a fixed-width window of min(cropSize, len(toks)) tokens
// across the attribute and returns the token range [start, end) with the
// greatest windowScore, earliest start breaking ties. A fixed window width
// is a deliberate simplification of spec.md's "candidate window of ≤
// crop_size tokens": since extra non-matching tokens never change a
// window's score, the widest allowed window can only match a superset of
// what a narrower one would, so there is no need to also try narrower
// windows.
func bestWindow(points []matchPoint, numTokens, cropSize int) (start, end int) {
	width := cropSize
	if width <= 0 || width > numTokens {
		width = numTokens
	}

	var best windowScore
	bestStart := 0
	haveBest := false
	for s := 0; s+width <= numTokens; s++ {
		e := s + width
		sc := scoreWindow(points, s, e)
		if !haveBest || sc.greaterThan(best) {
			best = sc
			bestStart = s
			haveBest = true
		}
	}
	return bestStart, bestStart + width
}

func scoreWindow(points []matchPoint, start, end int) windowScore {
	var sc windowScore
	seen := make(map[int]struct{})
	var prev *matchPoint
	for i := range points {
		p := points[i]
		if p.tokenIndex < start || p.tokenIndex >= end {
			continue
		}
		if _, ok := seen[p.groupID]; !ok {
			seen[p.groupID] = struct{}{}
			sc.uniqueMatches++
		}
		if prev != nil {
			gap := p.tokenIndex - prev.tokenIndex - 1
			if gap > 7 {
				gap = 7
			}
			sc.negDistanceSum -= gap
			if p.rank >= prev.rank {
				sc.orderMatches++
			}
		}
		prev = &points[i]
	}
	return sc
}

// render builds the final string: the window's original text (not the
// normalized token text), each matched token wrapped in tags.PreTag/
// PostTag, with tags.CropMarker prefixed/suffixed wherever the window
// doesn't reach the attribute's boundary.
func render(text string, toks []tokenizer.Token, points []matchPoint, start, end int, tags Tags) string {
	runes := []rune(text)
	matched := make([]bool, len(toks))
	for _, p := range points {
		matched[p.tokenIndex] = true
	}

	startChar := toks[start].CharIndex
	lastTok := toks[end-1]
	endChar := lastTok.CharIndex + utf8.RuneCountInString(lastTok.Text)

	var b strings.Builder
	if start > 0 {
		b.WriteString(tags.CropMarker)
	}
	cursor := startChar
	for i := start; i < end; i++ {
		tok := toks[i]
		if tok.CharIndex > cursor {
			b.WriteString(string(runes[cursor:tok.CharIndex]))
		}
		tokEnd := tok.CharIndex + utf8.RuneCountInString(tok.Text)
		tokText := string(runes[tok.CharIndex:tokEnd])
		if matched[i] {
			b.WriteString(tags.PreTag)
			b.WriteString(tokText)
			b.WriteString(tags.PostTag)
		} else {
			b.WriteString(tokText)
		}
		cursor = tokEnd
	}
	if cursor < endChar {
		b.WriteString(string(runes[cursor:endChar]))
	}
	if end < len(toks) {
		b.WriteString(tags.CropMarker)
	}
	return b.String()
}
