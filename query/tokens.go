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

// Package query compiles a raw search string into a query graph: resolving
// quoting, synonyms, typos, n-grams and split-words before ranking.
package query

import "unicode"

// SpanKind distinguishes a quoted phrase span from a free span of words.
type SpanKind int

const (
	Free SpanKind = iota
	Quoted
)

// Span is one top-level lexical unit of a raw query string, before word
// splitting: either a run of unquoted text or the contents of one quoted
// phrase.
type Span struct {
	Kind SpanKind
	Text string
}

type lexState int

const (
	stateFree lexState = iota
	stateQuoted
	stateFused
)

// Lexer splits a raw query string into Free/Quoted spans. It mirrors the
// original query_tokens.rs state machine exactly, including its recovery
// behavior for an unterminated trailing quote (treated as an implicit
// close rather than an error).
type Lexer struct {
	state lexState
	spanStart int
	runes     []rune
	pos       int
}

// NewLexer returns a Lexer over query.
func NewLexer(query string) *Lexer {
	return &Lexer{runes: []rune(query)}
}

// Next returns the next Span, or false once exhausted.
func (l *Lexer) Next() (Span, bool) {
	for {
		if l.pos >= len(l.runes) {
			return l.finish()
		}
		r := l.runes[l.pos]
		i := l.pos

		if r == '"' {
			switch l.state {
			case stateQuoted:
				text := string(l.runes[l.spanStart:i])
				l.pos++
				l.state = stateFree
				l.spanStart = l.pos
				return Span{Kind: Quoted, Text: text}, true
			case stateFree:
				var span Span
				ok := false
				if i > l.spanStart {
					span = Span{Kind: Free, Text: string(l.runes[l.spanStart:i])}
					ok = true
				}
				l.pos++
				l.state = stateQuoted
				l.spanStart = l.pos
				if ok {
					return span, true
				}
			case stateFused:
				return Span{}, false
			}
			continue
		}

		if isIdeographic(r) {
			afterI := i + 1
			switch l.state {
			case stateQuoted:
				text := string(l.runes[l.spanStart:afterI])
				l.pos = afterI
				l.spanStart = afterI
				return Span{Kind: Quoted, Text: text}, true
			case stateFree:
				text := string(l.runes[l.spanStart:afterI])
				l.pos = afterI
				l.spanStart = afterI
				return Span{Kind: Free, Text: text}, true
			default:
				l.pos = afterI
				l.state = stateFree
				l.spanStart = afterI
			}
			continue
		}

		if l.state != stateQuoted && !isWordRune(r) {
			l.pos++
			if i > l.spanStart {
				text := string(l.runes[l.spanStart:i])
				l.state = stateFree
				l.spanStart = l.pos
				return Span{Kind: Free, Text: text}, true
			}
			l.state = stateFree
			l.spanStart = l.pos
			continue
		}

		l.pos++
	}
}

func (l *Lexer) finish() (Span, bool) {
	switch l.state {
	case stateFree:
		l.state = stateFused
		if l.spanStart < len(l.runes) {
			return Span{Kind: Free, Text: string(l.runes[l.spanStart:])}, true
		}
		return Span{}, false
	case stateQuoted:
		l.state = stateFused
		return Span{Kind: Quoted, Text: string(l.runes[l.spanStart:])}, true
	default:
		return Span{}, false
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdeographic(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

// All drains l into a slice, for callers that don't need streaming.
func All(l *Lexer) []Span {
	var out []Span
	for {
		s, ok := l.Next()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}
