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

package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(text string) []Token {
	it := New(text)
	var out []Token
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, tok)
	}
	return out
}

func TestTokensBasic(t *testing.T) {
	toks := collect("the quick brown fox")
	words := make([]string, len(toks))
	for i, tok := range toks {
		words[i] = tok.Text
	}
	require.Equal(t, []string{"the", "quick", "brown", "fox"}, words)
	require.Equal(t, 0, toks[0].WordIndex)
	require.Equal(t, 3, toks[3].WordIndex)
}

func TestTokensDiacriticFold(t *testing.T) {
	toks := collect("Gläss")
	require.Len(t, toks, 1)
	require.Equal(t, "glass", toks[0].Text)
}

func TestTokensCJKOneCharacterPerToken(t *testing.T) {
	toks := collect("汽车男生")
	require.Len(t, toks, 4)
	require.Equal(t, "汽", toks[0].Text)
	require.Equal(t, "车", toks[1].Text)
}

func TestTokensWordIndexSaturates(t *testing.T) {
	it := New("")
	it.wordIndex = MaxWordIndex
	it.text = "one two"
	tok, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, MaxWordIndex, tok.WordIndex)
	tok2, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, MaxWordIndex, tok2.WordIndex)
}

func TestNormalizeCache(t *testing.T) {
	c := NewNormalizeCache(16)
	require.Equal(t, "glass", c.Normalize("GläSS"))
	require.Equal(t, "glass", c.Normalize("GläSS")) // cached path
}
