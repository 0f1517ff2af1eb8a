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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexerFreeSpans(t *testing.T) {
	spans := All(NewLexer("the quick fox"))
	require.Len(t, spans, 1)
	require.Equal(t, Free, spans[0].Kind)
	require.Equal(t, "the quick fox", spans[0].Text)
}

func TestLexerQuotedSpan(t *testing.T) {
	spans := All(NewLexer(`a "quick brown" fox`))
	require.Len(t, spans, 3)
	require.Equal(t, Free, spans[0].Kind)
	require.Equal(t, Quoted, spans[1].Kind)
	require.Equal(t, "quick brown", spans[1].Text)
	require.Equal(t, Free, spans[2].Kind)
}

func TestLexerUnterminatedQuoteRecovers(t *testing.T) {
	spans := All(NewLexer(`a "dangling phrase`))
	require.Len(t, spans, 2)
	require.Equal(t, Quoted, spans[1].Kind)
	require.Equal(t, "dangling phrase", spans[1].Text)
}

func TestLexerCJKOnePerSpan(t *testing.T) {
	spans := All(NewLexer("東京都"))
	require.Len(t, spans, 3)
	for _, s := range spans {
		require.Equal(t, Free, s.Kind)
	}
}
