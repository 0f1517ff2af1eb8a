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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCropSingleWordMatch(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	m := Match{Words: []MatchSpec{{Term: "fox", Rank: 0}}}
	got := CropAttribute(text, m, 3, DefaultTags())
	require.Equal(t, "…quick brown <em>fox</em>…", got)
}

func TestCropPhraseMatch(t *testing.T) {
	text := "a quick brown fox jumps high"
	m := Match{Phrases: [][]MatchSpec{{{Term: "brown", Rank: 1}, {Term: "fox", Rank: 2}}}}
	got := CropAttribute(text, m, 4, DefaultTags())
	require.Equal(t, "a quick <em>brown</em> <em>fox</em>…", got)
}

func TestCropNoMatchFallsBackToLeadingWindow(t *testing.T) {
	text := "no matches here at all today"
	got := CropAttribute(text, Match{}, 3, DefaultTags())
	require.Equal(t, "no matches here…", got)
}

func TestCropWindowNeverExceedsTokenCount(t *testing.T) {
	text := "hi there"
	m := Match{Words: []MatchSpec{{Term: "hi", Rank: 0}}}
	got := CropAttribute(text, m, 100, DefaultTags())
	require.Equal(t, "<em>hi</em> there", got)
}

func TestCropPrefersMoreUniqueMatches(t *testing.T) {
	// "fox" and "dog" are both query words, four tokens apart; only the
	// window spanning both scores two unique matches, so it must win over
	// same-width windows that only reach one of them.
	text := "the quick fox and the lazy dog ran"
	m := Match{Words: []MatchSpec{{Term: "fox", Rank: 0}, {Term: "dog", Rank: 1}}}
	got := CropAttribute(text, m, 5, DefaultTags())
	require.Equal(t, "…<em>fox</em> and the lazy <em>dog</em>…", got)
}

func TestCustomTags(t *testing.T) {
	text := "hello world"
	m := Match{Words: []MatchSpec{{Term: "world", Rank: 0}}}
	got := CropAttribute(text, m, 2, Tags{PreTag: "[", PostTag: "]", CropMarker: "..."})
	require.Equal(t, "hello [world]", got)
}
