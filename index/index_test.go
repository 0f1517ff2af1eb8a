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

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	ierrors "github.com/meilisearch/searchcore/internal/errors"
)

func applySettings(t *testing.T, idx *Index, searchable, filterable []string) {
	t.Helper()
	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	err = w.ApplySettings(SettingsPatch{
		SearchableAttributes: &searchable,
		FilterableAttributes: &filterable,
	})
	require.NoError(t, err)
	require.NoError(t, w.Commit())
}

func TestApplyDocumentsAndSearchRoundTrip(t *testing.T) {
	idx := openTestIndex("t1")
	defer idx.Close()

	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	res, err := w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"the quick brown fox"}`),
		[]byte(`{"id":"2","title":"lazy dog sleeps"}`),
	}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Indexed)
	require.Equal(t, 0, res.Skipped)
	require.NoError(t, w.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()

	sr, err := r.Search(SearchRequest{Query: "brown"})
	require.NoError(t, err)
	require.Len(t, sr.Hits, 1)

	doc, ok, err := r.GetDocument("1", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sr.Hits[0], doc.InternalID)
}

func TestApplyDocumentsSkipsMissingPrimaryKey(t *testing.T) {
	idx := openTestIndex("t2")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	res, err := w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"has a key"}`),
		[]byte(`{"title":"no key here"}`),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Indexed)
	require.Equal(t, 1, res.Skipped)
	require.NoError(t, w.Commit())
}

func TestApplyDocumentsUpdateMergesFields(t *testing.T) {
	idx := openTestIndex("t3")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, []string{"color"})

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"red car","color":"red"}`),
	}})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w2, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w2.ApplyDocuments(Batch{Method: Update, Documents: [][]byte{
		[]byte(`{"id":"1","title":"blue car"}`),
	}})
	require.NoError(t, err)
	require.NoError(t, w2.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()
	doc, ok, err := r.GetDocument("1", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, doc.Record, 2) // title replaced, color survives the merge
}

func TestDeleteByIDsRemovesDocument(t *testing.T) {
	idx := openTestIndex("t4")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"alpha"}`),
		[]byte(`{"id":"2","title":"beta"}`),
	}})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w2, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	n, err := w2.DeleteByIDs([]string{"1", "missing"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, w2.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()
	_, ok, err := r.GetDocument("1", nil)
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := r.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Documents)
}

func TestClearWipesDocumentsAndSettings(t *testing.T) {
	idx := openTestIndex("t5")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"alpha"}`),
	}})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w2, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, w2.Clear())
	require.NoError(t, w2.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()
	stats, err := r.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.Documents)

	// the primary key was reset along with everything else: a fresh batch
	// re-infers it rather than reusing whatever Clear wiped away.
	w3, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	res, err := w3.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"2","title":"beta"}`),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Indexed)
	require.NoError(t, w3.Commit())
}

func TestCancelAbortsInFlightBatch(t *testing.T) {
	idx := openTestIndex("t6")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	idx.Cancel()

	_, err = w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"alpha"}`),
	}})
	require.Error(t, err)
	require.Equal(t, ierrors.Canceled, ierrors.KindOf(err))
	require.NoError(t, w.Rollback())
}

func TestApplySettingsPartialPatchLeavesOtherFieldsUntouched(t *testing.T) {
	idx := openTestIndex("t7")
	defer idx.Close()

	searchable := []string{"title"}
	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.ApplySettings(SettingsPatch{SearchableAttributes: &searchable}))
	require.NoError(t, w.Commit())

	distinct := "color"
	w2, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, w2.ApplySettings(SettingsPatch{DistinctAttribute: &distinct}))
	require.NoError(t, w2.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, []string{"title"}, r.settings.SearchableAttributes)
	require.Equal(t, "color", r.settings.DistinctAttribute)
}

func TestListDocumentsOrdersByInternalID(t *testing.T) {
	idx := openTestIndex("t8")
	defer idx.Close()
	applySettings(t, idx, []string{"title"}, nil)

	w, err := idx.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.ApplyDocuments(Batch{Documents: [][]byte{
		[]byte(`{"id":"1","title":"a"}`),
		[]byte(`{"id":"2","title":"b"}`),
		[]byte(`{"id":"3","title":"c"}`),
	}})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r, err := idx.BeginRead(context.Background())
	require.NoError(t, err)
	defer r.Close()

	views, err := r.ListDocuments(0, 2, nil)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Less(t, views[0].InternalID, views[1].InternalID)
}
