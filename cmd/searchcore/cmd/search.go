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

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/meilisearch/searchcore/index"
)

func newSearchCmd() *cobra.Command {
	var filter string
	var sort []string
	var limit int
	var offset int
	var page int
	var hitsPerPage int
	var distinct string
	var dot bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a search against an index and print the matching documents",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			r, err := idx.BeginRead(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			req := index.SearchRequest{
				Query:         strings.Join(args, " "),
				Filter:        filter,
				Sort:          sort,
				DistinctField: distinct,
				Explain:       dot,
			}
			if cmd.Flags().Changed("limit") {
				req.Limit = &limit
			}
			if cmd.Flags().Changed("offset") {
				req.Offset = &offset
			}
			if cmd.Flags().Changed("page") {
				req.Page = &page
			}
			if cmd.Flags().Changed("hits-per-page") {
				req.HitsPerPage = &hitsPerPage
			}

			res, err := r.Search(req)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"internal_id", "document"})
			for _, id := range res.Hits {
				doc, ok, err := r.GetDocument(fmt.Sprintf("%d", id), nil)
				if err != nil {
					return err
				}
				body := "<missing>"
				if ok {
					m, err := r.Decode(doc)
					if err != nil {
						return err
					}
					raw, err := json.Marshal(m)
					if err != nil {
						return err
					}
					body = string(raw)
				}
				t.AppendRow(table.Row{id, body})
			}
			t.Render()
			fmt.Printf("%d hits (estimated %d total) in %s\n", len(res.Hits), res.EstimatedTotalHits, res.ProcessingTime)
			if dot {
				fmt.Println(res.ExplainDOT)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "filter expression, e.g. 'price > 10 AND color = \"red\"'")
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "sort clauses, e.g. 'price:asc' (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of hits")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of hits to skip")
	cmd.Flags().IntVar(&page, "page", 0, "1-based page number (mutually exclusive with --offset)")
	cmd.Flags().IntVar(&hitsPerPage, "hits-per-page", 0, "hits per page, used with --page")
	cmd.Flags().StringVar(&distinct, "distinct", "", "distinct attribute, overriding the index's configured default")
	cmd.Flags().BoolVar(&dot, "dot", false, "print the ranking rule chain as a DOT digraph after the results table")

	return cmd
}
