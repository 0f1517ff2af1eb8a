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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/meilisearch/searchcore/index"
)

func newIngestCmd() *cobra.Command {
	var file string
	var method string
	var primaryKey string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Apply a batch of newline-delimited JSON documents to an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readJSONLines(file)
			if err != nil {
				return err
			}

			applyMethod := index.Replace
			switch strings.ToLower(method) {
			case "", "replace":
				applyMethod = index.Replace
			case "update":
				applyMethod = index.Update
			default:
				return fmt.Errorf("searchcore: unknown --method %q (want replace or update)", method)
			}

			idx, err := openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			w, err := idx.BeginWrite(cmd.Context())
			if err != nil {
				return err
			}
			res, err := w.ApplyDocuments(index.Batch{
				Documents:       docs,
				Method:          applyMethod,
				PrimaryKeyField: primaryKey,
			})
			if err != nil {
				w.Rollback()
				return err
			}
			if err := w.Commit(); err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"indexed", "skipped", "pending_embeddings"})
			t.AppendRow(table.Row{res.Indexed, res.Skipped, len(res.PendingEmbeddings)})
			t.Render()
			for _, pe := range res.PendingEmbeddings {
				fmt.Printf("embedder %q owes a vector for document %d\n", pe.Embedder, pe.InternalID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a newline-delimited JSON file, one document per line")
	cmd.MarkFlagRequired("file")
	cmd.Flags().StringVar(&method, "method", "replace", "how an existing document is combined with the incoming one: replace or update")
	cmd.Flags().StringVar(&primaryKey, "primary-key", "", "primary key field name, only consulted if the index has none set yet")

	return cmd
}

// readJSONLines reads path as newline-delimited JSON, skipping blank lines.
func readJSONLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("searchcore: open %q: %w", path, err)
	}
	defer f.Close()

	var docs [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		docs = append(docs, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("searchcore: read %q: %w", path, err)
	}
	return docs, nil
}
