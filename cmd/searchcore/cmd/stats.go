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
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report document count, on-disk size, and field distribution for an index",
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

			stats, err := r.Stats()
			if err != nil {
				return err
			}

			summary := table.NewWriter()
			summary.SetOutputMirror(os.Stdout)
			summary.AppendHeader(table.Row{"uid", "documents", "on_disk_bytes", "created_at", "updated_at"})
			summary.AppendRow(table.Row{idx.UID(), stats.Documents, stats.OnDiskSize, stats.CreatedAt, stats.UpdatedAt})
			summary.Render()

			names := maps.Keys(stats.FieldDistribution)
			slices.Sort(names)

			dist := table.NewWriter()
			dist.SetOutputMirror(os.Stdout)
			dist.AppendHeader(table.Row{"field", "documents"})
			for _, name := range names {
				dist.AppendRow(table.Row{name, stats.FieldDistribution[name]})
			}
			dist.Render()
			return nil
		},
	}
}
