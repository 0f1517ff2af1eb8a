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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meilisearch/searchcore/geoindex"
)

// newGeoCmd groups geo R-tree snapshot tooling: export reads the tree from
// the opened index, inspect reads a snapshot blob without opening the
// index's MDBX environment.
func newGeoCmd() *cobra.Command {
	geo := &cobra.Command{
		Use:   "geo",
		Short: "Export an index's geo R-tree to a blob file, or inspect such a blob",
	}
	geo.AddCommand(newGeoExportCmd())
	geo.AddCommand(newGeoInspectCmd())
	return geo
}

func newGeoExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the index's current geo R-tree to a flat blob file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			if err := idx.ExportGeoSnapshot(args[0]); err != nil {
				return err
			}
			fmt.Printf("wrote geo snapshot to %s\n", args[0])
			return nil
		},
	}
}

func newGeoInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>",
		Short: "mmap a geo snapshot blob and report how many points it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := geoindex.OpenMmap(args[0])
			if err != nil {
				return err
			}
			defer snap.Close()

			bm, err := snap.BoundingBox(90, 180, -90, -180)
			if err != nil {
				return err
			}
			fmt.Printf("%d points\n", bm.GetCardinality())
			return nil
		},
	}
}
