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

// Package cmd implements the searchcore CLI's subcommands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meilisearch/searchcore/index"
	"github.com/meilisearch/searchcore/internal/config"
)

var (
	configPath string
	indexUID   string
)

// NewRootCmd assembles the searchcore CLI: one index-shaped verb per
// spec.md §6.1 operation group, sharing a --config/--index flag pair the
// way erigon's own subcommands share --datadir.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "searchcore",
		Short: "Inspect and drive a searchcore index from the command line",
		Long: `searchcore is a thin operational front end over the index package:
open or create an index's on-disk environment, ingest a batch of JSON
documents, run a search, and report index statistics.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults built in if omitted)")
	root.PersistentFlags().StringVar(&indexUID, "index", "", "index name (a subdirectory of the configured data dir)")
	root.MarkPersistentFlagRequired("index")

	root.AddCommand(newOpenCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newGeoCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads --config, falling back to config.Default() when the flag
// is empty so a first-time user doesn't need a config file at all.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// openIndex resolves the configured data directory and opens (creating if
// necessary) the named index's MDBX environment.
func openIndex() (*index.Index, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("searchcore: load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("searchcore: create data dir %q: %w", cfg.DataDir, err)
	}
	path := filepath.Join(cfg.DataDir, indexUID)
	idx, err := index.Open(path, uint64(cfg.MapSize), cfg.MaxDBs, cfg.ExtractorWorkers)
	if err != nil {
		return nil, fmt.Errorf("searchcore: open index %q: %w", indexUID, err)
	}
	return idx, nil
}
