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

// Package config loads the on-disk engine configuration: where an index's
// environment lives, how large its mmap may grow, and how many extractor
// goroutines a batch may use.
package config

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/pbnjay/memory"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Config is the engine-level configuration, independent of any one index's
// settings (searchable/filterable/etc., which live in index.Settings and are
// persisted inside the index's own environment, not this file).
type Config struct {
	// DataDir is the directory holding one subdirectory per index.
	DataDir string `toml:"data_dir"`
	// MapSize bounds how large an index's mmap'd environment may grow; a
	// human-friendly size like "10GB" (github.com/c2h5oh/datasize parses
	// this into an exact byte count).
	MapSize datasize.ByteSize `toml:"map_size"`
	// MaxDBs is the number of named sub-databases MDBX reserves room for;
	// must be >= len(kv.AllTables).
	MaxDBs int `toml:"max_dbs"`
	// ExtractorWorkers bounds the extractor goroutine pool size; 0 means
	// "use runtime.GOMAXPROCS(0)" (see index.Options.Workers).
	ExtractorWorkers int `toml:"extractor_workers"`
	// Embedders configures the named vector embedders available to every
	// index's settings (credentials only; per-index embedder selection and
	// dimensions/template live in index.Settings.Embedders).
	Embedders map[string]EmbedderCredentials `toml:"embedders"`
}

// EmbedderCredentials holds the connection details for a remote embedding
// API; extract.VectorExtractor stops at rendering the prompt, and an
// embedding client (extract.RestEmbedder, or the caller's own) reads this to
// know where to send that prompt.
type EmbedderCredentials struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// minAutoMapSize and autoMapSizeFraction bound autoMapSize's output: below
// that floor MDBX has too little room to grow into, and above that fraction
// of total RAM the mmap starts competing with the rest of the process for
// physical pages rather than just address space.
const (
	minAutoMapSize      = 1 * datasize.GB
	autoMapSizeFraction = 4
)

// autoMapSize picks a default MapSize from the host's total RAM (a quarter
// of it, floored at minAutoMapSize) when the config file leaves MapSize
// unset, rather than hard-coding one constant across every deployment size.
// memory.TotalMemory returns 0 if it cannot determine the host's RAM (e.g.
// inside some containers), in which case we fall back to the floor.
func autoMapSize() datasize.ByteSize {
	total := datasize.ByteSize(memory.TotalMemory())
	auto := total / autoMapSizeFraction
	if auto < minAutoMapSize {
		return minAutoMapSize
	}
	return auto
}

// Default returns a Config usable for local development: a host-RAM-derived
// map size, room for every current table plus headroom for future ones, and
// one extractor goroutine per CPU.
func Default() Config {
	return Config{
		DataDir:          "./data",
		MapSize:          autoMapSize(),
		MaxDBs:           64,
		ExtractorWorkers: 0,
	}
}

// Load reads and parses the TOML config file at path, filling in Default()
// for any field the file doesn't set.
func Load(path string) (Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS is Load parameterized over the filesystem, so config-loading tests
// can use afero.NewMemMapFs() instead of touching disk.
func LoadFS(fs afero.Fs, path string) (Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}
