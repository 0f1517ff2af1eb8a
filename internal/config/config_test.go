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

package config

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLoadFSFillsDefaultsForUnsetFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/searchcore.toml", []byte(`
data_dir = "/var/lib/searchcore"
map_size = "2GB"
`), 0o644))

	cfg, err := LoadFS(fs, "/etc/searchcore.toml")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/searchcore", cfg.DataDir)
	require.Equal(t, 2*datasize.GB, cfg.MapSize)
	require.Equal(t, Default().MaxDBs, cfg.MaxDBs)
}

func TestLoadFSParsesEmbedderCredentials(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg.toml", []byte(`
[embedders.openai]
api_key = "sk-test"
base_url = "https://api.openai.com/v1"
`), 0o644))

	cfg, err := LoadFS(fs, "/cfg.toml")
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.Embedders["openai"].APIKey)
	require.Equal(t, "https://api.openai.com/v1", cfg.Embedders["openai"].BaseURL)
}

func TestLoadFSMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadFS(fs, "/nope.toml")
	require.Error(t, err)
}
