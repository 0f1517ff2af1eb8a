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

package geoindex

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// WriteFile dumps t's Encode() blob to path, for offline inspection with
// OpenMmap without opening the index's full MDBX environment.
func (t *Tree) WriteFile(path string) error {
	return os.WriteFile(path, t.Encode(), 0o644)
}

// Snapshot is a Tree opened read-only against an mmap'd blob file rather
// than bytes read into a Go-managed buffer; the kernel pages the file in on
// demand, which matters once a deployment's geo blob outgrows comfortable
// heap residency. Close unmaps the file and must be called to release it.
type Snapshot struct {
	*Tree
	region mmap.MMap
	file   *os.File
}

// OpenMmap mmaps path (a blob previously written by WriteFile or produced by
// Tree.Encode) read-only and decodes it in place.
func OpenMmap(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoindex: open %q: %w", path, err)
	}
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("geoindex: mmap %q: %w", path, err)
	}
	tree, err := Decode(region)
	if err != nil {
		region.Unmap()
		f.Close()
		return nil, err
	}
	return &Snapshot{Tree: tree, region: region, file: f}, nil
}

// Close unmaps the backing file and closes its descriptor.
func (s *Snapshot) Close() error {
	err := s.region.Unmap()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
