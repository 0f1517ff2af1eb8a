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

package document

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meilisearch/searchcore/codec"
)

// DefaultCacheSize caps the number of decoded records a Cache holds, the
// same role DefaultEmbeddingCacheSize plays for a cached embedder: bound
// memory rather than cache every document an index ever serves.
const DefaultCacheSize = 4096

// Cache memoizes decoded records by internal id across repeated
// GetDocument calls against the same committed snapshot. It holds no
// reference to any kv.RoTx, so it is safe to share across every Reader an
// Index opens; Purge must be called once a Writer commits, since a cached
// record can otherwise outlive the generation it was read from.
type Cache struct {
	inner *lru.Cache[codec.DocumentID, codec.Record]
}

// NewCache builds an empty cache holding up to size records; size <= 0
// falls back to DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[codec.DocumentID, codec.Record](size)
	return &Cache{inner: c}
}

// Get returns the cached record for id, if present.
func (c *Cache) Get(id codec.DocumentID) (codec.Record, bool) {
	if c == nil {
		return nil, false
	}
	return c.inner.Get(id)
}

// Add stores rec under id, evicting the least recently used entry if full.
func (c *Cache) Add(id codec.DocumentID, rec codec.Record) {
	if c == nil {
		return
	}
	c.inner.Add(id, rec)
}

// Purge discards every cached record, called once per committed write so a
// stale snapshot's records can never leak into a later Reader.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.inner.Purge()
}
