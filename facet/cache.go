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

package facet

import (
	arclru "github.com/hashicorp/golang-lru/arc/v2"

	"github.com/RoaringBitmap/roaring/v2"
)

// DefaultBitmapCacheSize caps the number of decoded facet-level bitmaps a
// BitmapCache holds.
const DefaultBitmapCacheSize = 2048

// BitmapCache memoizes a decoded posting bitmap by its raw (table, key)
// encoding, shared by every filter evaluation against one Index: an
// equality filter on a common facet value (e.g. "color = red") decodes the
// same bytes on every search until the next write invalidates it. ARC
// (Adaptive Replacement Cache) tracks both recency and frequency, so a
// handful of hot facet values stay resident even as many one-off values
// cycle through, unlike a plain LRU.
type BitmapCache struct {
	inner *arclru.ARCCache[string, *roaring.Bitmap]
}

// NewBitmapCache builds an empty cache holding up to size entries; size <=
// 0 falls back to DefaultBitmapCacheSize.
func NewBitmapCache(size int) *BitmapCache {
	if size <= 0 {
		size = DefaultBitmapCacheSize
	}
	c, _ := arclru.NewARC[string, *roaring.Bitmap](size)
	return &BitmapCache{inner: c}
}

// Get returns the cached bitmap for key, if present.
func (c *BitmapCache) Get(key string) (*roaring.Bitmap, bool) {
	if c == nil {
		return nil, false
	}
	return c.inner.Get(key)
}

// Add stores bm under key.
func (c *BitmapCache) Add(key string, bm *roaring.Bitmap) {
	if c == nil {
		return
	}
	c.inner.Add(key, bm)
}

// Purge discards every cached bitmap, called once per committed write.
func (c *BitmapCache) Purge() {
	if c == nil {
		return
	}
	c.inner.Purge()
}
