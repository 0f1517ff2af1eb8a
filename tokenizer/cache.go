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

package tokenizer

import (
	"github.com/elastic/go-freelru"
	"github.com/spaolacci/murmur3"
)

// NormalizeCache memoizes normalize() results; batches of documents in the
// same language repeat the same surface forms heavily (brand names, stop
// words), so a small fixed cache pays for itself during extraction.
type NormalizeCache struct {
	lru *freelru.LRU[string, string]
}

func hashString(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}

// NewNormalizeCache creates a cache holding up to capacity entries.
func NewNormalizeCache(capacity uint32) *NormalizeCache {
	lru, _ := freelru.New[string, string](capacity, hashString)
	return &NormalizeCache{lru: lru}
}

// Normalize returns the cached normalization of s, computing and storing it
// on a miss.
func (c *NormalizeCache) Normalize(s string) string {
	if v, ok := c.lru.Get(s); ok {
		return v
	}
	v := normalize(s)
	c.lru.Add(s, v)
	return v
}
