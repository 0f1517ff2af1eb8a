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

package extract

import (
	"github.com/valyala/fastjson"

	"github.com/meilisearch/searchcore/tokenizer"
)

// Arena bundles the scratch state one extractor goroutine reuses across an
// entire chunk of documents: a fastjson parser (which retains its internal
// arena across Parse calls) and a tokenizer normalize cache. None of this is
// safe for concurrent use, but it never needs to be: an Arena is owned by
// exactly one goroutine at a time and is handed off, never shared, between
// chunks. This is the same "mostly-send" shape the original's per-thread
// indexer state has, minus the borrow checker: Go's race detector is the
// backstop if that single-owner discipline is ever violated.
type Arena struct {
	JSON     fastjson.Parser
	Normalize *tokenizer.NormalizeCache
	Deladd    *Deladd
}

// NewArena returns a fresh Arena with its own normalize cache.
func NewArena() *Arena {
	return &Arena{
		Normalize: tokenizer.NewNormalizeCache(4096),
		Deladd:    NewDeladd(),
	}
}

// Pool hands out Arenas to a fixed number of worker goroutines and takes
// them back, guaranteeing single-owner access without a mutex: an Arena
// taken from the channel is exclusively owned until it is returned.
type Pool struct {
	arenas chan *Arena
}

// NewPool creates a Pool of n Arenas.
func NewPool(n int) *Pool {
	p := &Pool{arenas: make(chan *Arena, n)}
	for i := 0; i < n; i++ {
		p.arenas <- NewArena()
	}
	return p
}

// Take blocks until an Arena is available.
func (p *Pool) Take() *Arena { return <-p.arenas }

// Put returns an Arena to the pool, resetting its per-chunk Deladd.
func (p *Pool) Put(a *Arena) {
	a.Deladd = NewDeladd()
	p.arenas <- a
}
