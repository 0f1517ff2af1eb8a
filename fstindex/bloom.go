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

package fstindex

import (
	"fmt"

	"github.com/holiman/bloomfilter/v2"
	"github.com/spaolacci/murmur3"
)

// falsePositiveRate bounds how often TermBloom wrongly claims a term might
// be indexed.
const falsePositiveRate = 0.01

// TermBloom is a cheap membership pre-check in front of an exact Dict
// lookup (and the word_docids probe behind it): most rejected typo
// candidates and split-word attempts never actually appear in the corpus, so
// a bloom negative lets the caller skip the FST walk entirely. Grounded on
// github.com/holiman/bloomfilter/v2, an indirect teacher dependency
// (transitively pulled in by erigon-lib) wired in directly here rather than
// left dangling unused.
type TermBloom struct {
	filter *bloomfilter.Filter
}

// NewTermBloom sizes a filter for expectedTerms entries.
func NewTermBloom(expectedTerms uint64) (*TermBloom, error) {
	if expectedTerms == 0 {
		expectedTerms = 1
	}
	f, err := bloomfilter.NewOptimal(expectedTerms, falsePositiveRate)
	if err != nil {
		return nil, fmt.Errorf("fstindex: new term bloom: %w", err)
	}
	return &TermBloom{filter: f}, nil
}

// Add records term as present.
func (b *TermBloom) Add(term string) {
	b.filter.Add(termHash(term))
}

// MaybeContains reports whether term might be indexed. false is a firm
// negative; true only means "worth checking Dict/word_docids".
func (b *TermBloom) MaybeContains(term string) bool {
	return b.filter.Contains(termHash(term))
}

func termHash(term string) uint64 {
	return uint64(murmur3.Sum32([]byte(term)))
}

// MarshalBinary serializes the filter for storage under kv.Main.
func (b *TermBloom) MarshalBinary() ([]byte, error) {
	return b.filter.MarshalBinary()
}

// LoadTermBloom parses data (as produced by MarshalBinary) back into a
// TermBloom.
func LoadTermBloom(data []byte) (*TermBloom, error) {
	f := new(bloomfilter.Filter)
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("fstindex: load term bloom: %w", err)
	}
	return &TermBloom{filter: f}, nil
}
