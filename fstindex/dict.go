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

// Package fstindex holds the term dictionary the query engine walks for
// prefix and typo-tolerant resolution: an immutable vellum FST over every
// indexed term (spec.md §5's "FSTs are immutable between commits and safely
// shared as byte slices"), plus a bloom filter membership pre-check in front
// of it.
package fstindex

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"
)

// MaxPrefixLength bounds how long a prefix the indexing pipeline
// precomputes a bitmap for in word_prefix_docids/exact_word_prefix_docids;
// longer prefixes are resolved by walking Dict instead.
const MaxPrefixLength = 4

// Builder accumulates terms for one Dict. Terms must be inserted in
// ascending byte order, the same requirement vellum.Builder itself imposes;
// callers collect and sort their terms first, the same discipline
// merge.Merger already applies to its own key ordering before writing.
type Builder struct {
	buf  *bytes.Buffer
	fst  *vellum.Builder
	last string
	n    uint64
}

// NewBuilder returns an empty Builder.
func NewBuilder() (*Builder, error) {
	buf := new(bytes.Buffer)
	fst, err := vellum.New(buf, nil)
	if err != nil {
		return nil, fmt.Errorf("fstindex: new builder: %w", err)
	}
	return &Builder{buf: buf, fst: fst}, nil
}

// Insert adds term to the dictionary being built. Returns an error if term
// does not sort strictly after the previously inserted term.
func (b *Builder) Insert(term string) error {
	if b.n > 0 && term <= b.last {
		return fmt.Errorf("fstindex: terms must be inserted in ascending order: %q did not follow %q", term, b.last)
	}
	if err := b.fst.Insert([]byte(term), b.n); err != nil {
		return fmt.Errorf("fstindex: insert %q: %w", term, err)
	}
	b.last = term
	b.n++
	return nil
}

// Close finalizes the FST and returns its serialized bytes, suitable for
// storing under kv.Main and reloading later with Load.
func (b *Builder) Close() ([]byte, error) {
	if err := b.fst.Close(); err != nil {
		return nil, fmt.Errorf("fstindex: close builder: %w", err)
	}
	return b.buf.Bytes(), nil
}

// Dict is a read-only, immutable term dictionary loaded from bytes a
// Builder produced.
type Dict struct {
	fst *vellum.FST
}

// Load parses data (as produced by Builder.Close) into a queryable Dict.
func Load(data []byte) (*Dict, error) {
	fst, err := vellum.Load(data)
	if err != nil {
		return nil, fmt.Errorf("fstindex: load: %w", err)
	}
	return &Dict{fst: fst}, nil
}

// Contains reports whether term is in the dictionary exactly.
func (d *Dict) Contains(term string) (bool, error) {
	_, found, err := d.fst.Get([]byte(term))
	if err != nil {
		return false, fmt.Errorf("fstindex: get %q: %w", term, err)
	}
	return found, nil
}

// Prefix returns every indexed term sharing prefix, in ascending order.
func (d *Dict) Prefix(prefix string) ([]string, error) {
	it, err := d.fst.Iterator([]byte(prefix), nil)
	return d.drain(it, err, func(term string) bool {
		return strings.HasPrefix(term, prefix)
	})
}

// Fuzzy returns every indexed term within maxEdits Levenshtein edit distance
// of term, by intersecting the FST with a Levenshtein automaton rather than
// testing every indexed term individually (the fallback search/executor.go
// uses when no Dict is available; see DESIGN.md).
func (d *Dict) Fuzzy(term string, maxEdits uint8) ([]string, error) {
	if maxEdits == 0 {
		found, err := d.Contains(term)
		if err != nil || !found {
			return nil, err
		}
		return []string{term}, nil
	}
	lb, err := levenshtein.NewLevenshteinAutomatonBuilder(maxEdits, false)
	if err != nil {
		return nil, fmt.Errorf("fstindex: build levenshtein automaton builder: %w", err)
	}
	dfa, err := lb.BuildDfa(term, maxEdits)
	if err != nil {
		return nil, fmt.Errorf("fstindex: build dfa for %q: %w", term, err)
	}
	it, err := d.fst.Search(dfa, nil, nil)
	return d.drain(it, err, nil)
}

// iterator is the subset of vellum's FSTIterator this package drains.
type iterator interface {
	Current() ([]byte, uint64)
	Next() error
}

// drain walks it from its initial position (already produced by Iterator or
// Search) to exhaustion, collecting every key still satisfying keep (nil
// means "keep everything").
func (d *Dict) drain(it iterator, err error, keep func(string) bool) ([]string, error) {
	if err == vellum.ErrIteratorDone {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fstindex: iterate: %w", err)
	}
	var out []string
	for err == nil {
		k, _ := it.Current()
		term := string(k)
		if keep != nil && !keep(term) {
			break
		}
		out = append(out, term)
		err = it.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return nil, fmt.Errorf("fstindex: iterate: %w", err)
	}
	return out, nil
}
