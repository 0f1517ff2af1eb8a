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

// Package fields implements the bidirectional, order-preserving mapping
// between human field names and compact field ids, plus the per-field
// searchable/filterable/sortable/locale metadata derived from settings.
package fields

import (
	"fmt"
	"sync"

	async "github.com/anacrolix/sync"

	"github.com/meilisearch/searchcore/codec"
)

// Map is the shared, copy-on-write fields-id map. Extractors take a
// snapshot (via Snapshot) at the start of a batch per SPEC_FULL.md §8
// ("the fields-id map is shared copy-on-write; extractors take a snapshot
// at the start of a batch").
type Map struct {
	mu       async.RWMutex
	nameToID map[string]codec.FieldID
	idToName []string // index i holds the name for FieldID(i)
}

func New() *Map {
	return &Map{nameToID: make(map[string]codec.FieldID)}
}

// Insert returns the existing id for name, or assigns and returns the next
// available id. Fails once every id below codec.FieldIDMax is taken;
// FieldIDMax itself is never assigned.
func (m *Map) Insert(name string) (codec.FieldID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.nameToID[name]; ok {
		return id, nil
	}
	if len(m.idToName) >= int(codec.FieldIDMax) {
		return 0, fmt.Errorf("fields: id space exhausted at %d fields", codec.FieldIDMax)
	}
	id := codec.FieldID(len(m.idToName))
	m.nameToID[name] = id
	m.idToName = append(m.idToName, name)
	return id, nil
}

// ID returns the id assigned to name, if any. Once assigned, a field id is
// never reused for a different name (SPEC_FULL.md invariant 6).
func (m *Map) ID(name string) (codec.FieldID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.nameToID[name]
	return id, ok
}

// Name returns the field name for id, if any.
func (m *Map) Name(id codec.FieldID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.idToName) {
		return "", false
	}
	return m.idToName[id], true
}

// Len returns the number of assigned field ids.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.idToName)
}

// Snapshot returns an immutable copy of the current name<->id assignments,
// safe to hand to a thread pool without further locking.
func (m *Map) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.idToName))
	copy(names, m.idToName)
	ids := make(map[string]codec.FieldID, len(m.nameToID))
	for k, v := range m.nameToID {
		ids[k] = v
	}
	return &Snapshot{names: names, ids: ids}
}

// Snapshot is a read-only, concurrency-safe view of a Map at one instant.
type Snapshot struct {
	names []string
	ids   map[string]codec.FieldID
}

func (s *Snapshot) ID(name string) (codec.FieldID, bool) {
	id, ok := s.ids[name]
	return id, ok
}

func (s *Snapshot) Name(id codec.FieldID) (string, bool) {
	if int(id) >= len(s.names) {
		return "", false
	}
	return s.names[id], true
}

func (s *Snapshot) Len() int { return len(s.names) }

// Names returns the snapshot's id->name table in FieldID order, for a
// caller that needs to persist or replay the whole assignment (index.Open's
// bootstrap, index.Writer.Commit).
func (s *Snapshot) Names() []string { return s.names }

// Metadata describes how one field participates in search.
type Metadata struct {
	Searchable   bool
	Filterable   bool
	Sortable     bool
	LocaleRuleID uint16 // 0 means "no locale rule"; nonzero is 1+index into Locales
}

// Settings is the subset of index settings that MetadataBuilder consumes.
// It mirrors the searchable/filterable/sortable attribute lists and the
// ordered locale rules table from the original settings model
// (original_source/milli/src/fields_ids_map/metadata.rs).
type Settings struct {
	SearchableAttributes []string // "*" means "all fields are searchable"
	FilterableAttributes []string
	SortableAttributes   []string
	Locales              []LocaleRule
}

// LocaleRule associates a field-name pattern with a locale; lookups are by
// index into this ordered table, so rule order is significant (first match
// wins).
type LocaleRule struct {
	AttributePattern string
	Locale           string
}

// MetadataBuilder computes per-field Metadata from a Settings snapshot,
// built once per batch and reused for every field touched by that batch.
type MetadataBuilder struct {
	once            sync.Once
	searchableAll   bool
	searchable      map[string]struct{}
	searchableOrder []string
	filterable      map[string]struct{}
	sortable        map[string]struct{}
	locales         []LocaleRule
}

func NewMetadataBuilder(s Settings) *MetadataBuilder {
	b := &MetadataBuilder{
		searchable:      toSet(s.SearchableAttributes),
		searchableOrder: append([]string(nil), s.SearchableAttributes...),
		filterable:      toSet(s.FilterableAttributes),
		sortable:        toSet(s.SortableAttributes),
		locales:         s.Locales,
	}
	if _, ok := b.searchable["*"]; ok {
		b.searchableAll = true
	}
	return b
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

// Metadata computes the Metadata for a single field name.
func (b *MetadataBuilder) Metadata(name string) Metadata {
	_, filterable := b.filterable[name]
	_, sortable := b.sortable[name]
	searchable := b.searchableAll
	if !searchable {
		_, searchable = b.searchable[name]
	}
	var localeID uint16
	for i, rule := range b.locales {
		if rule.AttributePattern == name || rule.AttributePattern == "*" {
			localeID = uint16(i + 1)
			break
		}
	}
	return Metadata{
		Searchable:   searchable,
		Filterable:   filterable,
		Sortable:     sortable,
		LocaleRuleID: localeID,
	}
}

// Locale resolves a LocaleRuleID back to its locale string, or "" if none.
func (b *MetadataBuilder) Locale(ruleID uint16) string {
	if ruleID == 0 || int(ruleID) > len(b.locales) {
		return ""
	}
	return b.locales[ruleID-1].Locale
}

// SearchableRank returns name's position within the declared
// searchable_attributes order (0 = highest priority), used by the
// Attribute ranking rule to prefer a match in an earlier-declared field.
// Every name ranks 0 when searchable_attributes is "*" (no declared
// order), and an undeclared-but-searchable name ranks after every declared
// one.
func (b *MetadataBuilder) SearchableRank(name string) int {
	if b.searchableAll {
		return 0
	}
	for i, n := range b.searchableOrder {
		if n == name {
			return i
		}
	}
	return len(b.searchableOrder)
}

// FilterableNames returns every attribute name configured as filterable,
// used to build the "did you mean" suggestion when a filter references an
// unfilterable or unknown field.
func (b *MetadataBuilder) FilterableNames() []string {
	names := make([]string, 0, len(b.filterable))
	for name := range b.filterable {
		names = append(names, name)
	}
	return names
}
