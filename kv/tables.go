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

// Package kv describes the transactional, typed key-value databases hosted
// inside one mmap'd environment, and the table-name constants shared by the
// indexing pipeline and the query engine. Table layouts are documented
// beside each constant; see the codec package for the concrete bytes.
package kv

// DBSchemaVersion tracks the on-disk table layout. Bump the minor version
// for additive changes, the major version when an existing table's key or
// value layout changes incompatibly.
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

const (
	// Main - singleton metadata: primary key name, field distribution,
	// settings digest, created/updated timestamps, serialized FST blobs
	// ("words", "word-prefixes"), serialized geo R-tree blob.
	Main = "Main"

	// ExternalDocumentsIds - external id (UTF-8, no NUL) -> internal id (u32 LE).
	ExternalDocumentsIds = "ExternalDocumentsIds"

	// Documents - internal id (u32 BE) -> sparse record, see codec.Record.
	Documents = "Documents"

	// WordDocids - term (UTF-8) -> bitmap of docids containing that term in
	// any searchable field.
	WordDocids = "WordDocids"
	// ExactWordDocids - same as WordDocids, restricted to exact (non-typo,
	// non-stemmed) matches; consulted by the Exactness ranking rule.
	ExactWordDocids = "ExactWordDocids"

	// WordPrefixDocids - prefix term -> bitmap; populated only for prefixes
	// short enough to be worth precomputing (see fstindex.MaxPrefixLength).
	WordPrefixDocids = "WordPrefixDocids"
	// ExactWordPrefixDocids - exact-match restricted counterpart.
	ExactWordPrefixDocids = "ExactWordPrefixDocids"

	// WordPairProximityDocids - key: proximity(u8) | w1 | 0x00 | w2 -> bitmap.
	WordPairProximityDocids = "WordPairProximityDocids"

	// WordPositionDocids - key: term | position(u32 BE) -> bitmap.
	WordPositionDocids = "WordPositionDocids"
	// WordFidDocids - key: term | field_id as u32 BE -> bitmap. Used by the
	// Attribute/Position ranking rule to find the earliest matching field.
	WordFidDocids = "WordFidDocids"

	// FieldIdWordCountDocids - key: field_id(u16 BE) | count(u8) -> bitmap.
	FieldIdWordCountDocids = "FieldIdWordCountDocids"

	// FacetIdF64Docids - hierarchical numeric facet levels, see codec.FacetF64Key.
	// Value: group_size(u8) | bitmap.
	FacetIdF64Docids = "FacetIdF64Docids"
	// FacetIdStringDocids - hierarchical string facet levels, see codec.FacetStringKey.
	FacetIdStringDocids = "FacetIdStringDocids"

	// FacetIdExistsDocids - field_id -> bitmap of docs where the field exists.
	FacetIdExistsDocids = "FacetIdExistsDocids"
	// FacetIdIsNullDocids - field_id -> bitmap of docs where the field is JSON null.
	FacetIdIsNullDocids = "FacetIdIsNullDocids"
	// FacetIdIsEmptyDocids - field_id -> bitmap of docs where the field is an
	// empty string, array or object.
	FacetIdIsEmptyDocids = "FacetIdIsEmptyDocids"

	// FieldIdDocidFacetF64s - key: field_id | docid(u32 BE) | value(f64 BE) -> marker.
	// Reverse lookup: "what is doc D's facet value for field F".
	FieldIdDocidFacetF64s = "FieldIdDocidFacetF64s"
	// FieldIdDocidFacetStrings - string counterpart of FieldIdDocidFacetF64s.
	FieldIdDocidFacetStrings = "FieldIdDocidFacetStrings"
	// FacetIdNormalizedStringStrings - field_id | normalized value -> internal
	// id (u32 BE) of the first document seen with that value (merge.KeepFirst).
	// The original, case-preserving string is not stored here.
	FacetIdNormalizedStringStrings = "FacetIdNormalizedStringStrings"

	// VectorStore - key: embedder_id(u16 BE) | internal_id(u32 BE) -> vector(s).
	VectorStore = "VectorStore"
)

// AllTables lists every database name in deterministic creation order; the
// KV backend opens exactly this set of named sub-databases.
var AllTables = []string{
	Main,
	ExternalDocumentsIds,
	Documents,
	WordDocids,
	ExactWordDocids,
	WordPrefixDocids,
	ExactWordPrefixDocids,
	WordPairProximityDocids,
	WordPositionDocids,
	WordFidDocids,
	FieldIdWordCountDocids,
	FacetIdF64Docids,
	FacetIdStringDocids,
	FacetIdExistsDocids,
	FacetIdIsNullDocids,
	FacetIdIsEmptyDocids,
	FieldIdDocidFacetF64s,
	FieldIdDocidFacetStrings,
	FacetIdNormalizedStringStrings,
	VectorStore,
}

// TableFlags mirrors the MDBX database flags relevant to our layouts.
type TableFlags uint

const (
	Default    TableFlags = 0x00
	DupSort    TableFlags = 0x04
	IntegerKey TableFlags = 0x08
)

// TableCfgItem configures one database's MDBX open flags.
type TableCfgItem struct {
	Flags TableFlags
}

// TableCfg is the full per-database configuration, indexed by table name.
type TableCfg map[string]TableCfgItem

// Tables is the canonical configuration for every database in AllTables.
// Documents is IntegerKey (docid is a fixed-width integer); the two
// field_id_docid_facet_* reverse-lookup tables use DupSort, and every
// posting database uses the default flags.
var Tables = TableCfg{
	Main:                     {Flags: Default},
	ExternalDocumentsIds:     {Flags: Default},
	Documents:                {Flags: IntegerKey},
	WordDocids:               {Flags: Default},
	ExactWordDocids:          {Flags: Default},
	WordPrefixDocids:         {Flags: Default},
	ExactWordPrefixDocids:    {Flags: Default},
	WordPairProximityDocids:  {Flags: Default},
	WordPositionDocids:       {Flags: Default},
	WordFidDocids:            {Flags: Default},
	FieldIdWordCountDocids:   {Flags: Default},
	FacetIdF64Docids:         {Flags: Default},
	FacetIdStringDocids:      {Flags: Default},
	FacetIdExistsDocids:      {Flags: Default},
	FacetIdIsNullDocids:      {Flags: Default},
	FacetIdIsEmptyDocids:     {Flags: Default},
	FieldIdDocidFacetF64s:    {Flags: DupSort},
	FieldIdDocidFacetStrings: {Flags: DupSort},
	FacetIdNormalizedStringStrings: {Flags: Default},
	VectorStore:              {Flags: Default},
}
