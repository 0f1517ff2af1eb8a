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

package kv

import "context"

// RoTx is a read-only transaction over a consistent mmap snapshot. Many RoTx
// can be open concurrently with each other and with the single RwTx.
type RoTx interface {
	// Get returns the value for key in table, or nil if absent.
	Get(table string, key []byte) ([]byte, error)
	// Has reports whether key exists in table without copying its value.
	Has(table string, key []byte) (bool, error)
	// ForEach walks table in key order starting at fromKey (nil for the
	// beginning), calling fn(key, value) for every entry until fn returns
	// false or an error.
	ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error
	// ForPrefix walks every key in table with the given prefix.
	ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error
	// Count returns the number of entries in table.
	Count(table string) (uint64, error)
	Rollback()
}

// RwTx is the single exclusive write transaction. Writers call Commit or
// Rollback exactly once.
type RwTx interface {
	RoTx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	// ClearTable drops and recreates table, rather than deleting rows one
	// by one (see Index.Clear and the merger's clear-documents handling).
	ClearTable(table string) error
	Commit() error
}

// Env is the mmap'd environment hosting every named database in AllTables.
// A single Env is shared process-wide; BeginRW is exclusive (only one RwTx
// may be open at a time), BeginRO is cheap and may be called concurrently.
type Env interface {
	BeginRO(ctx context.Context) (RoTx, error)
	BeginRW(ctx context.Context) (RwTx, error)
	Close() error
	// Path returns the directory the environment was opened from.
	Path() string
}
