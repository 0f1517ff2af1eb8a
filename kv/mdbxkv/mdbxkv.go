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

// Package mdbxkv implements kv.Env on top of MDBX: a memory-mapped,
// transactional key-value store with single-writer/multi-reader semantics,
// matching the concurrency model in SPEC_FULL.md §8.
package mdbxkv

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/gofrs/flock"

	"github.com/meilisearch/searchcore/kv"
)

// Options configures Open.
type Options struct {
	Path    string
	MapSize uint64 // bytes; see internal/config for human-friendly parsing
	MaxDBs  int
	// ReadOnly opens the environment without acquiring the writer flock,
	// for tooling that only ever issues read transactions.
	ReadOnly bool
}

type env struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
	path string
	lock *flock.Flock
}

// Open creates or opens the MDBX environment at opts.Path, acquiring the
// single-writer process lock (SPEC_FULL.md §3: single-writer, multi-reader)
// unless opts.ReadOnly is set.
func Open(opts Options) (kv.Env, error) {
	var fl *flock.Flock
	if !opts.ReadOnly {
		fl = flock.New(opts.Path + ".lock")
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("mdbxkv: acquire writer lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("mdbxkv: index %q already has a writer", opts.Path)
		}
	}

	e, err := mdbx.NewEnv()
	if err != nil {
		return nil, err
	}
	if err := e.SetOption(mdbx.OptMaxDB, uint64(opts.MaxDBs)); err != nil {
		return nil, err
	}
	if err := e.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1); err != nil {
		return nil, err
	}
	flags := uint(mdbx.NoReadahead)
	if err := e.Open(opts.Path, flags, 0664); err != nil {
		return nil, fmt.Errorf("mdbxkv: open %q: %w", opts.Path, err)
	}

	dbis := make(map[string]mdbx.DBI, len(kv.AllTables))
	err = e.Update(func(txn *mdbx.Txn) error {
		for _, name := range kv.AllTables {
			cfg := kv.Tables[name]
			flags := uint(mdbx.Create)
			if cfg.Flags&kv.DupSort != 0 {
				flags |= mdbx.DupSort
			}
			if cfg.Flags&kv.IntegerKey != 0 {
				flags |= mdbx.IntegerKey
			}
			dbi, err := txn.OpenDBI(name, flags, nil, nil)
			if err != nil {
				return fmt.Errorf("mdbxkv: open table %q: %w", name, err)
			}
			dbis[name] = dbi
		}
		return nil
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	return &env{env: e, dbis: dbis, path: opts.Path, lock: fl}, nil
}

func (e *env) Path() string { return e.path }

func (e *env) Close() error {
	if e.lock != nil {
		_ = e.lock.Unlock()
	}
	e.env.Close()
	return nil
}

func (e *env) BeginRO(ctx context.Context) (kv.RoTx, error) {
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, err
	}
	return &tx{txn: txn, dbis: e.dbis, ctx: ctx}, nil
}

// BeginRW opens the single exclusive write transaction. When MDBX reports
// that the map was resized by another process, it retries up to three
// times with exponential backoff; any other error is returned at once as a
// plain wrapped error (a MAP_FULL is not translated into ResourceExhausted
// here).
func (e *env) BeginRW(ctx context.Context) (kv.RwTx, error) {
	var txn *mdbx.Txn
	op := func() error {
		var err error
		txn, err = e.env.BeginTxn(nil, 0)
		if err != nil && mdbx.IsMapResized(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("mdbxkv: begin write txn: %w", err)
	}
	return &tx{txn: txn, dbis: e.dbis, ctx: ctx, writable: true}, nil
}

type tx struct {
	txn      *mdbx.Txn
	dbis     map[string]mdbx.DBI
	ctx      context.Context
	writable bool
	_        time.Time // reserved for future txn-age metrics
}

func (t *tx) dbi(table string) (mdbx.DBI, error) {
	d, ok := t.dbis[table]
	if !ok {
		return 0, fmt.Errorf("mdbxkv: unknown table %q", table)
	}
	return d, nil
}

func (t *tx) Get(table string, key []byte) ([]byte, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (t *tx) Has(table string, key []byte) (bool, error) {
	v, err := t.Get(table, key)
	return v != nil, err
}

func (t *tx) ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return err
	}
	defer cur.Close()

	var k, v []byte
	if len(fromKey) == 0 {
		k, v, err = cur.Get(nil, nil, mdbx.First)
	} else {
		k, v, err = cur.Get(fromKey, nil, mdbx.SetRange)
	}
	for err == nil {
		cont, ferr := fn(k, v)
		if ferr != nil {
			return ferr
		}
		if !cont {
			return nil
		}
		k, v, err = cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *tx) ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	return t.ForEach(table, prefix, func(k, v []byte) (bool, error) {
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			return false, nil
		}
		return fn(k, v)
	})
}

func (t *tx) Count(table string) (uint64, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return 0, err
	}
	stat, err := t.txn.Stat(dbi)
	if err != nil {
		return 0, err
	}
	return stat.Entries, nil
}

func (t *tx) Put(table string, key, value []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Put(dbi, key, value, 0)
}

func (t *tx) Delete(table string, key []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	err = t.txn.Del(dbi, key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *tx) ClearTable(table string) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Drop(dbi, false)
}

func (t *tx) Commit() error {
	_, err := t.txn.Commit()
	return err
}

func (t *tx) Rollback() {
	t.txn.Abort()
}
