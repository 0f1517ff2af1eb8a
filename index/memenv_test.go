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

package index

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/meilisearch/searchcore/kv"
)

// memEnv is a minimal in-process kv.Env, playing the same role for
// index.go's tests that search/executor_test.go's and filter/filter_test.go's
// memTx fakes play one layer down: real key-sorted iteration (unlike those
// two, whose ForEach is a no-op they never needed), a single exclusive
// writer enforced with a mutex, and no persistence across process restarts.
type memEnv struct {
	path string

	mu     sync.Mutex // guards tables and enforces BeginRW exclusivity
	tables map[string]map[string][]byte
}

func newMemEnv(path string) *memEnv {
	e := &memEnv{path: path, tables: make(map[string]map[string][]byte)}
	for _, name := range kv.AllTables {
		e.tables[name] = make(map[string][]byte)
	}
	return e
}

func (e *memEnv) Path() string { return e.path }
func (e *memEnv) Close() error { return nil }

func (e *memEnv) BeginRO(ctx context.Context) (kv.RoTx, error) {
	return &memTx{env: e}, nil
}

func (e *memEnv) BeginRW(ctx context.Context) (kv.RwTx, error) {
	e.mu.Lock()
	return &memTx{env: e, writable: true}, nil
}

// memTx is a snapshot-free view directly over its memEnv's tables: fine for
// tests, since nothing here exercises true MVCC isolation between a Reader
// and a concurrent Writer.
type memTx struct {
	env      *memEnv
	writable bool
	done     bool
}

func (t *memTx) table(name string) map[string][]byte {
	m, ok := t.env.tables[name]
	if !ok {
		m = make(map[string][]byte)
		t.env.tables[name] = m
	}
	return m
}

func (t *memTx) Get(table string, key []byte) ([]byte, error) {
	v, ok := t.table(table)[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *memTx) Has(table string, key []byte) (bool, error) {
	_, ok := t.table(table)[string(key)]
	return ok, nil
}

func (t *memTx) sortedKeys(table string, filter func(string) bool) []string {
	m := t.table(table)
	keys := make([]string, 0, len(m))
	for k := range m {
		if filter == nil || filter(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (t *memTx) ForEach(table string, fromKey []byte, fn func(k, v []byte) (bool, error)) error {
	from := string(fromKey)
	keys := t.sortedKeys(table, func(k string) bool { return fromKey == nil || k >= from })
	m := t.table(table)
	for _, k := range keys {
		cont, err := fn([]byte(k), m[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (t *memTx) ForPrefix(table string, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	p := string(prefix)
	keys := t.sortedKeys(table, func(k string) bool { return strings.HasPrefix(k, p) })
	m := t.table(table)
	for _, k := range keys {
		cont, err := fn([]byte(k), m[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (t *memTx) Count(table string) (uint64, error) { return uint64(len(t.table(table))), nil }

func (t *memTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	if t.writable {
		t.env.mu.Unlock()
	}
}

func (t *memTx) Put(table string, key, value []byte) error {
	t.table(table)[string(key)] = append([]byte(nil), value...)
	return nil
}

func (t *memTx) Delete(table string, key []byte) error {
	delete(t.table(table), string(key))
	return nil
}

func (t *memTx) ClearTable(table string) error {
	t.env.tables[table] = make(map[string][]byte)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		t.env.mu.Unlock()
	}
	return nil
}

var (
	_ kv.Env = (*memEnv)(nil)
	_ kv.RwTx = (*memTx)(nil)
)

func openTestIndex(uid string) *Index {
	idx, err := openEnv(newMemEnv("/test/"+uid), uid, 2)
	if err != nil {
		panic(err)
	}
	return idx
}
