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

// Package document implements the document store (internal id -> sparse
// record) and the external<->internal id mapping.
package document

import (
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// compressThreshold is the encoded record size above which we zstd-compress
// the value before storing it; small documents aren't worth the codec
// overhead.
const compressThreshold = 2048

const compressedMagic = 0xFD

var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}}
	decoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

// Store maps internal document ids to sparse records.
type Store struct{}

// Put writes record under internalID, transparently compressing large
// encoded records.
func (Store) Put(tx kv.RwTx, internalID codec.DocumentID, record codec.Record) error {
	raw := codec.EncodeRecord(record)
	val := raw
	if len(raw) >= compressThreshold {
		enc := encoderPool.Get().(*zstd.Encoder)
		compressed := enc.EncodeAll(raw, []byte{compressedMagic})
		encoderPool.Put(enc)
		if len(compressed) < len(raw) {
			val = compressed
		}
	}
	return tx.Put(kv.Documents, codec.DocumentsKey(internalID), val)
}

// Get returns the record stored for internalID, or nil if absent.
func (Store) Get(tx kv.RoTx, internalID codec.DocumentID) (codec.Record, error) {
	v, err := tx.Get(kv.Documents, codec.DocumentsKey(internalID))
	if err != nil || v == nil {
		return nil, err
	}
	raw, err := maybeDecompress(v)
	if err != nil {
		return nil, err
	}
	return codec.DecodeRecord(raw)
}

func maybeDecompress(v []byte) ([]byte, error) {
	if len(v) == 0 || v[0] != compressedMagic {
		return v, nil
	}
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	return dec.DecodeAll(v[1:], nil)
}

// Delete removes internalID's record. Deleting an absent internal id is a
// no-op, matching kv.RwTx.Delete's own "absent key" contract.
func (Store) Delete(tx kv.RwTx, internalID codec.DocumentID) error {
	return tx.Delete(kv.Documents, codec.DocumentsKey(internalID))
}

// Iter walks every document in internal-id order starting at fromID,
// calling fn until it returns false or an error.
func (s Store) Iter(tx kv.RoTx, fromID codec.DocumentID, fn func(codec.DocumentID, codec.Record) (bool, error)) error {
	return tx.ForEach(kv.Documents, codec.DocumentsKey(fromID), func(k, v []byte) (bool, error) {
		raw, err := maybeDecompress(v)
		if err != nil {
			return false, err
		}
		rec, err := codec.DecodeRecord(raw)
		if err != nil {
			return false, err
		}
		return fn(codec.DecodeBEUint32(k), rec)
	})
}

// DecodeJSONField unmarshals one raw JSON field value from a record into v.
func DecodeJSONField(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// EncodeJSONField marshals v into the raw JSON bytes stored in a Record.
func EncodeJSONField(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Clear drops and recreates every database that a document touches,
// matching the original's clear_documents.rs approach of dropping whole
// tables rather than iterating and deleting rows (SPEC_FULL.md §6).
func Clear(tx kv.RwTx) error {
	for _, table := range kv.AllTables {
		if err := tx.ClearTable(table); err != nil {
			return err
		}
	}
	return nil
}
