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

package codec

import (
	"encoding/binary"
	"fmt"
)

// Record is a sparse, field-id-ordered document: field_id -> raw JSON bytes.
// The on-disk layout is [field_id u16 BE][len varint][raw bytes]*, entries
// sorted ascending by field_id so EncodeRecord output is deterministic and
// lookups by field id can binary-search the decoded entry slice.
type Record map[FieldID][]byte

// EncodeRecord serializes r in ascending field-id order.
func EncodeRecord(r Record) []byte {
	ids := make([]int, 0, len(r))
	for id := range r {
		ids = append(ids, int(id))
	}
	sortInts(ids)

	buf := make([]byte, 0, len(r)*8)
	var hdr [2]byte
	var varintBuf [binary.MaxVarintLen64]byte
	for _, idInt := range ids {
		id := FieldID(idInt)
		v := r[id]
		binary.BigEndian.PutUint16(hdr[:], id)
		buf = append(buf, hdr[:]...)
		n := binary.PutUvarint(varintBuf[:], uint64(len(v)))
		buf = append(buf, varintBuf[:n]...)
		buf = append(buf, v...)
	}
	return buf
}

// DecodeRecord parses the on-disk layout back into a Record.
func DecodeRecord(b []byte) (Record, error) {
	r := make(Record)
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, fmt.Errorf("codec: truncated record header")
		}
		id := binary.BigEndian.Uint16(b[0:2])
		b = b[2:]
		length, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, fmt.Errorf("codec: invalid record length varint")
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return nil, fmt.Errorf("codec: truncated record value")
		}
		r[id] = b[:length]
		b = b[length:]
	}
	return r, nil
}

// sortInts is a tiny insertion sort: Record entries are typically a handful
// of fields, so avoiding a sort.Slice closure allocation is worth it here.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
