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

import "encoding/binary"

// FacetF64Key is the key layout for facet_id_f64_docids:
// field_id(u16 BE) | level(u8) | left(f64 BE) | right(f64 BE).
type FacetF64Key struct {
	FieldID FieldID
	Level   uint8
	Left    float64
	Right   float64
}

func (k FacetF64Key) Encode() []byte {
	b := make([]byte, 2+1+8+8)
	binary.BigEndian.PutUint16(b[0:2], k.FieldID)
	b[2] = k.Level
	copy(b[3:11], BEFloat64(k.Left))
	copy(b[11:19], BEFloat64(k.Right))
	return b
}

func DecodeFacetF64Key(b []byte) FacetF64Key {
	return FacetF64Key{
		FieldID: binary.BigEndian.Uint16(b[0:2]),
		Level:   b[2],
		Left:    DecodeBEFloat64(b[3:11]),
		Right:   DecodeBEFloat64(b[11:19]),
	}
}

// FacetStringKey is the key layout for facet_id_string_docids:
// field_id(u16 BE) | level(u8) | left_len(u16 BE) | left | right_len(u16 BE) | right.
type FacetStringKey struct {
	FieldID FieldID
	Level   uint8
	Left    string
	Right   string
}

func (k FacetStringKey) Encode() []byte {
	b := make([]byte, 0, 2+1+2+len(k.Left)+2+len(k.Right))
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], k.FieldID)
	b = append(b, hdr[:]...)
	b = append(b, k.Level)
	binary.BigEndian.PutUint16(hdr[:], uint16(len(k.Left)))
	b = append(b, hdr[:]...)
	b = append(b, k.Left...)
	binary.BigEndian.PutUint16(hdr[:], uint16(len(k.Right)))
	b = append(b, hdr[:]...)
	b = append(b, k.Right...)
	return b
}

func DecodeFacetStringKey(b []byte) FacetStringKey {
	fieldID := binary.BigEndian.Uint16(b[0:2])
	level := b[2]
	off := 3
	leftLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	left := string(b[off : off+leftLen])
	off += leftLen
	rightLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	right := string(b[off : off+rightLen])
	return FacetStringKey{FieldID: fieldID, Level: level, Left: left, Right: right}
}

// WordPairProximityKey is the key layout for word_pair_proximity_docids:
// prox(u8) | w1 | 0x00 | w2.
func WordPairProximityKey(proximity uint8, w1, w2 string) []byte {
	b := make([]byte, 0, 1+len(w1)+1+len(w2))
	b = append(b, proximity)
	b = append(b, w1...)
	b = append(b, 0x00)
	b = append(b, w2...)
	return b
}

// FieldWordCountKey is the key for field_id_word_count_docids:
// field_id(u16 BE) | count(u8).
func FieldWordCountKey(fieldID FieldID, count uint8) []byte {
	b := make([]byte, 3)
	binary.BigEndian.PutUint16(b[0:2], fieldID)
	b[2] = count
	return b
}

// WordPositionKey is the key for word_position_docids / word_fid_docids:
// term | positionOrFid(u32 BE).
func WordPositionKey(term string, positionOrFid uint32) []byte {
	b := make([]byte, 0, len(term)+4)
	b = append(b, term...)
	var suf [4]byte
	binary.BigEndian.PutUint32(suf[:], positionOrFid)
	return append(b, suf[:]...)
}

// DocumentsKey is the key for the documents table: docid(u32 BE).
func DocumentsKey(docID DocumentID) []byte { return BEUint32(docID) }
