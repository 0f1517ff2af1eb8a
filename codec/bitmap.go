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

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/golang/snappy"
)

// BoundedThreshold is the docid count below which postings are stored as a
// flat little-endian u32 array ("Bounded" encoding) instead of a roaring
// bitmap. Below this size the roaring container header overhead exceeds a
// dense list, mirroring milli's BoRoaringBitmapCodec.
const BoundedThreshold = 32

// boundedMagic prefixes a Bounded-encoded value so the decoder can tell the
// two encodings apart without a length heuristic alone; the roaring
// serialization format never begins with this byte.
const boundedMagic = 0xFE

// snappyMagic prefixes a snappy-compressed roaring run: a hot term's
// posting list (e.g. a common word's WordDocids entry spanning a large
// fraction of the corpus) serializes to a large, highly compressible
// container, and snappy's block format trades ratio for the decode speed
// that a per-query bitmap read needs, the same tradeoff bleve's zap segment
// merge makes for its own postings.
const snappyMagic = 0xFC

// snappyThreshold is the serialized-size floor above which EncodeBitmap
// tries snappy, skipping the attempt (and its allocation) for the common
// small-posting-list case.
const snappyThreshold = 4096

// EncodeBitmap serializes bm using the Bounded encoding when it is small,
// plain roaring container serialization for mid-sized runs, or a
// snappy-compressed roaring container once the uncompressed form crosses
// snappyThreshold and compression actually shrinks it.
func EncodeBitmap(bm *roaring.Bitmap) ([]byte, error) {
	if bm.GetCardinality() < BoundedThreshold {
		return encodeBounded(bm), nil
	}
	buf := make([]byte, 0, bm.GetSerializedSizeInBytes())
	w := &byteSliceWriter{buf: buf}
	if _, err := bm.WriteTo(w); err != nil {
		return nil, err
	}
	raw := w.buf
	if len(raw) < snappyThreshold {
		return raw, nil
	}
	compressed := snappy.Encode(nil, raw)
	if len(compressed)+1 >= len(raw) {
		return raw, nil
	}
	return append([]byte{snappyMagic}, compressed...), nil
}

func encodeBounded(bm *roaring.Bitmap) []byte {
	it := bm.Iterator()
	out := make([]byte, 1, 1+4*int(bm.GetCardinality()))
	out[0] = boundedMagic
	var tmp [4]byte
	for it.HasNext() {
		binary.LittleEndian.PutUint32(tmp[:], it.Next())
		out = append(out, tmp[:]...)
	}
	return out
}

// DecodeBitmap auto-detects the encoding by its leading byte and decodes
// accordingly.
func DecodeBitmap(b []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(b) == 0 {
		return bm, nil
	}
	if b[0] == boundedMagic && (len(b)-1)%4 == 0 {
		for i := 1; i+4 <= len(b); i += 4 {
			bm.Add(binary.LittleEndian.Uint32(b[i : i+4]))
		}
		return bm, nil
	}
	if b[0] == snappyMagic {
		raw, err := snappy.Decode(nil, b[1:])
		if err != nil {
			return nil, err
		}
		if _, err := bm.FromBuffer(raw); err != nil {
			return nil, err
		}
		return bm, nil
	}
	if _, err := bm.FromBuffer(b); err != nil {
		return nil, err
	}
	return bm, nil
}

type byteSliceWriter struct{ buf []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
