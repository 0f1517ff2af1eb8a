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

// Package mathutil holds small overflow-checked integer helpers shared by
// request-parsing code that turns caller-supplied ints (pagination, facet
// group sizes) into arithmetic without risking a silent wraparound.
package mathutil

import "math/bits"

// SafeMul returns x*y and reports whether the multiplication overflowed a
// uint64, for callers combining two independently caller-supplied values
// (e.g. a page number and a page size) before using the result as an offset.
func SafeMul(x, y uint64) (product uint64, overflow bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// SafeAdd returns x+y and reports whether the addition overflowed a uint64.
func SafeAdd(x, y uint64) (sum uint64, overflow bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv returns ceil(x/y), or 0 if y is 0, for turning a document count and
// a page size into a page count.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}
