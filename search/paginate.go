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

package search

import (
	"fmt"

	"github.com/meilisearch/searchcore/internal/mathutil"
)

// DefaultHitsPerPage is used when a request gives neither limit/offset nor
// page/hitsPerPage.
const DefaultHitsPerPage = 20

// maxInt bounds a uint64 skip value before it is narrowed back to an int.
const maxInt = int(^uint(0) >> 1)

// Pagination resolves to a zero-based [skip, skip+take) window over the
// best-first hit stream. Exactly one of the two addressing schemes
// (offset/limit or page/hitsPerPage) may be set; spec.md §6.4 lists both as
// recognized request options but a request uses one or the other.
type Pagination struct {
	Offset      *int
	Limit       *int
	Page        *int
	HitsPerPage *int
}

// Window resolves p into a concrete (skip, take) pair.
func (p Pagination) Window() (skip, take int, err error) {
	usesOffset := p.Offset != nil || p.Limit != nil
	usesPage := p.Page != nil || p.HitsPerPage != nil
	if usesOffset && usesPage {
		return 0, 0, fmt.Errorf("search: cannot combine offset/limit with page/hitsPerPage")
	}
	if usesPage {
		hitsPerPage := DefaultHitsPerPage
		if p.HitsPerPage != nil {
			hitsPerPage = *p.HitsPerPage
		}
		page := 1
		if p.Page != nil {
			page = *p.Page
		}
		if page < 1 {
			page = 1
		}
		if hitsPerPage < 0 {
			return 0, 0, fmt.Errorf("search: hitsPerPage must be non-negative, got %d", hitsPerPage)
		}
		skip64, overflow := mathutil.SafeMul(uint64(page-1), uint64(hitsPerPage))
		if overflow || skip64 > uint64(maxInt) {
			return 0, 0, fmt.Errorf("search: page %d * hitsPerPage %d overflows", page, hitsPerPage)
		}
		return int(skip64), hitsPerPage, nil
	}
	offset := 0
	if p.Offset != nil {
		offset = *p.Offset
	}
	limit := DefaultHitsPerPage
	if p.Limit != nil {
		limit = *p.Limit
	}
	return offset, limit, nil
}
