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

// Package highlight selects and marks up the best-scoring match window
// within an attribute's value, per spec.md §4.12.
package highlight

// Tags configures how a cropped, highlighted attribute value is rendered.
type Tags struct {
	PreTag     string
	PostTag    string
	CropMarker string
}

// DefaultTags mirrors the default highlightPreTag/highlightPostTag/
// cropMarker values from spec.md §6.4.
func DefaultTags() Tags {
	return Tags{PreTag: "<em>", PostTag: "</em>", CropMarker: "…"}
}
