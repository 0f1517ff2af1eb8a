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

// Package filter parses the filter expression grammar (spec.md §6.3) into
// an AST and evaluates it into a document-id bitmap against the facet
// level trees and geo index.
package filter

// Op is a scalar comparison operator.
type Op int

const (
	Eq Op = iota
	Neq
	Gt
	Gte
	Lt
	Lte
)

// Expr is one node of a parsed filter expression.
type Expr interface{ isExpr() }

// And is true when every child is true.
type And struct{ Children []Expr }

// Or is true when any child is true.
type Or struct{ Children []Expr }

// Not inverts Child, evaluated as (universe AndNot Child).
type Not struct{ Child Expr }

// Cmp is a scalar field comparison against a literal, which may be a
// string or a float64 (bare numeric literals parse as float64; comparisons
// on a non-numeric field against a numeric literal evaluate to empty,
// per spec.md §6.3).
type Cmp struct {
	Field string
	Op    Op
	Value any
}

// In matches Field against any of Values (a union of per-value matches).
type In struct {
	Field  string
	Values []any
	Negate bool
}

// Exists matches documents where Field is present (any JSON value,
// including null).
type Exists struct {
	Field  string
	Negate bool
}

// IsNull matches documents where Field is JSON null.
type IsNull struct {
	Field  string
	Negate bool
}

// IsEmpty matches documents where Field is an empty string, array or object.
type IsEmpty struct {
	Field  string
	Negate bool
}

// GeoRadius matches documents whose _geo point lies within RadiusMeters of
// (Lat, Lng).
type GeoRadius struct {
	Lat, Lng, RadiusMeters float64
}

// GeoBoundingBox matches documents whose _geo point lies within the box
// spanned by the two opposite corners.
type GeoBoundingBox struct {
	Lat1, Lng1, Lat2, Lng2 float64
}

func (And) isExpr()            {}
func (Or) isExpr()              {}
func (Not) isExpr()              {}
func (Cmp) isExpr()              {}
func (In) isExpr()               {}
func (Exists) isExpr()           {}
func (IsNull) isExpr()           {}
func (IsEmpty) isExpr()          {}
func (GeoRadius) isExpr()        {}
func (GeoBoundingBox) isExpr()   {}
