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

package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a filter expression (spec.md §6.3 grammar) into an Expr
// tree. A hand-written recursive-descent parser, one function per grammar
// production, mirrors query/parser.go's approach to the query-text grammar.
func Parse(src string) (Expr, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("filter: unexpected trailing token %q", p.cur.text)
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) isKeyword(kw string) bool {
	return p.cur.kind == tokWord && strings.EqualFold(p.cur.text, kw)
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Expr{first}
	for p.isKeyword("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Or{Children: children}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Expr{first}
	for p.isKeyword("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		child, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Expr, error) {
	if p.cur.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("filter: expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	}

	if p.isKeyword("_geoRadius") {
		return p.parseGeoRadius()
	}
	if p.isKeyword("_geoBoundingBox") {
		return p.parseGeoBoundingBox()
	}

	if p.cur.kind != tokWord {
		return nil, fmt.Errorf("filter: expected a field name, got %q", p.cur.text)
	}
	field := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch {
	case p.isKeyword("IN"):
		return p.parseIn(field, false)
	case p.isKeyword("NOT"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch {
		case p.isKeyword("IN"):
			return p.parseIn(field, true)
		case p.isKeyword("EXISTS"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Exists{Field: field, Negate: true}, nil
		default:
			return nil, fmt.Errorf("filter: expected IN or EXISTS after NOT, got %q", p.cur.text)
		}
	case p.isKeyword("EXISTS"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Exists{Field: field}, nil
	case p.isKeyword("IS"):
		return p.parseIs(field)
	case p.cur.kind == tokEq, p.cur.kind == tokNeq, p.cur.kind == tokGt,
		p.cur.kind == tokGte, p.cur.kind == tokLt, p.cur.kind == tokLte:
		return p.parseScalarCmp(field)
	default:
		return nil, fmt.Errorf("filter: unexpected token %q after field %q", p.cur.text, field)
	}
}

func (p *parser) parseScalarCmp(field string) (Expr, error) {
	var op Op
	switch p.cur.kind {
	case tokEq:
		op = Eq
	case tokNeq:
		op = Neq
	case tokGt:
		op = Gt
	case tokGte:
		op = Gte
	case tokLt:
		op = Lt
	case tokLte:
		op = Lte
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return Cmp{Field: field, Op: op, Value: val}, nil
}

func (p *parser) parseIn(field string, negate bool) (Expr, error) {
	if err := p.advance(); err != nil { // consume IN
		return nil, err
	}
	if p.cur.kind != tokLBracket {
		return nil, fmt.Errorf("filter: expected '[' after IN")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var values []any
	for p.cur.kind != tokRBracket {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRBracket {
		return nil, fmt.Errorf("filter: expected ']' to close IN list")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return In{Field: field, Values: values, Negate: negate}, nil
}

func (p *parser) parseIs(field string) (Expr, error) {
	if err := p.advance(); err != nil { // consume IS
		return nil, err
	}
	negate := false
	if p.isKeyword("NOT") {
		negate = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	switch {
	case p.isKeyword("NULL"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return IsNull{Field: field, Negate: negate}, nil
	case p.isKeyword("EMPTY"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return IsEmpty{Field: field, Negate: negate}, nil
	default:
		return nil, fmt.Errorf("filter: expected NULL or EMPTY after IS, got %q", p.cur.text)
	}
}

func (p *parser) parseValue() (any, error) {
	switch p.cur.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid number %q: %w", p.cur.text, err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return f, nil
	case tokString, tokWord:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("filter: expected a value, got %q", p.cur.text)
	}
}

func (p *parser) parseGeoRadius() (Expr, error) {
	if err := p.advance(); err != nil { // consume _geoRadius
		return nil, err
	}
	nums, err := p.parseParenFloats(3)
	if err != nil {
		return nil, err
	}
	return GeoRadius{Lat: nums[0], Lng: nums[1], RadiusMeters: nums[2]}, nil
}

func (p *parser) parseGeoBoundingBox() (Expr, error) {
	if err := p.advance(); err != nil { // consume _geoBoundingBox
		return nil, err
	}
	if p.cur.kind != tokLParen {
		return nil, fmt.Errorf("filter: expected '(' after _geoBoundingBox")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	corner1, err := p.parseBracketFloats(2)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokComma {
		return nil, fmt.Errorf("filter: expected ',' between _geoBoundingBox corners")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	corner2, err := p.parseBracketFloats(2)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRParen {
		return nil, fmt.Errorf("filter: expected ')' to close _geoBoundingBox")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return GeoBoundingBox{Lat1: corner1[0], Lng1: corner1[1], Lat2: corner2[0], Lng2: corner2[1]}, nil
}

// parseParenFloats parses "(n1, n2, ..., nN)".
func (p *parser) parseParenFloats(n int) ([]float64, error) {
	if p.cur.kind != tokLParen {
		return nil, fmt.Errorf("filter: expected '('")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	out, err := p.parseFloatList(n)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRParen {
		return nil, fmt.Errorf("filter: expected ')'")
	}
	return out, p.advance()
}

// parseBracketFloats parses "[n1, n2, ..., nN]".
func (p *parser) parseBracketFloats(n int) ([]float64, error) {
	if p.cur.kind != tokLBracket {
		return nil, fmt.Errorf("filter: expected '['")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	out, err := p.parseFloatList(n)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRBracket {
		return nil, fmt.Errorf("filter: expected ']'")
	}
	return out, p.advance()
}

func (p *parser) parseFloatList(n int) ([]float64, error) {
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if p.cur.kind != tokComma {
				return nil, fmt.Errorf("filter: expected ','")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("filter: expected a number")
		}
		out = append(out, f)
	}
	return out, nil
}
