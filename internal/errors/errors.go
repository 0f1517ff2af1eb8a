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

// Package errors implements the error taxonomy from spec.md §7: a small,
// closed set of Kinds a caller can switch on, each carrying a human-readable
// message and, for Internal errors, a stack trace captured at the point of
// failure (the one place a caller actually wants one — user errors are
// returned straight back across the API boundary, never logged with a
// trace).
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind names one bucket of spec.md §7's taxonomy. Kind is a closed set:
// callers switch on it rather than doing string matching on Error().
type Kind int

const (
	// Internal marks a consistency violation (a bug): always fatal to the
	// current operation, never to the process, and always logged with a
	// stack trace by the caller that finally handles it.
	Internal Kind = iota
	InvalidRequest
	MissingPrimaryKey
	DuplicateDocumentID
	InvalidDocumentID
	IndexNotFound
	IndexAlreadyExists
	FeatureNotEnabled
	ResourceExhausted
	Canceled
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case MissingPrimaryKey:
		return "missing_primary_key"
	case DuplicateDocumentID:
		return "duplicate_document_id"
	case InvalidDocumentID:
		return "invalid_document_id"
	case IndexNotFound:
		return "index_not_found"
	case IndexAlreadyExists:
		return "index_already_exists"
	case FeatureNotEnabled:
		return "feature_not_enabled"
	case ResourceExhausted:
		return "resource_exhausted"
	case Canceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Error is the concrete error value every package-boundary function in this
// repo returns for a user-visible or taxonomy-relevant failure. DocumentID,
// when set, is the offending document in a batch failure (spec.md §7,
// "Batch-level failures surface the first error and the offending document
// id when available").
type Error struct {
	Kind       Kind
	Message    string
	DocumentID string // external id, "" when not document-scoped
	cause      error
}

func (e *Error) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("%s: %s (document %q)", e.Kind, e.Message, e.DocumentID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a plain Error of the given kind with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around cause. For kind == Internal
// this attaches a stack trace (via pkg/errors) captured at the call site,
// so a later log of this error includes where the inconsistency was first
// observed; every other kind is a user error and carries no trace, since it
// is returned to the caller rather than logged.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if kind == Internal {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// WithDocument annotates err with the offending document's external id.
func (e *Error) WithDocument(externalID string) *Error {
	cp := *e
	cp.DocumentID = externalID
	return &cp
}

// KindOf extracts the Kind of err, defaulting to Internal for any error that
// did not originate from this package (an un-annotated error reaching an API
// boundary is itself a bug worth surfacing as Internal rather than silently
// swallowed).
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or anything it wraps) carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
