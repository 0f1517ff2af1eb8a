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

package index

import "sync/atomic"

// DocumentState is one document operation's position in spec.md §4.14's
// linear state machine: Received -> Validated -> Extracted -> Merged ->
// Committed, or Failed from any of those. Transitions never skip a step and
// never go backward; a document observed in Failed stays there for the rest
// of the batch.
type DocumentState int

const (
	Received DocumentState = iota
	Validated
	Extracted
	Merged
	Committed
	Failed
)

func (s DocumentState) String() string {
	switch s {
	case Received:
		return "received"
	case Validated:
		return "validated"
	case Extracted:
		return "extracted"
	case Merged:
		return "merged"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// BatchState is the state of one apply_documents/delete_documents/clear call
// as a whole, per spec.md §4.14.
type BatchState int

const (
	Enqueued BatchState = iota
	Processing
	Succeeded
	BatchFailed
	Canceled
)

func (s BatchState) String() string {
	switch s {
	case Enqueued:
		return "enqueued"
	case Processing:
		return "processing"
	case Succeeded:
		return "succeeded"
	case BatchFailed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// cancelToken is the process-wide "must stop" flag from spec.md §5: a
// single atomic.Bool polled by ApplyDocuments between documents and by the
// extractors between chunks. The merger does not poll it: once extraction
// has finished, Merger.Apply runs to completion. Observing it true aborts
// the in-flight batch with a Canceled error; the write transaction is
// rolled back by the caller, never partially committed.
type cancelToken struct {
	stop atomic.Bool
}

// Stop requests cancellation of whatever batch is currently in flight (or
// the next one applied through an already open Writer, since BeginWrite
// calls Reset), taking effect at the next document or chunk boundary that
// checks it.
func (c *cancelToken) Stop() { c.stop.Store(true) }

// Reset clears the flag, done once per Index at the start of a fresh batch
// so a previous batch's cancellation doesn't immediately abort the next one.
func (c *cancelToken) Reset() { c.stop.Store(false) }

// Stopped reports whether cancellation has been requested.
func (c *cancelToken) Stopped() bool { return c.stop.Load() }
