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

package document

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/kv"
)

// OperationKind distinguishes the two external<->internal id mapping
// mutations applied transactionally during a batch.
type OperationKind int

const (
	Create OperationKind = iota
	Delete
)

// Operation is one external-id mapping mutation; see ExternalIDs.Apply.
type Operation struct {
	ExternalID string
	InternalID codec.DocumentID
	Kind       OperationKind
}

// ExternalIDs maps external (user-facing, UTF-8) document ids to internal
// (dense u32) ids, 1:1, stored in kv.ExternalDocumentsIds.
type ExternalIDs struct{}

// Get looks up the internal id for an external id.
func (ExternalIDs) Get(tx kv.RoTx, externalID string) (codec.DocumentID, bool, error) {
	v, err := tx.Get(kv.ExternalDocumentsIds, []byte(externalID))
	if err != nil || v == nil {
		return 0, false, err
	}
	return codec.DecodeLEUint32(v), true, nil
}

// Apply applies a batch of Create/Delete operations inside one write
// transaction. Creating a pre-existing external id is undefined behavior
// (the last write in the batch wins, per SPEC_FULL.md §5's "last operation
// on a given external id wins"); deleting an absent external id is a hard
// error, matching milli's external_documents_ids.rs panic-on-missing-delete.
func (ExternalIDs) Apply(tx kv.RwTx, ops []Operation) error {
	for _, op := range ops {
		key := []byte(op.ExternalID)
		switch op.Kind {
		case Create:
			if err := tx.Put(kv.ExternalDocumentsIds, key, codec.LEUint32(op.InternalID)); err != nil {
				return err
			}
		case Delete:
			ok, err := tx.Has(kv.ExternalDocumentsIds, key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("document: delete of non-existing external id %q", op.ExternalID)
			}
			if err := tx.Delete(kv.ExternalDocumentsIds, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolvedPair is one (external, internal) mapping found while resolving a
// bitmap of internal ids.
type ResolvedPair struct {
	External string
	Internal codec.DocumentID
}

// ResolveInternal walks the external-id table looking for the external id
// of every internal id in want, removing each match from a copy of want
// (want itself is left unchanged). It
// mirrors milli's ExternalToInternalOwnedIterator: if the table is
// exhausted before want empties, the residual bitmap (ids whose external
// form was not found) is returned alongside the pairs found so far, rather
// than silently dropping them.
func (ExternalIDs) ResolveInternal(tx kv.RoTx, want *roaring.Bitmap) ([]ResolvedPair, *roaring.Bitmap, error) {
	remaining := want.Clone()
	var pairs []ResolvedPair
	err := tx.ForEach(kv.ExternalDocumentsIds, nil, func(k, v []byte) (bool, error) {
		if remaining.IsEmpty() {
			return false, nil
		}
		internal := codec.DecodeLEUint32(v)
		if remaining.Contains(internal) {
			remaining.Remove(internal)
			pairs = append(pairs, ResolvedPair{External: string(k), Internal: internal})
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return pairs, remaining, nil
}
