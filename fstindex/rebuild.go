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

package fstindex

import (
	"fmt"

	"github.com/meilisearch/searchcore/kv"
)

// Main table keys the built dictionary/bloom blobs are stored under,
// matching the names kv.Main's own doc comment already reserves for them
// ("serialized FST blobs (words, word-prefixes)").
const (
	MainKeyWords       = "words"
	MainKeyWordsBloom  = "words-bloom"
	MainKeyPrefixes    = "word-prefixes"
	MainKeyPrefixBloom = "word-prefixes-bloom"
)

// Rebuild walks kv.WordDocids and kv.WordPrefixDocids in their natural
// (already-sorted) key order and rewrites the term dictionary and bloom
// filter blobs under kv.Main. It is the merge stage's job to call this once
// per committed batch (spec.md §5: "FSTs are immutable between commits"),
// after every posting-list write for the batch has landed, so the rebuilt
// dictionary reflects exactly what the batch just committed.
func Rebuild(tx kv.RwTx) error {
	if err := rebuildOne(tx, kv.WordDocids, MainKeyWords, MainKeyWordsBloom); err != nil {
		return err
	}
	return rebuildOne(tx, kv.WordPrefixDocids, MainKeyPrefixes, MainKeyPrefixBloom)
}

func rebuildOne(tx kv.RwTx, sourceTable, dictKey, bloomKey string) error {
	count, err := tx.Count(sourceTable)
	if err != nil {
		return fmt.Errorf("fstindex: count %q: %w", sourceTable, err)
	}

	builder, err := NewBuilder()
	if err != nil {
		return err
	}
	bloom, err := NewTermBloom(count)
	if err != nil {
		return err
	}

	err = tx.ForEach(sourceTable, nil, func(k, _ []byte) (bool, error) {
		term := string(k)
		if err := builder.Insert(term); err != nil {
			return false, err
		}
		bloom.Add(term)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("fstindex: scan %q: %w", sourceTable, err)
	}

	dictBytes, err := builder.Close()
	if err != nil {
		return err
	}
	if err := tx.Put(kv.Main, []byte(dictKey), dictBytes); err != nil {
		return fmt.Errorf("fstindex: write %q: %w", dictKey, err)
	}

	bloomBytes, err := bloom.MarshalBinary()
	if err != nil {
		return fmt.Errorf("fstindex: marshal bloom for %q: %w", bloomKey, err)
	}
	if err := tx.Put(kv.Main, []byte(bloomKey), bloomBytes); err != nil {
		return fmt.Errorf("fstindex: write %q: %w", bloomKey, err)
	}
	return nil
}

// LoadWords loads the word dictionary and bloom filter from tx's Main
// table, or returns (nil, nil, nil) if Rebuild has never run against this
// environment (e.g. an empty, freshly opened index).
func LoadWords(tx kv.RoTx) (*Dict, *TermBloom, error) {
	return load(tx, MainKeyWords, MainKeyWordsBloom)
}

// LoadPrefixes is LoadWords' counterpart for word_prefix_docids.
func LoadPrefixes(tx kv.RoTx) (*Dict, *TermBloom, error) {
	return load(tx, MainKeyPrefixes, MainKeyPrefixBloom)
}

func load(tx kv.RoTx, dictKey, bloomKey string) (*Dict, *TermBloom, error) {
	dictBytes, err := tx.Get(kv.Main, []byte(dictKey))
	if err != nil {
		return nil, nil, fmt.Errorf("fstindex: read %q: %w", dictKey, err)
	}
	if dictBytes == nil {
		return nil, nil, nil
	}
	dict, err := Load(dictBytes)
	if err != nil {
		return nil, nil, err
	}

	bloomBytes, err := tx.Get(kv.Main, []byte(bloomKey))
	if err != nil {
		return nil, nil, fmt.Errorf("fstindex: read %q: %w", bloomKey, err)
	}
	var bloom *TermBloom
	if bloomBytes != nil {
		bloom, err = LoadTermBloom(bloomBytes)
		if err != nil {
			return nil, nil, err
		}
	}
	return dict, bloom, nil
}
