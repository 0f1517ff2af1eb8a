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

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	mapset "github.com/deckarep/golang-set/v2"
	ugorji "github.com/ugorji/go/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/extract"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/kv"
)

// Main database singleton keys this package owns, alongside the ones
// fstindex and geoindex already reserve under kv.Main (MainKeyWords,
// MainKeyGeo, etc).
const (
	mainKeyPrimaryKey        = "primary-key"
	mainKeyFieldDistribution = "field-distribution"
	mainKeySettings          = "settings"
	mainKeySettingsDigest    = "settings-digest"
	mainKeyCreatedAt         = "created-at"
	mainKeyUpdatedAt         = "updated-at"
	mainKeyNextInternalID    = "next-internal-id"
	mainKeyLiveDocids        = "live-docids"
	mainKeyFieldsMap         = "fields-map"
)

// cborHandle is shared by every Main-db metadata encode/decode call; a
// codec.Handle carries no per-call state, so one package-level value is
// safe to reuse across goroutines (ugorji's documented contract).
var cborHandle ugorji.CborHandle

// EmbedderSettings configures one embedder, mirroring extract.EmbedderConfig
// but in the JSON/CBOR-friendly shape settings are persisted and patched in.
type EmbedderSettings struct {
	Source     string `codec:"source"` // "userProvided" or "template"
	Template   string `codec:"template,omitempty"`
	Dimensions int    `codec:"dimensions"`
}

func (s EmbedderSettings) toExtractorConfig(name string) extract.EmbedderConfig {
	cfg := extract.EmbedderConfig{Name: name, Dimensions: s.Dimensions, Template: s.Template}
	if s.Source == "template" {
		cfg.Kind = extract.Template
	}
	return cfg
}

// Settings is the full persisted settings document for one index, the
// union of spec.md §6.1's apply_settings patch target and §4.1's
// fields.Settings input.
type Settings struct {
	SearchableAttributes []string                    `codec:"searchable_attributes"`
	FilterableAttributes []string                    `codec:"filterable_attributes"`
	SortableAttributes   []string                    `codec:"sortable_attributes"`
	RankingRules         []string                    `codec:"ranking_rules"`
	Synonyms             map[string][]string         `codec:"synonyms"`
	StopWords            []string                    `codec:"stop_words"`
	DistinctAttribute    string                      `codec:"distinct_attribute"`
	Locales              []fields.LocaleRule         `codec:"locales"`
	Embedders            map[string]EmbedderSettings `codec:"embedders"`
}

// DefaultSettings is what a freshly created, never-configured index starts
// from: nothing searchable/filterable/sortable, the standard rule order.
func DefaultSettings() Settings {
	return Settings{
		RankingRules: []string{"words", "typo", "proximity", "attribute", "exactness"},
	}
}

func (s Settings) fieldsSettings() fields.Settings {
	return fields.Settings{
		SearchableAttributes: s.SearchableAttributes,
		FilterableAttributes: s.FilterableAttributes,
		SortableAttributes:   s.SortableAttributes,
		Locales:              s.Locales,
	}
}

func (s Settings) stopwordSet() mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(s.StopWords...)
}

// SettingsPatch is a partial update: a nil field leaves the corresponding
// Settings field untouched, matching spec.md §6.1's "partial update of
// searchable/filterable/sortable/ranking-rules/synonyms/stop-words/embedders".
type SettingsPatch struct {
	SearchableAttributes *[]string
	FilterableAttributes *[]string
	SortableAttributes   *[]string
	RankingRules         *[]string
	Synonyms             *map[string][]string
	StopWords            *[]string
	DistinctAttribute    *string
	Embedders            *map[string]EmbedderSettings
}

// Apply returns the Settings that result from folding patch onto s.
func (s Settings) Apply(patch SettingsPatch) Settings {
	out := s
	if patch.SearchableAttributes != nil {
		out.SearchableAttributes = *patch.SearchableAttributes
	}
	if patch.FilterableAttributes != nil {
		out.FilterableAttributes = *patch.FilterableAttributes
	}
	if patch.SortableAttributes != nil {
		out.SortableAttributes = *patch.SortableAttributes
	}
	if patch.RankingRules != nil {
		out.RankingRules = *patch.RankingRules
	}
	if patch.Synonyms != nil {
		out.Synonyms = *patch.Synonyms
	}
	if patch.StopWords != nil {
		out.StopWords = *patch.StopWords
	}
	if patch.DistinctAttribute != nil {
		out.DistinctAttribute = *patch.DistinctAttribute
	}
	if patch.Embedders != nil {
		out.Embedders = *patch.Embedders
	}
	return out
}

func marshalCBOR(v any) ([]byte, error) {
	var out []byte
	enc := ugorji.NewEncoderBytes(&out, &cborHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshalCBOR(data []byte, v any) error {
	dec := ugorji.NewDecoderBytes(data, &cborHandle)
	return dec.Decode(v)
}

// settingsDigest hashes the CBOR encoding of s with blake2b-256, stored
// alongside the settings blob itself (spec.md §3.2's "main: ... settings
// digest") so a caller can cheaply detect whether settings changed between
// two reads without re-decoding and deep-comparing the whole document.
func settingsDigest(s Settings) ([32]byte, error) {
	raw, err := marshalCBOR(s)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(raw), nil
}

func loadSettings(tx kv.RoTx) (Settings, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeySettings))
	if err != nil {
		return Settings{}, err
	}
	if raw == nil {
		return DefaultSettings(), nil
	}
	var s Settings
	if err := unmarshalCBOR(raw, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// storeSettings persists s and its digest under kv.Main in the same write
// transaction the caller is already holding open.
func storeSettings(tx kv.RwTx, s Settings) error {
	raw, err := marshalCBOR(s)
	if err != nil {
		return err
	}
	if err := tx.Put(kv.Main, []byte(mainKeySettings), raw); err != nil {
		return err
	}
	digest, err := settingsDigest(s)
	if err != nil {
		return err
	}
	return tx.Put(kv.Main, []byte(mainKeySettingsDigest), digest[:])
}

// fieldDistribution maps a field name to the number of live documents that
// set it, persisted under kv.Main per spec.md §6.1's stats() return shape
// and updated by every committed batch.
type fieldDistribution map[string]int

func loadFieldDistribution(tx kv.RoTx) (fieldDistribution, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeyFieldDistribution))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return fieldDistribution{}, nil
	}
	var d fieldDistribution
	if err := unmarshalCBOR(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func storeFieldDistribution(tx kv.RwTx, d fieldDistribution) error {
	raw, err := marshalCBOR(d)
	if err != nil {
		return err
	}
	return tx.Put(kv.Main, []byte(mainKeyFieldDistribution), raw)
}

// applyDelta folds one batch's per-field set/unset counts into
// d, dropping any field whose count falls back to zero rather than leaving
// a stale zero entry behind.
func (d fieldDistribution) applyDelta(delta map[string]int) {
	for name, n := range delta {
		next := d[name] + n
		if next <= 0 {
			delete(d, name)
			continue
		}
		d[name] = next
	}
}

// loadPrimaryKey returns the index's configured primary key field, or "" if
// none has been inferred or set yet (a never-written index).
func loadPrimaryKey(tx kv.RoTx) (string, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeyPrimaryKey))
	if err != nil || raw == nil {
		return "", err
	}
	return string(raw), nil
}

// storePrimaryKey fixes the index's primary key field. Once set it never
// changes for the life of the index (spec.md invariant 2): callers only
// call this the first time a batch resolves one.
func storePrimaryKey(tx kv.RwTx, name string) error {
	return tx.Put(kv.Main, []byte(mainKeyPrimaryKey), []byte(name))
}

// loadNextInternalID returns the next unused internal document id.
func loadNextInternalID(tx kv.RoTx) (codec.DocumentID, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeyNextInternalID))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	return codec.DocumentID(codec.DecodeBEUint32(raw)), nil
}

func storeNextInternalID(tx kv.RwTx, id codec.DocumentID) error {
	return tx.Put(kv.Main, []byte(mainKeyNextInternalID), codec.BEUint32(uint32(id)))
}

// loadLiveDocids returns every internal id not soft-deleted: the "universe"
// bitmap search.Executor and filter.Eval both require (spec.md §4.1's
// referential-integrity invariant, "postings never reference a soft-deleted
// docid").
func loadLiveDocids(tx kv.RoTx) (*roaring.Bitmap, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeyLiveDocids))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return roaring.New(), nil
	}
	return codec.DecodeBitmap(raw)
}

func storeLiveDocids(tx kv.RwTx, bm *roaring.Bitmap) error {
	raw, err := codec.EncodeBitmap(bm)
	if err != nil {
		return err
	}
	return tx.Put(kv.Main, []byte(mainKeyLiveDocids), raw)
}

// loadFieldsMapNames returns the persisted id->name ordering, or nil for a
// never-written index. Index.Open replays these names through fields.Map's
// own Insert in order, relying on Insert's deterministic sequential
// assignment (fields/fields.go) to reconstruct exactly the same name<->id
// table postings on disk still reference, rather than fields.Map itself
// gaining a load/save pair.
func loadFieldsMapNames(tx kv.RoTx) ([]string, error) {
	raw, err := tx.Get(kv.Main, []byte(mainKeyFieldsMap))
	if err != nil || raw == nil {
		return nil, err
	}
	var names []string
	if err := unmarshalCBOR(raw, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func storeFieldsMapNames(tx kv.RwTx, names []string) error {
	raw, err := marshalCBOR(names)
	if err != nil {
		return err
	}
	return tx.Put(kv.Main, []byte(mainKeyFieldsMap), raw)
}

// loadTime and storeTime persist the main db's created-at/updated-at
// timestamps using time.Time's own binary codec, since neither codec nor
// ugorji's CBOR path is a natural fit for a single scalar this shape.
func loadTime(tx kv.RoTx, key string) (time.Time, error) {
	raw, err := tx.Get(kv.Main, []byte(key))
	if err != nil || raw == nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := t.UnmarshalBinary(raw); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func storeTime(tx kv.RwTx, key string, t time.Time) error {
	raw, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Put(kv.Main, []byte(key), raw)
}
