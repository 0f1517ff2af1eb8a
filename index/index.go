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

// Package index wires document storage, extraction, merging, the term and
// geo indexes, and the search executor together behind the operations
// spec.md §6.1 names: Open, ApplyDocuments, ApplySettings, DeleteDocuments,
// Clear, Swap, Search, GetDocument, ListDocuments, Stats.
package index

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/containerd/cgroups/v3"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/valyala/fastjson"
	"golang.org/x/sync/errgroup"

	"github.com/meilisearch/searchcore/codec"
	"github.com/meilisearch/searchcore/document"
	"github.com/meilisearch/searchcore/extract"
	"github.com/meilisearch/searchcore/facet"
	"github.com/meilisearch/searchcore/fields"
	"github.com/meilisearch/searchcore/filter"
	"github.com/meilisearch/searchcore/geoindex"
	ierrors "github.com/meilisearch/searchcore/internal/errors"
	"github.com/meilisearch/searchcore/internal/slogx"
	"github.com/meilisearch/searchcore/kv"
	"github.com/meilisearch/searchcore/kv/mdbxkv"
	"github.com/meilisearch/searchcore/merge"
	"github.com/meilisearch/searchcore/query"
	"github.com/meilisearch/searchcore/search"
	"github.com/meilisearch/searchcore/vector"
)

// defaultChunkSize is how many document changes one extractor goroutine
// processes before handing its arena back to the pool, sized so a single
// chunk's Deladd accumulator stays small without making the pool a
// bottleneck on large batches (SPEC_FULL.md §8).
const defaultChunkSize = 256

// minFreeDiskBytes and minAvailableMemoryPercent gate BeginWrite: a batch
// that would very likely OOM or fill the disk mid-merge is refused up
// front rather than left to fail partway through a write transaction.
const (
	minFreeDiskBytes          = 64 << 20 // 64MiB
	minAvailableMemoryPercent = 5.0
)

// Index owns one MDBX environment and every in-memory structure layered on
// top of it: the fields-id map, the geo R-tree, and the per-embedder ANN
// indexes. Exactly one Writer may be open at a time (writeMu); any number
// of Readers may run concurrently with it and with each other.
type Index struct {
	mu      sync.Mutex // guards fieldsMap/geo/vectors swap-in on Writer.Commit
	writeMu sync.Mutex

	env              kv.Env
	fieldsMap        *fields.Map
	geo              *geoindex.Tree
	vectors          *vector.Store
	logger           slogx.Logger
	metrics          *Metrics
	cancel           cancelToken
	extractorWorkers int
	uid              string

	// docCache and facetCache memoize reads across Readers sharing this
	// Index; both are purged on every Writer.Commit, since they cache
	// values keyed only by internal id / raw facet key, not by MVCC
	// snapshot version.
	docCache   *document.Cache
	facetCache *facet.BitmapCache
}

// Open creates or opens the MDBX environment at path and reconstructs the
// in-memory fields map, geo tree, and vector stores from what a previous
// process last committed. extractorWorkers <= 0 defaults to
// runtime.GOMAXPROCS(0), matching SPEC_FULL.md §8's "sized to GOMAXPROCS by
// default, overridable via config".
func Open(path string, mapSize uint64, maxDBs int, extractorWorkers int) (*Index, error) {
	env, err := mdbxkv.Open(mdbxkv.Options{Path: path, MapSize: mapSize, MaxDBs: maxDBs})
	if err != nil {
		return nil, ierrors.Wrap(ierrors.Internal, err, "index: open %q", path)
	}
	idx, err := openEnv(env, filepath.Base(filepath.Clean(path)), extractorWorkers)
	if err != nil {
		env.Close()
		return nil, err
	}
	idx.logger.Info("index opened", "path", path, "uid", idx.uid, "cgroup_mode", cgroups.Mode())
	return idx, nil
}

// openEnv builds an Index around an already-open kv.Env, shared by Open and
// by package tests that exercise the full Index API against an in-memory
// kv.Env fake without touching MDBX (search/executor_test.go and
// filter/filter_test.go take the same approach one layer down).
func openEnv(env kv.Env, uid string, extractorWorkers int) (*Index, error) {
	if extractorWorkers <= 0 {
		extractorWorkers = runtime.GOMAXPROCS(0)
	}
	idx := &Index{
		env:              env,
		fieldsMap:        fields.New(),
		geo:              geoindex.New(),
		vectors:          vector.NewStore(),
		logger:           slogx.New(slog.LevelInfo),
		metrics:          NewMetrics(),
		extractorWorkers: extractorWorkers,
		uid:              uid,
		docCache:         document.NewCache(document.DefaultCacheSize),
		facetCache:       facet.NewBitmapCache(facet.DefaultBitmapCacheSize),
	}
	if err := idx.bootstrap(); err != nil {
		return nil, err
	}
	idx.metrics.Registry.MustRegister(NewFieldCardinalityCollector(idx.fieldCardinalities))
	return idx, nil
}

// fieldCardinalities counts, per filterable field, the number of distinct
// level-0 facet values currently stored (numeric and string facets
// combined), for FieldCardinalityCollector to report. Errors reading the
// snapshot are swallowed to a zero-valued map rather than panicking a
// Prometheus scrape; a bad read shows up as a metric dropping to zero, not
// as a crashed collector.
func (idx *Index) fieldCardinalities() map[string]int {
	out := make(map[string]int)
	tx, err := idx.env.BeginRO(context.Background())
	if err != nil {
		return out
	}
	defer tx.Rollback()

	settings, err := loadSettings(tx)
	if err != nil {
		return out
	}
	meta := fields.NewMetadataBuilder(settings.fieldsSettings())
	snap := idx.fieldsMap.Snapshot()
	for _, name := range meta.FilterableNames() {
		fieldID, ok := snap.ID(name)
		if !ok {
			continue
		}
		prefix := make([]byte, 2)
		binary.BigEndian.PutUint16(prefix, fieldID)
		count := 0
		_ = tx.ForPrefix(kv.FacetIdF64Docids, prefix, func(k, _ []byte) (bool, error) {
			if codec.DecodeFacetF64Key(k).Level == 0 {
				count++
			}
			return true, nil
		})
		_ = tx.ForPrefix(kv.FacetIdStringDocids, prefix, func(k, _ []byte) (bool, error) {
			if codec.DecodeFacetStringKey(k).Level == 0 {
				count++
			}
			return true, nil
		})
		out[name] = count
	}
	return out
}

// bootstrap replays persisted Main-db state into the in-memory structures
// that don't live in MDBX directly, and lays down the defaults a brand new
// environment needs (primary-key-less, default settings, fresh timestamps).
func (idx *Index) bootstrap() error {
	ctx := context.Background()
	tx, err := idx.env.BeginRW(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	names, err := loadFieldsMapNames(tx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := idx.fieldsMap.Insert(name); err != nil {
			return ierrors.Wrap(ierrors.Internal, err, "index: replay fields map")
		}
	}

	if raw, err := tx.Get(kv.Main, []byte(geoindex.MainKeyGeo)); err != nil {
		return err
	} else if raw != nil {
		tree, err := geoindex.Decode(raw)
		if err != nil {
			return ierrors.Wrap(ierrors.Internal, err, "index: decode geo tree")
		}
		idx.geo = tree
	}

	settings, err := loadSettings(tx)
	if err != nil {
		return err
	}
	for name, es := range settings.Embedders {
		idx.vectors.Register(name, es.Dimensions, vector.Cosine)
	}

	createdRaw, err := tx.Get(kv.Main, []byte(mainKeyCreatedAt))
	if err != nil {
		return err
	}
	if createdRaw == nil {
		now := time.Now().UTC()
		if err := storeTime(tx, mainKeyCreatedAt, now); err != nil {
			return err
		}
		if err := storeTime(tx, mainKeyUpdatedAt, now); err != nil {
			return err
		}
		if err := storeSettings(tx, DefaultSettings()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close releases the underlying MDBX environment and its writer lock.
func (idx *Index) Close() error { return idx.env.Close() }

// UID returns the index's identifier, derived from its directory name.
func (idx *Index) UID() string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.uid
}

// Metrics exposes the index's Prometheus registry for an embedder to scrape.
func (idx *Index) Metrics() *Metrics { return idx.metrics }

// ExportGeoSnapshot dumps the current geo R-tree to path as a flat blob
// (geoindex.Tree.Encode's format), for offline inspection with
// geoindex.OpenMmap without holding the index's MDBX environment open.
func (idx *Index) ExportGeoSnapshot(path string) error {
	idx.mu.Lock()
	tree := idx.geo
	idx.mu.Unlock()
	return tree.WriteFile(path)
}

// checkResources refuses a write batch up front when the host is already
// close to exhausting memory or disk, rather than letting a multi-gigabyte
// merge transaction fail partway through (spec.md §7's ResourceExhausted
// kind). cgroups.Mode() only distinguishes unified/hybrid/legacy/unavailable
// cgroup hierarchies here; it does not read a container's own memory limit,
// which would require the deeper cgroup2.Manager.Stat() surface this
// package deliberately does not depend on (see DESIGN.md).
func (idx *Index) checkResources(path string) error {
	if vm, err := mem.VirtualMemory(); err == nil {
		available := 100 - vm.UsedPercent
		if available < minAvailableMemoryPercent {
			return ierrors.New(ierrors.ResourceExhausted, "available memory %.1f%% below minimum %.1f%%", available, minAvailableMemoryPercent)
		}
	}
	if usage, err := disk.Usage(path); err == nil {
		if usage.Free < minFreeDiskBytes {
			return ierrors.New(ierrors.ResourceExhausted, "free disk %d bytes below minimum %d", usage.Free, minFreeDiskBytes)
		}
	}
	return nil
}

// Cancel requests cancellation of whatever batch is currently applying (or
// the next one applied through an already open Writer; BeginWrite clears
// the request), observed at the next document or extractor chunk boundary
// (spec.md §5, §4.14's Canceled state).
func (idx *Index) Cancel() { idx.cancel.Stop() }

// --- Reader ----------------------------------------------------------------

// Reader is a single read-only transaction with the settings, fields
// metadata, and live-docids universe snapshotted at BeginRead time.
type Reader struct {
	idx      *Index
	tx       kv.RoTx
	meta     *fields.MetadataBuilder
	snap     *fields.Snapshot
	settings Settings
	universe *roaring.Bitmap
}

// BeginRead opens a read transaction. Any number of Readers may be open
// concurrently with each other and with the single in-flight Writer.
func (idx *Index) BeginRead(ctx context.Context) (*Reader, error) {
	tx, err := idx.env.BeginRO(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := loadSettings(tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	universe, err := loadLiveDocids(tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	idx.mu.Lock()
	snap := idx.fieldsMap.Snapshot()
	idx.mu.Unlock()
	return &Reader{
		idx:      idx,
		tx:       tx,
		meta:     fields.NewMetadataBuilder(settings.fieldsSettings()),
		snap:     snap,
		settings: settings,
		universe: universe,
	}, nil
}

// Close rolls back the underlying read transaction.
func (r *Reader) Close() { r.tx.Rollback() }

// SearchRequest is the parsed form of spec.md §6.1's search() input.
type SearchRequest struct {
	Query         string
	Filter        string // "" disables filtering
	Sort          []string
	Offset, Limit *int
	Page          *int
	HitsPerPage   *int
	DistinctField string // "" falls back to the index's configured distinct attribute
	Explain       bool   // true: SearchResult.ExplainDOT holds the ranking rule chain's DOT dump
}

// SearchResult is the parsed form of spec.md §6.1's search() return value,
// minus the facets/score-details breakdown a caller builds on top.
type SearchResult struct {
	Hits               []codec.DocumentID
	EstimatedTotalHits int
	ProcessingTime     time.Duration
	// ExplainDOT is the DOT digraph of the rule chain that ranked this
	// request's hits, set only when SearchRequest.Explain was true.
	ExplainDOT string
}

// Search runs req against r's snapshot.
func (r *Reader) Search(req SearchRequest) (SearchResult, error) {
	timer := NewTimer()
	defer func() { timer.ObserveSeconds(r.idx.metrics.SearchDuration) }()
	start := time.Now()

	var expr filter.Expr
	if strings.TrimSpace(req.Filter) != "" {
		e, err := filter.Parse(req.Filter)
		if err != nil {
			return SearchResult{}, ierrors.Wrap(ierrors.InvalidRequest, err, "search: parse filter")
		}
		expr = e
	}

	sortClauses, err := parseSortClauses(req.Sort)
	if err != nil {
		return SearchResult{}, err
	}

	distinctField := req.DistinctField
	if distinctField == "" {
		distinctField = r.settings.DistinctAttribute
	}

	exec, err := search.NewExecutor(r.tx, r.meta, r.snap, r.idx.geo, r.universe, r.idx.facetCache)
	if err != nil {
		return SearchResult{}, ierrors.Wrap(ierrors.Internal, err, "search: build executor")
	}

	res, err := exec.Search(search.Request{
		QueryText:      req.Query,
		QueryResources: queryResources(r.settings),
		Filter:         expr,
		Sort:           sortClauses,
		Pagination: search.Pagination{
			Offset: req.Offset, Limit: req.Limit, Page: req.Page, HitsPerPage: req.HitsPerPage,
		},
		DistinctField: distinctField,
		Explain:       req.Explain,
	})
	if err != nil {
		return SearchResult{}, err
	}

	hits := make([]codec.DocumentID, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = h.DocumentID
	}
	return SearchResult{
		Hits:               hits,
		EstimatedTotalHits: res.EstimatedTotalHits,
		ProcessingTime:     time.Since(start),
		ExplainDOT:         res.ExplainDOT,
	}, nil
}

func queryResources(s Settings) query.Resources {
	return query.Resources{Stopwords: s.stopwordSet(), Synonyms: s.Synonyms}
}

// parseSortClauses turns spec.md §6.1's "field:asc" / "field:desc" /
// "_geoPoint(lat,lng):asc" sort strings into search.SortClause values.
func parseSortClauses(raw []string) ([]search.SortClause, error) {
	out := make([]search.SortClause, 0, len(raw))
	for _, s := range raw {
		field, dirStr, ok := strings.Cut(s, ":")
		if !ok {
			return nil, ierrors.New(ierrors.InvalidRequest, "sort: missing direction in %q", s)
		}
		var dir facet.Direction
		switch dirStr {
		case "asc":
			dir = facet.Ascending
		case "desc":
			dir = facet.Descending
		default:
			return nil, ierrors.New(ierrors.InvalidRequest, "sort: unknown direction %q", dirStr)
		}
		if strings.HasPrefix(field, "_geoPoint(") && strings.HasSuffix(field, ")") {
			inner := strings.TrimSuffix(strings.TrimPrefix(field, "_geoPoint("), ")")
			parts := strings.Split(inner, ",")
			if len(parts) != 2 {
				return nil, ierrors.New(ierrors.InvalidRequest, "sort: invalid _geoPoint %q", field)
			}
			lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			if err != nil {
				return nil, ierrors.Wrap(ierrors.InvalidRequest, err, "sort: invalid latitude in %q", field)
			}
			lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err != nil {
				return nil, ierrors.Wrap(ierrors.InvalidRequest, err, "sort: invalid longitude in %q", field)
			}
			out = append(out, search.SortClause{Geo: true, Lat: lat, Lng: lng, Direction: dir})
			continue
		}
		out = append(out, search.SortClause{Field: field, Direction: dir})
	}
	return out, nil
}

// DocumentView is one document returned by GetDocument/ListDocuments.
type DocumentView struct {
	InternalID codec.DocumentID
	Record     codec.Record
}

// Decode resolves view's record back into a name-keyed JSON-compatible map,
// for a caller (the CLI's search/get output) that wants field names rather
// than the internal codec.FieldID keys codec.Record stores.
func (r *Reader) Decode(view DocumentView) (map[string]any, error) {
	return recordToMap(view.Record, r.snap)
}

// GetDocument resolves id (tried first as an external id, then as a decimal
// internal id) and returns its record, restricted to attrs when non-empty.
func (r *Reader) GetDocument(id string, attrs []string) (DocumentView, bool, error) {
	internal, ok, err := (document.ExternalIDs{}).Get(r.tx, id)
	if err != nil {
		return DocumentView{}, false, err
	}
	if !ok {
		n, perr := strconv.ParseUint(id, 10, 32)
		if perr != nil {
			return DocumentView{}, false, nil
		}
		internal = codec.DocumentID(n)
		has, err := r.tx.Has(kv.Documents, codec.DocumentsKey(internal))
		if err != nil {
			return DocumentView{}, false, err
		}
		if !has {
			return DocumentView{}, false, nil
		}
	}
	rec, cached := r.idx.docCache.Get(internal)
	if !cached {
		rec, err = (document.Store{}).Get(r.tx, internal)
		if err != nil {
			return DocumentView{}, false, err
		}
		if rec == nil {
			return DocumentView{}, false, nil
		}
		r.idx.docCache.Add(internal, rec)
	}
	return DocumentView{InternalID: internal, Record: filterRecordAttrs(rec, r.snap, attrs)}, true, nil
}

// ListDocuments walks internal ids in ascending order starting at from,
// returning up to limit documents.
func (r *Reader) ListDocuments(from codec.DocumentID, limit int, attrs []string) ([]DocumentView, error) {
	var out []DocumentView
	err := (document.Store{}).Iter(r.tx, from, func(id codec.DocumentID, rec codec.Record) (bool, error) {
		if len(out) >= limit {
			return false, nil
		}
		out = append(out, DocumentView{InternalID: id, Record: filterRecordAttrs(rec, r.snap, attrs)})
		return true, nil
	})
	return out, err
}

func filterRecordAttrs(rec codec.Record, snap *fields.Snapshot, attrs []string) codec.Record {
	if len(attrs) == 0 {
		return rec
	}
	want := make(map[codec.FieldID]struct{}, len(attrs))
	for _, a := range attrs {
		if id, ok := snap.ID(a); ok {
			want[id] = struct{}{}
		}
	}
	out := make(codec.Record, len(want))
	for id, v := range rec {
		if _, ok := want[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Stats is the parsed form of spec.md §6.1's stats() return value.
type Stats struct {
	Documents         int
	OnDiskSize        uint64
	UsedSize          uint64
	FieldDistribution map[string]int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Stats reports document count, on-disk footprint, field distribution, and
// timestamps as of r's snapshot.
func (r *Reader) Stats() (Stats, error) {
	count, err := r.tx.Count(kv.Documents)
	if err != nil {
		return Stats{}, err
	}
	dist, err := loadFieldDistribution(r.tx)
	if err != nil {
		return Stats{}, err
	}
	created, err := loadTime(r.tx, mainKeyCreatedAt)
	if err != nil {
		return Stats{}, err
	}
	updated, err := loadTime(r.tx, mainKeyUpdatedAt)
	if err != nil {
		return Stats{}, err
	}
	size, err := dirSize(r.idx.env.Path())
	if err != nil {
		r.idx.logger.Warn("stats: measure on-disk size", "error", err)
	}
	return Stats{
		Documents:         int(count),
		OnDiskSize:        size,
		UsedSize:          size,
		FieldDistribution: map[string]int(dist),
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

func dirSize(root string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}

// --- Writer ------------------------------------------------------------

// ApplyMethod selects how a document already present (by primary key) is
// combined with the incoming one, per spec.md §6.1.
type ApplyMethod int

const (
	// Replace discards the existing record entirely.
	Replace ApplyMethod = iota
	// Update merges incoming fields onto the existing record.
	Update
)

// Batch is one apply_documents call's input.
type Batch struct {
	Documents       [][]byte // raw JSON objects
	Method          ApplyMethod
	PrimaryKeyField string // only consulted when no primary key is set yet
}

// PendingEmbedding is a Template embedder's rendered prompt, returned to the
// caller rather than sent to any embedding API (extract.VectorExtractor
// never calls out itself); the caller's embedding client is responsible for
// turning this into a vector and feeding it back through a later
// apply_documents call's "_vectors.<name>" field.
type PendingEmbedding struct {
	InternalID codec.DocumentID
	Embedder   string
	Prompt     string
}

// ApplyResult is the parsed form of spec.md §6.1's apply_documents() return
// value.
type ApplyResult struct {
	Indexed           int
	Skipped           int
	PendingEmbeddings []PendingEmbedding
}

// docChange is one resolved document mutation, ready for extraction.
type docChange struct {
	kind       extract.OperationKind
	internalID codec.DocumentID
	old        codec.Record
	new        codec.Record
}

// Writer holds the single exclusive write transaction. Exactly one Writer
// may be open per Index at a time (idx.writeMu); BeginWrite blocks until
// any prior Writer commits or rolls back.
type Writer struct {
	idx        *Index
	tx         kv.RwTx
	ctx        context.Context
	settings   Settings
	meta       *fields.MetadataBuilder
	snap       *fields.Snapshot
	workingGeo *geoindex.Tree
	done       bool
}

// BeginWrite acquires the exclusive write transaction after checking host
// resource headroom (spec.md §7's ResourceExhausted).
func (idx *Index) BeginWrite(ctx context.Context) (*Writer, error) {
	if err := idx.checkResources(idx.env.Path()); err != nil {
		return nil, err
	}
	idx.writeMu.Lock()
	tx, err := idx.env.BeginRW(ctx)
	if err != nil {
		idx.writeMu.Unlock()
		return nil, err
	}
	idx.cancel.Reset()

	settings, err := loadSettings(tx)
	if err != nil {
		tx.Rollback()
		idx.writeMu.Unlock()
		return nil, err
	}
	idx.mu.Lock()
	snap := idx.fieldsMap.Snapshot()
	idx.mu.Unlock()

	return &Writer{
		idx:      idx,
		tx:       tx,
		ctx:      ctx,
		settings: settings,
		meta:     fields.NewMetadataBuilder(settings.fieldsSettings()),
		snap:     snap,
	}, nil
}

// Commit persists every change made through w and, on success, swaps the
// in-memory geo tree for the working copy built during this batch. On
// failure the underlying transaction is rolled back and no in-memory
// structure is mutated, so a failed commit leaves Index exactly as it was
// before BeginWrite (spec.md §4.15: merger I/O errors abort the whole
// transaction).
func (w *Writer) Commit() error {
	if w.done {
		return ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	w.done = true
	defer w.idx.writeMu.Unlock()

	if err := storeFieldsMapNames(w.tx, w.snap.Names()); err != nil {
		w.tx.Rollback()
		return err
	}
	if err := storeTime(w.tx, mainKeyUpdatedAt, time.Now().UTC()); err != nil {
		w.tx.Rollback()
		return err
	}
	if err := w.tx.Commit(); err != nil {
		return err
	}
	w.idx.docCache.Purge()
	w.idx.facetCache.Purge()

	w.idx.mu.Lock()
	if w.workingGeo != nil {
		w.idx.geo = w.workingGeo
	}
	w.idx.mu.Unlock()
	return nil
}

// Rollback discards every change made through w.
func (w *Writer) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tx.Rollback()
	w.idx.writeMu.Unlock()
	return nil
}

func (w *Writer) cloneWorkingGeo() {
	if w.workingGeo != nil {
		return
	}
	w.idx.mu.Lock()
	blob := w.idx.geo.Encode()
	w.idx.mu.Unlock()
	tree, err := geoindex.Decode(blob)
	if err != nil {
		tree = geoindex.New()
	}
	w.workingGeo = tree
}

// ApplyDocuments resolves each document against the primary key, assigns
// internal ids to new documents, merges or replaces existing ones, runs
// every extractor over the resulting changes, and applies the merged
// deltas — all inside w's single write transaction (spec.md §4.5, §4.6).
func (w *Writer) ApplyDocuments(batch Batch) (ApplyResult, error) {
	if w.done {
		return ApplyResult{}, ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	timer := NewTimer()
	defer func() { timer.ObserveSeconds(w.idx.metrics.MergeDuration) }()

	pk, err := w.resolvePrimaryKey(batch)
	if err != nil {
		return ApplyResult{}, err
	}

	live, err := loadLiveDocids(w.tx)
	if err != nil {
		return ApplyResult{}, err
	}
	nextID, err := loadNextInternalID(w.tx)
	if err != nil {
		return ApplyResult{}, err
	}

	w.cloneWorkingGeo()

	embedders, err := buildEmbedders(w.settings)
	if err != nil {
		return ApplyResult{}, err
	}

	var result ApplyResult
	var changes []docChange
	distDelta := make(map[string]int)

	for _, raw := range batch.Documents {
		if w.idx.cancel.Stopped() {
			return ApplyResult{}, ierrors.New(ierrors.Canceled, "apply_documents: canceled")
		}

		var p fastjson.Parser
		v, perr := p.ParseBytes(raw)
		if perr != nil {
			return ApplyResult{}, ierrors.Wrap(ierrors.InvalidRequest, perr, "apply_documents: invalid JSON")
		}
		obj, operr := v.Object()
		if operr != nil {
			return ApplyResult{}, ierrors.New(ierrors.InvalidRequest, "apply_documents: document is not a JSON object")
		}
		external, ok := extractPrimaryKeyValue(obj, pk)
		if !ok {
			result.Skipped++
			continue
		}

		newRec, err := w.recordFromObject(obj)
		if err != nil {
			return ApplyResult{}, err
		}

		internalID, exists, err := (document.ExternalIDs{}).Get(w.tx, external)
		if err != nil {
			return ApplyResult{}, err
		}

		var kind extract.OperationKind
		var oldRec codec.Record
		if exists {
			oldRec, err = (document.Store{}).Get(w.tx, internalID)
			if err != nil {
				return ApplyResult{}, err
			}
			if batch.Method == Update {
				newRec = mergeRecords(oldRec, newRec)
			}
			kind = extract.Update
		} else {
			internalID = nextID
			nextID++
			live.Add(internalID)
			kind = extract.Insert
			if err := (document.ExternalIDs{}).Apply(w.tx, []document.Operation{
				{ExternalID: external, InternalID: internalID, Kind: document.Create},
			}); err != nil {
				return ApplyResult{}, err
			}
		}

		applyDistributionDelta(distDelta, oldRec, newRec, w.snap)

		if err := (document.Store{}).Put(w.tx, internalID, newRec); err != nil {
			return ApplyResult{}, err
		}

		changes = append(changes, docChange{kind: kind, internalID: internalID, old: oldRec, new: newRec})
		result.Indexed++
	}

	if err := storeNextInternalID(w.tx, nextID); err != nil {
		return ApplyResult{}, err
	}
	if err := storeLiveDocids(w.tx, live); err != nil {
		return ApplyResult{}, err
	}

	deltas, geoChanges, pending, err := w.runExtractors(changes, embedders)
	if err != nil {
		return ApplyResult{}, err
	}
	result.PendingEmbeddings = pending

	if err := (merge.Merger{}).Apply(w.tx, deltas); err != nil {
		return ApplyResult{}, err
	}

	for _, gc := range geoChanges {
		w.workingGeo.Apply(gc)
	}
	if err := w.tx.Put(kv.Main, []byte(geoindex.MainKeyGeo), w.workingGeo.Encode()); err != nil {
		return ApplyResult{}, err
	}

	dist, err := loadFieldDistribution(w.tx)
	if err != nil {
		return ApplyResult{}, err
	}
	dist.applyDelta(distDelta)
	if err := storeFieldDistribution(w.tx, dist); err != nil {
		return ApplyResult{}, err
	}

	w.idx.metrics.DocumentsIndexed.Add(float64(result.Indexed))
	w.idx.metrics.DocumentsSkipped.Add(float64(result.Skipped))
	return result, nil
}

func mergeRecords(old, new codec.Record) codec.Record {
	out := make(codec.Record, len(old)+len(new))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range new {
		out[k] = v
	}
	return out
}

func applyDistributionDelta(delta map[string]int, old, new codec.Record, snap *fields.Snapshot) {
	for fid := range old {
		if _, stillThere := new[fid]; !stillThere {
			if name, ok := snap.Name(fid); ok {
				delta[name]--
			}
		}
	}
	for fid := range new {
		if _, already := old[fid]; !already {
			if name, ok := snap.Name(fid); ok {
				delta[name]++
			}
		}
	}
}

func (w *Writer) recordFromObject(obj *fastjson.Object) (codec.Record, error) {
	rec := make(codec.Record)
	var visitErr error
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if visitErr != nil {
			return
		}
		name := string(key)
		fieldID, err := w.idx.fieldsMap.Insert(name)
		if err != nil {
			visitErr = ierrors.Wrap(ierrors.Internal, err, "apply_documents: assign field id for %q", name)
			return
		}
		rec[fieldID] = v.MarshalTo(nil)
	})
	if visitErr != nil {
		return nil, visitErr
	}
	w.snap = w.idx.fieldsMap.Snapshot()
	return rec, nil
}

func extractPrimaryKeyValue(obj *fastjson.Object, pk string) (string, bool) {
	v := obj.Get(pk)
	if v == nil {
		return "", false
	}
	switch v.Type() {
	case fastjson.TypeString:
		s, err := v.StringBytes()
		if err != nil || len(s) == 0 {
			return "", false
		}
		return string(s), true
	case fastjson.TypeNumber:
		return v.String(), true
	default:
		return "", false
	}
}

func (w *Writer) resolvePrimaryKey(batch Batch) (string, error) {
	existing, err := loadPrimaryKey(w.tx)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	if batch.PrimaryKeyField != "" {
		if err := storePrimaryKey(w.tx, batch.PrimaryKeyField); err != nil {
			return "", err
		}
		return batch.PrimaryKeyField, nil
	}
	if len(batch.Documents) == 0 {
		return "", ierrors.New(ierrors.MissingPrimaryKey, "apply_documents: empty batch, no primary key configured")
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(batch.Documents[0])
	if err != nil {
		return "", ierrors.Wrap(ierrors.InvalidRequest, err, "apply_documents: invalid JSON")
	}
	obj, err := v.Object()
	if err != nil {
		return "", ierrors.New(ierrors.InvalidRequest, "apply_documents: first document is not an object")
	}
	inferred, err := inferPrimaryKey(obj)
	if err != nil {
		return "", err
	}
	if err := storePrimaryKey(w.tx, inferred); err != nil {
		return "", err
	}
	return inferred, nil
}

// inferPrimaryKey looks for exactly one field named "id" or ending in "id"
// (case-insensitive), matching milli's own primary key inference heuristic
// (original_source/milli/src/documents/primary_key.rs). More than one
// candidate, or none, is a MissingPrimaryKey error the caller must resolve
// by naming the field explicitly.
func inferPrimaryKey(obj *fastjson.Object) (string, error) {
	var candidates []string
	obj.Visit(func(key []byte, _ *fastjson.Value) {
		name := string(key)
		lower := strings.ToLower(name)
		if lower == "id" || strings.HasSuffix(lower, "id") {
			candidates = append(candidates, name)
		}
	})
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", ierrors.New(ierrors.MissingPrimaryKey, "apply_documents: cannot infer primary key, found %d candidate field(s)", len(candidates))
}

// chunkResult is one extractor goroutine's output over its chunk of changes.
type chunkResult struct {
	deladd  *extract.Deladd
	geo     []extract.GeoChange
	pending []PendingEmbedding
}

func chunkDocChanges(changes []docChange, size int) [][]docChange {
	var out [][]docChange
	for i := 0; i < len(changes); i += size {
		end := i + size
		if end > len(changes) {
			end = len(changes)
		}
		out = append(out, changes[i:end])
	}
	return out
}

// runExtractors fans changes out across a bounded errgroup of extractor
// goroutines, one chunk per task, each owning an Arena taken from a Pool
// (SPEC_FULL.md §8: "thread pool, one task per doc chunk, thread-local
// arenas"). Any error, including a mid-chunk cancellation, aborts the whole
// batch (spec.md §4.15: extractor errors abort the whole batch).
func (w *Writer) runExtractors(changes []docChange, embedders map[string]*extract.VectorExtractor) ([]*extract.Deladd, []extract.GeoChange, []PendingEmbedding, error) {
	if len(changes) == 0 {
		return nil, nil, nil, nil
	}
	chunks := chunkDocChanges(changes, defaultChunkSize)
	results := make([]chunkResult, len(chunks))
	pool := extract.NewPool(w.idx.extractorWorkers)

	g, _ := errgroup.WithContext(w.ctx)
	g.SetLimit(w.idx.extractorWorkers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if w.idx.cancel.Stopped() {
				return ierrors.New(ierrors.Canceled, "apply_documents: canceled")
			}
			arena := pool.Take()
			defer pool.Put(arena)
			res, err := w.extractChunk(chunk, embedders, arena)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	var deltas []*extract.Deladd
	var geoChanges []extract.GeoChange
	var pending []PendingEmbedding
	for _, r := range results {
		deltas = append(deltas, r.deladd)
		geoChanges = append(geoChanges, r.geo...)
		pending = append(pending, r.pending...)
	}
	return deltas, geoChanges, pending, nil
}

func (w *Writer) extractChunk(chunk []docChange, embedders map[string]*extract.VectorExtractor, arena *extract.Arena) (chunkResult, error) {
	res := chunkResult{deladd: arena.Deladd}
	geoFieldID, hasGeo := w.snap.ID(extract.GeoField)

	for _, dc := range chunk {
		if w.idx.cancel.Stopped() {
			return res, ierrors.New(ierrors.Canceled, "apply_documents: canceled")
		}
		op := extract.Operation{Kind: dc.kind, InternalID: dc.internalID, Old: dc.old, New: dc.new}

		if err := (extract.WordExtractor{}).Extract(op, w.meta, w.snap, arena, arena.Deladd); err != nil {
			return res, err
		}
		if err := (extract.ProximityExtractor{}).Extract(op, w.meta, w.snap, arena, arena.Deladd); err != nil {
			return res, err
		}
		if err := (extract.WordCountExtractor{}).Extract(op, w.meta, w.snap, arena, arena.Deladd); err != nil {
			return res, err
		}
		if err := (extract.FacetExtractor{}).Extract(op, w.meta, w.snap, arena, arena.Deladd); err != nil {
			return res, err
		}

		if hasGeo {
			change, err := (extract.GeoExtractor{}).Extract(op, geoFieldID)
			if err != nil {
				return res, ierrors.Wrap(ierrors.InvalidRequest, err, "apply_documents: invalid _geo")
			}
			if change.Remove != nil || change.Add != nil {
				res.geo = append(res.geo, change)
			}
		}

		pend, err := w.extractVectors(dc, embedders)
		if err != nil {
			return res, err
		}
		res.pending = append(res.pending, pend...)
	}
	return res, nil
}

func recordToMap(rec codec.Record, snap *fields.Snapshot) (map[string]any, error) {
	out := make(map[string]any, len(rec))
	for fid, raw := range rec {
		name, ok := snap.Name(fid)
		if !ok {
			continue
		}
		var v any
		if err := document.DecodeJSONField(raw, &v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// extractVectors resolves each configured embedder against one document
// change: a user-provided "_vectors.<name>" field is validated and added to
// the in-memory ANN index directly (vector.Store carries no transactional
// guarantee of its own, see DESIGN.md); a Template embedder instead renders
// its prompt and returns it as a PendingEmbedding, never calling out to an
// embedding API itself.
func (w *Writer) extractVectors(dc docChange, embedders map[string]*extract.VectorExtractor) ([]PendingEmbedding, error) {
	if len(embedders) == 0 || dc.new == nil {
		return nil, nil
	}
	var pending []PendingEmbedding
	for name, ve := range embedders {
		vectorFieldID, hasVectorField := w.snap.ID(extract.VectorFieldName(name))
		if hasVectorField {
			if raw, present := dc.new[vectorFieldID]; present {
				vec, err := extract.DecodeUserVector(raw)
				if err != nil {
					return nil, ierrors.Wrap(ierrors.InvalidRequest, err, "embedder %q: decode vector", name)
				}
				if err := ve.ValidateProvided(vec); err != nil {
					return nil, ierrors.Wrap(ierrors.InvalidRequest, err, "embedder %q", name)
				}
				if emb, found := w.idx.vectors.Embedder(name); found {
					if err := emb.Add(dc.internalID, [][]float32{vec}); err != nil {
						return nil, ierrors.Wrap(ierrors.Internal, err, "embedder %q: add vector", name)
					}
				}
				continue
			}
		}

		if ve.Config.Kind != extract.Template {
			continue
		}

		regenerate := true
		if regenFieldID, ok := w.snap.ID(extract.RegenerateFieldName(name)); ok {
			if raw, present := dc.new[regenFieldID]; present {
				regenerate = string(raw) == "true"
			}
		}
		if !regenerate {
			continue
		}

		doc, err := recordToMap(dc.new, w.snap)
		if err != nil {
			return nil, err
		}
		prompt, err := ve.RegeneratePrompt(doc)
		if err != nil {
			return nil, ierrors.Wrap(ierrors.Internal, err, "embedder %q: render prompt", name)
		}
		pending = append(pending, PendingEmbedding{InternalID: dc.internalID, Embedder: name, Prompt: prompt})
	}
	return pending, nil
}

func buildEmbedders(settings Settings) (map[string]*extract.VectorExtractor, error) {
	out := make(map[string]*extract.VectorExtractor, len(settings.Embedders))
	for name, es := range settings.Embedders {
		ve, err := extract.NewVectorExtractor(es.toExtractorConfig(name))
		if err != nil {
			return nil, ierrors.Wrap(ierrors.InvalidRequest, err, "embedder %q: invalid configuration", name)
		}
		out[name] = ve
	}
	return out, nil
}

// ApplySettings folds patch onto the current settings and persists the
// result, registering any newly configured embedder's ANN index
// immediately so a document applied later in the same batch can use it.
func (w *Writer) ApplySettings(patch SettingsPatch) error {
	if w.done {
		return ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	next := w.settings.Apply(patch)
	if err := storeSettings(w.tx, next); err != nil {
		return err
	}
	w.settings = next
	w.meta = fields.NewMetadataBuilder(next.fieldsSettings())

	if patch.Embedders != nil {
		w.idx.mu.Lock()
		for name, es := range next.Embedders {
			if _, ok := w.idx.vectors.Embedder(name); !ok {
				w.idx.vectors.Register(name, es.Dimensions, vector.Cosine)
			}
		}
		w.idx.mu.Unlock()
	}
	return nil
}

// commitDeletes runs extraction and merge over a set of already-removed
// document changes (old record populated, new nil), shared by DeleteByIDs
// and DeleteByFilter.
func (w *Writer) commitDeletes(changes []docChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	embedders, err := buildEmbedders(w.settings)
	if err != nil {
		return 0, err
	}
	deltas, geoChanges, _, err := w.runExtractors(changes, embedders)
	if err != nil {
		return 0, err
	}
	if err := (merge.Merger{}).Apply(w.tx, deltas); err != nil {
		return 0, err
	}

	w.cloneWorkingGeo()
	for _, gc := range geoChanges {
		w.workingGeo.Apply(gc)
	}
	if err := w.tx.Put(kv.Main, []byte(geoindex.MainKeyGeo), w.workingGeo.Encode()); err != nil {
		return 0, err
	}

	distDelta := make(map[string]int)
	for _, c := range changes {
		for fid := range c.old {
			if name, ok := w.snap.Name(fid); ok {
				distDelta[name]--
			}
		}
	}
	dist, err := loadFieldDistribution(w.tx)
	if err != nil {
		return 0, err
	}
	dist.applyDelta(distDelta)
	if err := storeFieldDistribution(w.tx, dist); err != nil {
		return 0, err
	}

	return len(changes), nil
}

// DeleteByIDs removes the documents named by externalIDs, ignoring any that
// don't exist. It returns the number actually deleted.
func (w *Writer) DeleteByIDs(externalIDs []string) (int, error) {
	if w.done {
		return 0, ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	live, err := loadLiveDocids(w.tx)
	if err != nil {
		return 0, err
	}

	var changes []docChange
	var ops []document.Operation
	for _, ext := range externalIDs {
		internal, ok, err := (document.ExternalIDs{}).Get(w.tx, ext)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		old, err := (document.Store{}).Get(w.tx, internal)
		if err != nil {
			return 0, err
		}
		changes = append(changes, docChange{kind: extract.Delete, internalID: internal, old: old})
		ops = append(ops, document.Operation{ExternalID: ext, InternalID: internal, Kind: document.Delete})
		live.Remove(internal)
		if err := (document.Store{}).Delete(w.tx, internal); err != nil {
			return 0, err
		}
		w.idx.vectors.RemoveDocument(internal)
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := (document.ExternalIDs{}).Apply(w.tx, ops); err != nil {
		return 0, err
	}
	if err := storeLiveDocids(w.tx, live); err != nil {
		return 0, err
	}
	return w.commitDeletes(changes)
}

// DeleteByFilter removes every document matching filterText.
func (w *Writer) DeleteByFilter(filterText string) (int, error) {
	if w.done {
		return 0, ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	expr, err := filter.Parse(filterText)
	if err != nil {
		return 0, ierrors.Wrap(ierrors.InvalidRequest, err, "delete_documents: parse filter")
	}

	universe, err := loadLiveDocids(w.tx)
	if err != nil {
		return 0, err
	}
	matched, err := filter.Eval(w.tx, expr, w.meta, w.snap, universe, w.idx.geo, nil)
	if err != nil {
		return 0, err
	}

	pairs, _, err := (document.ExternalIDs{}).ResolveInternal(w.tx, matched)
	if err != nil {
		return 0, err
	}

	live, err := loadLiveDocids(w.tx)
	if err != nil {
		return 0, err
	}

	var changes []docChange
	var ops []document.Operation
	for _, p := range pairs {
		old, err := (document.Store{}).Get(w.tx, p.Internal)
		if err != nil {
			return 0, err
		}
		changes = append(changes, docChange{kind: extract.Delete, internalID: p.Internal, old: old})
		ops = append(ops, document.Operation{ExternalID: p.External, InternalID: p.Internal, Kind: document.Delete})
		live.Remove(p.Internal)
		if err := (document.Store{}).Delete(w.tx, p.Internal); err != nil {
			return 0, err
		}
		w.idx.vectors.RemoveDocument(p.Internal)
	}
	if len(ops) > 0 {
		if err := (document.ExternalIDs{}).Apply(w.tx, ops); err != nil {
			return 0, err
		}
		if err := storeLiveDocids(w.tx, live); err != nil {
			return 0, err
		}
	}
	return w.commitDeletes(changes)
}

// Clear drops every document, posting list, FST blob, R-tree entry, and
// facet level, then restores the defaults a brand new environment starts
// from. Settings and the primary key are reset to their defaults too:
// document.Clear drops kv.Main itself along with every other table
// (document/store.go), so there is nothing left to selectively preserve.
func (w *Writer) Clear() error {
	if w.done {
		return ierrors.New(ierrors.Internal, "index: writer already closed")
	}
	if err := document.Clear(w.tx); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := storeTime(w.tx, mainKeyCreatedAt, now); err != nil {
		return err
	}
	if err := storeTime(w.tx, mainKeyUpdatedAt, now); err != nil {
		return err
	}
	w.settings = DefaultSettings()
	if err := storeSettings(w.tx, w.settings); err != nil {
		return err
	}
	if err := storeNextInternalID(w.tx, 0); err != nil {
		return err
	}
	if err := storeLiveDocids(w.tx, roaring.New()); err != nil {
		return err
	}
	if err := storeFieldDistribution(w.tx, fieldDistribution{}); err != nil {
		return err
	}

	w.workingGeo = geoindex.New()
	if err := w.tx.Put(kv.Main, []byte(geoindex.MainKeyGeo), w.workingGeo.Encode()); err != nil {
		return err
	}
	if err := storeFieldsMapNames(w.tx, nil); err != nil {
		return err
	}

	w.idx.mu.Lock()
	w.idx.fieldsMap = fields.New()
	w.idx.vectors = vector.NewStore()
	w.idx.mu.Unlock()

	w.meta = fields.NewMetadataBuilder(w.settings.fieldsSettings())
	w.snap = w.idx.fieldsMap.Snapshot()
	return nil
}

// Swap exchanges other's underlying state with idx's: the environment
// handle, fields map, geo tree, and vector stores trade places. Without
// rename, each Index's uid stays with its own in-memory handle (so callers
// keep addressing "the index named products" by uid regardless of which
// Environment now backs it); with rename, the uids trade places too. The
// write locks are acquired in a fixed order — the lower uid first — so two
// concurrent Swap calls between the same pair of indexes can never deadlock.
func (idx *Index) Swap(other *Index, rename bool) error {
	first, second := idx, other
	if second.uid < first.uid {
		first, second = second, first
	}
	first.writeMu.Lock()
	defer first.writeMu.Unlock()
	if second != first {
		second.writeMu.Lock()
		defer second.writeMu.Unlock()
	}

	idx.mu.Lock()
	other.mu.Lock()
	idx.env, other.env = other.env, idx.env
	idx.fieldsMap, other.fieldsMap = other.fieldsMap, idx.fieldsMap
	idx.geo, other.geo = other.geo, idx.geo
	idx.vectors, other.vectors = other.vectors, idx.vectors
	if rename {
		idx.uid, other.uid = other.uid, idx.uid
	}
	other.mu.Unlock()
	idx.mu.Unlock()
	return nil
}
