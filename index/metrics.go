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

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds one Index's process-local Prometheus collectors. No HTTP
// /metrics route is wired anywhere in this repo; an embedder that wants to
// scrape these registers Metrics.Registry with its own handler.
type Metrics struct {
	Registry *prometheus.Registry

	MergeDuration    prometheus.Histogram
	SearchDuration   prometheus.Histogram
	BitmapBytes      prometheus.Gauge
	DocumentsIndexed prometheus.Counter
	DocumentsSkipped prometheus.Counter
}

// NewMetrics builds a fresh registry and collector set. Each Index gets its
// own registry rather than registering into prometheus's global default, so
// opening more than one Index in the same process (as the test suite does)
// never hits a duplicate-registration panic.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchcore_merge_duration_seconds",
			Help:    "Time taken to apply one batch's merge transaction, in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchcore_search_duration_seconds",
			Help:    "Time taken to execute one search request, in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		BitmapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchcore_bitmap_bytes",
			Help: "Encoded size, in bytes, of posting-list bitmaps touched by a merge; Index never sets this gauge, so it stays 0.",
		}),
		DocumentsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchcore_documents_indexed_total",
			Help: "Total number of documents successfully indexed across all batches.",
		}),
		DocumentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchcore_documents_skipped_total",
			Help: "Total number of documents skipped (validation failure) across all batches.",
		}),
	}
	m.Registry.MustRegister(
		m.MergeDuration,
		m.SearchDuration,
		m.BitmapBytes,
		m.DocumentsIndexed,
		m.DocumentsSkipped,
	)
	return m
}

// fieldCardinalityDesc describes the per-field distinct-value gauge
// fieldCardinalityCollector emits; one series per filterable field, unlike
// the fixed collectors above which need no label at all.
var fieldCardinalityDesc = prometheus.NewDesc(
	"searchcore_facet_field_cardinality",
	"Number of distinct level-0 facet values for a filterable field as of the last merge.",
	[]string{"field"}, nil,
)

// fieldCardinalityMetric implements prometheus.Metric directly against
// client_model's wire type rather than going through a NewConstMetric
// helper, since the set of fields (and therefore of label values) changes
// as settings evolve and a fixed GaugeVec would need updating on every
// settings change.
type fieldCardinalityMetric struct {
	field string
	value float64
}

func (m fieldCardinalityMetric) Desc() *prometheus.Desc { return fieldCardinalityDesc }

func (m fieldCardinalityMetric) Write(out *dto.Metric) error {
	out.Label = []*dto.LabelPair{{Name: strPtr("field"), Value: strPtr(m.field)}}
	out.Gauge = &dto.Gauge{Value: &m.value}
	return nil
}

func strPtr(s string) *string { return &s }

// FieldCardinalityCollector reports a gauge per filterable field with its
// distinct level-0 facet value count, read from source each Collect call
// (Prometheus scrapes are rare enough, and cardinality cheap enough to
// count, that no caching is needed).
type FieldCardinalityCollector struct {
	source func() map[string]int
}

// NewFieldCardinalityCollector builds a collector backed by source, a
// callback returning the current field->cardinality map (typically an
// Index method snapshotting its facet level-0 tables under a read
// transaction).
func NewFieldCardinalityCollector(source func() map[string]int) *FieldCardinalityCollector {
	return &FieldCardinalityCollector{source: source}
}

func (c *FieldCardinalityCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- fieldCardinalityDesc
}

func (c *FieldCardinalityCollector) Collect(ch chan<- prometheus.Metric) {
	for field, count := range c.source() {
		ch <- fieldCardinalityMetric{field: field, value: float64(count)}
	}
}

var _ prometheus.Collector = (*FieldCardinalityCollector)(nil)

// Timer times one operation; ObserveSeconds reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveSeconds records the elapsed time since NewTimer to h.
func (t Timer) ObserveSeconds(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}
