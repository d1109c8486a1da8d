// Package metrics defines the Prometheus metric collectors used by the
// indexing pipeline and the segmentation engine, and exposes an HTTP handler
// for scraping.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	TokensIndexedTotal   prometheus.Counter
	EmptyDocsTotal       prometheus.Counter
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	IndexTermCount       prometheus.Gauge
	HistogramBuildsTotal *prometheus.CounterVec
	HistogramBuckets     prometheus.Gauge
	SegmentationPairs    *prometheus.CounterVec
	SinkWritesTotal      *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide Metrics registered with the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

// New creates all collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents written to an index.",
			},
		),
		TokensIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tokens_indexed_total",
				Help: "Total normalised tokens written to an index.",
			},
		),
		EmptyDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "empty_docs_total",
				Help: "Documents recorded with length zero.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Index builds by status.",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall time of a complete index build.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		IndexTermCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_term_count",
				Help: "Distinct terms in the most recently built index.",
			},
		),
		HistogramBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "histogram_builds_total",
				Help: "Document-length histogram builds by status.",
			},
			[]string{"status"},
		),
		HistogramBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "histogram_buckets",
				Help: "Distinct document lengths in the most recent histogram.",
			},
		),
		SegmentationPairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentation_pairs_total",
				Help: "Segmentation pairs emitted by strategy.",
			},
			[]string{"strategy"},
		),
		SinkWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "histogram_sink_writes_total",
				Help: "Histogram sink writes by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DocsIndexedTotal,
			m.TokensIndexedTotal,
			m.EmptyDocsTotal,
			m.IndexBuildsTotal,
			m.IndexBuildDuration,
			m.IndexTermCount,
			m.HistogramBuildsTotal,
			m.HistogramBuckets,
			m.SegmentationPairs,
			m.SinkWritesTotal,
		)
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
