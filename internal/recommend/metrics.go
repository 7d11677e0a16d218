package recommend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for ingestion and query
// activity. It is optional: a nil *Metrics is never dereferenced by
// callers in this package (both Ingest and Recommender guard with a
// nil check), so metrics can be left out entirely in tests.
type Metrics struct {
	ingestRuns       *prometheus.CounterVec
	ingestArtists    *prometheus.CounterVec
	ingestURLs       *prometheus.CounterVec
	queryTotal       prometheus.Counter
	queryLatency     prometheus.Histogram
	queryResultCount prometheus.Histogram
}

// NewMetrics registers the recommend package's collectors against reg.
// Pass prometheus.DefaultRegisterer to expose them on the default
// /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ingestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfoliomatch",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome",
		}, []string{"outcome"}),
		ingestArtists: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfoliomatch",
			Subsystem: "ingest",
			Name:      "artists_total",
			Help:      "Artists processed by ingestion, by outcome",
		}, []string{"outcome"}),
		ingestURLs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfoliomatch",
			Subsystem: "ingest",
			Name:      "urls_total",
			Help:      "Image URLs processed by ingestion, by outcome",
		}, []string{"outcome"}),
		queryTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portfoliomatch",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total recommend queries served",
		}),
		queryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfoliomatch",
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Recommend query latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		queryResultCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfoliomatch",
			Subsystem: "query",
			Name:      "result_count",
			Help:      "Number of ranked results returned per query",
			Buckets:   []float64{1, 3, 5, 10, 20, 50},
		}),
	}
}

// RecordIngest records the outcome counters for one completed Ingest.Run.
func (m *Metrics) RecordIngest(status IngestStatus) {
	if m == nil {
		return
	}
	outcome := "ok"
	if status.FetchFailures > 0 || status.EncodeFailures > 0 {
		outcome = "partial_failure"
	}
	m.ingestRuns.WithLabelValues(outcome).Inc()

	m.ingestArtists.WithLabelValues("indexed").Add(float64(status.ArtistsIndexed))
	m.ingestArtists.WithLabelValues("excluded").Add(float64(status.ArtistsExcluded))

	m.ingestURLs.WithLabelValues("cache_hit").Add(float64(status.CacheHits))
	m.ingestURLs.WithLabelValues("fetch_failed").Add(float64(status.FetchFailures))
	m.ingestURLs.WithLabelValues("encode_failed").Add(float64(status.EncodeFailures))
}

// RecordQuery records one Recommend call's latency and result count.
func (m *Metrics) RecordQuery(elapsed time.Duration, resultCount int) {
	if m == nil {
		return
	}
	m.queryTotal.Inc()
	m.queryLatency.Observe(elapsed.Seconds())
	m.queryResultCount.Observe(float64(resultCount))
}
