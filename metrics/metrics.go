package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelterstat_aggregation_duration_seconds",
			Help:    "Duration of one aggregation pass over the filtered inspection records",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsAggregated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelterstat_records_aggregated_total",
			Help: "Inspection records folded into dashboards after filtering",
		},
	)

	// Report cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelterstat_report_cache_hits_total",
			Help: "Dashboard requests served from the report cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelterstat_report_cache_misses_total",
			Help: "Dashboard requests that required a fresh aggregation",
		},
	)

	// Ingestion
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelterstat_records_ingested_total",
			Help: "Inspection rows written to the record store",
		},
		[]string{"source"}, // "postgres", "mock"
	)

	IngestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelterstat_ingest_errors_total",
			Help: "Failed ingestion runs",
		},
		[]string{"source"},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelterstat_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordAggregation records one engine pass.
func RecordAggregation(duration time.Duration, records int) {
	AggregationDuration.Observe(duration.Seconds())
	RecordsAggregated.Add(float64(records))
}

// RecordCacheLookup counts a report cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheHits.Inc()
		return
	}
	CacheMisses.Inc()
}

// RecordIngest records an ingestion run from source.
func RecordIngest(source string, rows int, err error) {
	if err != nil {
		IngestErrors.WithLabelValues(source).Inc()
		return
	}
	RecordsIngested.WithLabelValues(source).Add(float64(rows))
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
