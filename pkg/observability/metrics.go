package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the data plane
type Metrics struct {
	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.HistogramVec

	// Discovery metrics
	DiscoveryPartitionsTotal *prometheus.CounterVec
	DiscoverySkippedTotal    prometheus.Counter

	// Transfer metrics
	SyncFilesTotal *prometheus.CounterVec
	SyncBytesTotal prometheus.Counter
	SyncDuration   prometheus.Histogram

	// Materializer metrics
	ViewsBuiltTotal *prometheus.CounterVec
	ViewDuration    *prometheus.HistogramVec
	RunDuration     prometheus.Histogram

	// Client cache metrics
	ClientCacheHitsTotal   prometheus.Counter
	ClientCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curlens_queries_total",
				Help: "Total number of dispatched queries",
			},
			[]string{"data_source", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curlens_query_duration_seconds",
				Help:    "Query execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"data_source"},
		),
		QueryRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curlens_query_rows",
				Help:    "Rows returned per query",
				Buckets: prometheus.ExponentialBuckets(1, 10, 7),
			},
			[]string{"data_source"},
		),

		DiscoveryPartitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curlens_discovery_partitions_total",
				Help: "Partitions seen during remote discovery",
			},
			[]string{"export_type"},
		),
		DiscoverySkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "curlens_discovery_skipped_partitions_total",
				Help: "Partition directories skipped because their name failed to parse",
			},
		),

		SyncFilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curlens_sync_files_total",
				Help: "Files handled by cache sync runs",
			},
			[]string{"outcome"},
		),
		SyncBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "curlens_sync_bytes_total",
				Help: "Bytes transferred into the local cache",
			},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "curlens_sync_duration_seconds",
				Help:    "Cache sync run duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),

		ViewsBuiltTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curlens_views_built_total",
				Help: "Materialized views built",
			},
			[]string{"status"},
		),
		ViewDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curlens_view_duration_seconds",
				Help:    "Per-view materialization duration in seconds",
				Buckets: []float64{.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"view"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "curlens_materializer_run_duration_seconds",
				Help:    "Full materializer run duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),

		ClientCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "curlens_client_cache_hits_total",
				Help: "Object-store client cache hits",
			},
		),
		ClientCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "curlens_client_cache_misses_total",
				Help: "Object-store client cache misses",
			},
		),
	}

	registry.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.QueryRows,
		m.DiscoveryPartitionsTotal,
		m.DiscoverySkippedTotal,
		m.SyncFilesTotal,
		m.SyncBytesTotal,
		m.SyncDuration,
		m.ViewsBuiltTotal,
		m.ViewDuration,
		m.RunDuration,
		m.ClientCacheHitsTotal,
		m.ClientCacheMissesTotal,
	)

	return m
}
