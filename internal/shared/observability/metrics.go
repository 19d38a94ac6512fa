package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtsresolve_fetch_total",
		Help: "Total number of registry lookups by kind (content, types) and outcome (ok, empty, error).",
	}, []string{"kind", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dtsresolve_fetch_seconds",
		Help:    "Time spent on a single registry round trip.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtsresolve_cache_hits_total",
		Help: "Total number of lookups answered from a cache layer (memo, durable).",
	}, []string{"layer"})

	CrawlDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtsresolve_crawl_seconds",
		Help:    "Time spent crawling one declaration entry point.",
		Buckets: prometheus.DefBuckets,
	})

	CrawlFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_crawl_files_total",
		Help: "Total number of declaration files added to a dependency map.",
	})

	EdgeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtsresolve_edge_failures_total",
		Help: "Total number of failed references by policy outcome (tolerated, aborted).",
	}, []string{"policy"})

	PackagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtsresolve_packages_total",
		Help: "Total number of packages resolved by outcome (ok, failed, cached).",
	}, []string{"outcome"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtsresolve_resolve_seconds",
		Help:    "Time spent on one top-level resolution request.",
		Buckets: prometheus.DefBuckets,
	})

	WriteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtsresolve_write_queue_depth",
		Help: "Current number of in-memory cache writes waiting to be persisted.",
	})

	WriteSpoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtsresolve_write_spool_depth",
		Help: "Current number of persistent spool rows waiting to be applied.",
	})

	WriteQueueEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_enqueued_total",
		Help: "Total number of cache writes accepted into the in-memory queue.",
	})

	WriteQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_dropped_total",
		Help: "Total number of cache writes dropped from in-memory enqueue due to backpressure.",
	})

	WriteQueueSpilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_spilled_total",
		Help: "Total number of cache writes spooled to persistent storage.",
	})

	WriteQueueRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_retry_total",
		Help: "Total number of persistent spool retries.",
	})

	WriteQueueApplyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_apply_errors_total",
		Help: "Total number of write batch apply errors.",
	})

	WriteQueueProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_write_queue_processed_total",
		Help: "Total number of cache writes successfully applied.",
	})

	WriteQueueFlushLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtsresolve_write_queue_flush_seconds",
		Help:    "Latency for applying a write batch.",
		Buckets: prometheus.DefBuckets,
	})

	ConfigReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_config_reloads_total",
		Help: "Total number of configuration reloads applied by the watcher.",
	})
	ConfigReloadErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtsresolve_config_reload_errors_total",
		Help: "Total number of configuration reloads rejected because the file failed to load.",
	})
)
