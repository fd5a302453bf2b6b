package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_cache_hits_total",
			Help: "Total number of market data cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_cache_misses_total",
			Help: "Total number of market data cache misses",
		},
	)

	// CacheSets tracks successful cache writes
	CacheSets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_cache_sets_total",
			Help: "Total number of market data cache writes",
		},
	)

	// CacheDeletes tracks cache deletions (explicit and pattern-based)
	CacheDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_cache_deletes_total",
			Help: "Total number of market data cache deletions",
		},
	)

	// CacheWrittenBytes tracks cumulative bytes written to the cache by layer
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_cache_written_bytes_total",
			Help: "Cumulative bytes written to the market data cache",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "mget", "mset", "invalidate"
	)

	// CacheAvailable reports degraded mode: 1 when the store is reachable, 0 when down
	CacheAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketdata_cache_available",
			Help: "Whether the cache backing store is reachable (1) or degraded (0)",
		},
	)

	// CacheReconnects tracks successful reconnections after degraded mode
	CacheReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_cache_reconnects_total",
			Help: "Total number of successful reconnections to the cache store",
		},
	)
)
