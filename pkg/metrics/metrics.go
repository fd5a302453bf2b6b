// Package metrics provides the centralized Prometheus metrics registry for
// the market data cache. Metrics are defined in their owning packages to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - marketdata_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - marketdata_cache_misses_total (Counter): Cache misses
//   - marketdata_cache_sets_total (Counter): Cache writes
//   - marketdata_cache_deletes_total (Counter): Cache deletions
//   - marketdata_cache_written_bytes_total{layer="redis"} (Counter): Cumulative bytes written
//   - marketdata_cache_errors_total{operation} (Counter): Recovered cache errors
//   - marketdata_cache_available (Gauge): Connectivity flag (1 up, 0 degraded)
//   - marketdata_cache_reconnects_total (Counter): Successful reconnections
//
// Historical Store Metrics (pkg/histstore):
//   - marketdata_histstore_hits_total (Counter): Partition reads served from disk
//   - marketdata_histstore_misses_total (Counter): Reads with no partition on disk
//   - marketdata_histstore_sets_total (Counter): Partitions persisted
//   - marketdata_histstore_errors_total (Counter): Corrupt partitions and failed writes
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(marketdata_cache_hits_total[5m])) /
//   (sum(rate(marketdata_cache_hits_total[5m])) + sum(rate(marketdata_cache_misses_total[5m])))
//
//   # Degraded Mode
//   marketdata_cache_available == 0
//
//   # Cache Error Rate
//   rate(marketdata_cache_errors_total[5m])
