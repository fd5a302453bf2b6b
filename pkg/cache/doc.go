// Package cache provides the ephemeral market data cache tier with Redis backend.
//
// The cache shields rate-limited upstream data providers from redundant
// calls with the following features:
//
// - Dynamic per-category TTLs branching on the exchange trading session
// - Envelope staleness re-check independent of the store's own expiry
// - Payload compression above a configurable threshold
// - Pipelined batch reads and writes (MGet/MSet)
// - Pattern-based invalidation for category- and symbol-wide cleanup
// - Fail-open degraded mode with background reconnection
// - Single-flight coalescing of concurrent misses in GetOrFetch
// - Prometheus metrics and an on-demand stats snapshot
//
// # Basic Usage
//
//	c := cache.New(cache.DefaultOptions())
//	defer c.Close()
//
//	key := cache.Key{Category: cache.CategoryQuote, Symbol: "AAPL"}
//
//	quote, err := cache.GetOrFetch(ctx, c, key, func(ctx context.Context) (*Quote, error) {
//		return provider.Quote(ctx, "AAPL")
//	}, "providerX")
//
// # TTL Policy
//
// TTLs are computed per category from the wall clock, not stored as a
// single static number. During the trading session fast-moving categories
// (quotes, order book) expire in seconds; outside the session the same
// categories live an order of magnitude longer. Fundamentals always get a
// long TTL. See TTLPolicy and the TTL* constants.
//
// # Degraded Mode
//
// Every operation consults an atomically-readable connectivity flag first.
// When the store is down, Get reports a miss, Set and Delete report false,
// and a background monitor reconnects with exponential backoff and jitter.
// The cache is never a single point of failure: worst case, every request
// is a guaranteed miss and the caller pays the upstream cost.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - marketdata_cache_hits_total{layer="redis"} - Cache hits
//   - marketdata_cache_misses_total - Cache misses
//   - marketdata_cache_sets_total - Cache writes
//   - marketdata_cache_deletes_total - Cache deletions
//   - marketdata_cache_written_bytes_total{layer="redis"} - Cumulative bytes written
//   - marketdata_cache_errors_total{operation} - Recovered cache errors
//   - marketdata_cache_available - Connectivity flag (1 up, 0 degraded)
//   - marketdata_cache_reconnects_total - Successful reconnections
package cache
