package cache

import (
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found, was stale,
	// or the store was unavailable. Callers fall through to their fetch path.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is corrupted or was written
	// with an incompatible schema version.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrStoreUnavailable indicates the Redis backend is unreachable.
	// Returned by Ping for readiness probes; the read/write paths degrade
	// to miss/no-op instead of surfacing it.
	ErrStoreUnavailable = errors.New("cache store unavailable")
)
