package cache

import (
	"sync/atomic"
)

// stats holds the monotonically increasing operation counters.
// All fields are updated atomically; Snapshot reads are not a consistent
// cut across counters, which is fine for monitoring.
type stats struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

// StatsSnapshot is a point-in-time view of cache activity for external
// monitoring, including backing-store usage when the store is reachable.
type StatsSnapshot struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`

	// HitRate is hits / (hits + misses), 0 when no reads have happened
	HitRate float64 `json:"hit_rate"`

	// Available reports whether the backing store is currently reachable
	Available bool `json:"available"`

	// MemoryUsedBytes is the backing store's reported memory usage,
	// 0 when unavailable
	MemoryUsedBytes int64 `json:"memory_used_bytes"`

	// KeyCount is the backing store's total key count, 0 when unavailable
	KeyCount int64 `json:"key_count"`
}

func (s *stats) snapshot() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()

	snap := StatsSnapshot{
		Hits:    hits,
		Misses:  misses,
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
		Errors:  s.errors.Load(),
	}
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}
	return snap
}
