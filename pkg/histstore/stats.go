package histstore

import (
	"sync/atomic"
)

// stats holds the store's monotonically increasing operation counters.
// All fields are updated atomically; snapshot reads are not a consistent
// cut across counters, which is fine for monitoring.
type stats struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// StatsSnapshot is a point-in-time view of partition store activity for
// external monitoring.
type StatsSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`

	// HitRate is hits / (hits + misses), 0 when no reads have happened
	HitRate float64 `json:"hit_rate"`
}

func (s *stats) snapshot() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()

	snap := StatsSnapshot{
		Hits:   hits,
		Misses: misses,
		Sets:   s.sets.Load(),
		Errors: s.errors.Load(),
	}
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}
	return snap
}
