// Package stats holds the counters a cache reports about itself.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Counter names used by Snapshot.Map.
const (
	Hits          = "hits"
	Misses        = "misses"
	Lookups       = "lookups"
	Invalidations = "invalidations"
	Evictions     = "evictions"
)

// Statistics is a set of monotonically increasing counters. Increments run
// concurrently with each other; Snapshot and Reset observe or zero all
// counters at once. The zero value is ready to use.
type Statistics struct {
	mu            sync.RWMutex
	hits          atomic.Uint64
	misses        atomic.Uint64
	lookups       atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64
}

// New returns zeroed statistics.
func New() *Statistics { return &Statistics{} }

func (s *Statistics) add(c *atomic.Uint64, n uint64) {
	if n == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.Add(n)
}

// Lookup records one lookup and whether it hit.
func (s *Statistics) Lookup(hit bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.lookups.Add(1)
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

// Invalidated records n removed entries.
func (s *Statistics) Invalidated(n int) { s.add(&s.invalidations, uint64(max(n, 0))) }

// Evicted records n evicted entries.
func (s *Statistics) Evicted(n int) { s.add(&s.evictions, uint64(max(n, 0))) }

// Snapshot returns a consistent copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Reset zeroes every counter and returns the values it discarded.
func (s *Statistics) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Hits:          s.hits.Swap(0),
		Misses:        s.misses.Swap(0),
		Lookups:       s.lookups.Swap(0),
		Invalidations: s.invalidations.Swap(0),
		Evictions:     s.evictions.Swap(0),
	}
	return snap
}

func (s *Statistics) load() Snapshot {
	return Snapshot{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Lookups:       s.lookups.Load(),
		Invalidations: s.invalidations.Load(),
		Evictions:     s.evictions.Load(),
	}
}

// Snapshot is a read-only copy of Statistics.
type Snapshot struct {
	Hits          uint64
	Misses        uint64
	Lookups       uint64
	Invalidations uint64
	Evictions     uint64
}

// HitRatio returns hits divided by lookups, or 0 before the first lookup.
func (s Snapshot) HitRatio() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// Map returns the counters keyed by name.
func (s Snapshot) Map() map[string]uint64 {
	return map[string]uint64{
		Hits:          s.Hits,
		Misses:        s.Misses,
		Lookups:       s.Lookups,
		Invalidations: s.Invalidations,
		Evictions:     s.Evictions,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("hits=%d misses=%d lookups=%d invalidations=%d evictions=%d hit_ratio=%.2f",
		s.Hits, s.Misses, s.Lookups, s.Invalidations, s.Evictions, s.HitRatio())
}
