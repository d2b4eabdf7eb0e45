package store

import (
	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/stats"
)

// Instrumented counts the traffic of a wrapped Store into caller-owned
// Statistics. It returns exactly what the wrapped Store returns.
//
// Lookup and Contains count one lookup and a hit or miss. Delete counts one
// invalidation per call, Invalidate one per removed entry, and Insert one
// eviction per evicted entry.
type Instrumented struct {
	next  Store
	stats *stats.Statistics
}

// NewInstrumented wraps next. A nil s allocates fresh Statistics.
func NewInstrumented(next Store, s *stats.Statistics) *Instrumented {
	if s == nil {
		s = stats.New()
	}
	return &Instrumented{next: next, stats: s}
}

// Statistics returns the counters being updated.
func (s *Instrumented) Statistics() *stats.Statistics { return s.stats }

// Lookup implements Store.
func (s *Instrumented) Lookup(k cachekey.Key) (Entry, bool) {
	e, ok := s.next.Lookup(k)
	s.stats.Lookup(ok)
	return e, ok
}

// Contains implements Store.
func (s *Instrumented) Contains(k cachekey.Key) bool {
	ok := s.next.Contains(k)
	s.stats.Lookup(ok)
	return ok
}

// Insert implements Store.
func (s *Instrumented) Insert(e Entry) []Entry {
	evicted := s.next.Insert(e)
	s.stats.Evicted(len(evicted))
	return evicted
}

// Delete implements Store.
func (s *Instrumented) Delete(k cachekey.Key) (Entry, bool) {
	e, ok := s.next.Delete(k)
	s.stats.Invalidated(1)
	return e, ok
}

// Invalidate implements Store.
func (s *Instrumented) Invalidate(tables ...string) []Entry {
	removed := s.next.Invalidate(tables...)
	s.stats.Invalidated(len(removed))
	return removed
}

// Clear implements Store.
func (s *Instrumented) Clear() { s.next.Clear() }

// Len implements Store.
func (s *Instrumented) Len() int { return s.next.Len() }

// Ensure Instrumented implements Store interface
var _ Store = (*Instrumented)(nil)
