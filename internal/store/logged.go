package store

import (
	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/logging"
)

// Logged writes a debug record for every mutation of a wrapped Store and for
// evictions and invalidations it reports.
type Logged struct {
	next   Store
	logger logging.Logger
}

// NewLogged wraps next. A nil logger discards output.
func NewLogged(next Store, logger logging.Logger) *Logged {
	return &Logged{next: next, logger: logging.Component(logger, "store")}
}

// Lookup implements Store.
func (s *Logged) Lookup(k cachekey.Key) (Entry, bool) {
	e, ok := s.next.Lookup(k)
	s.logger.Debug("lookup", "key", k.String(), "hit", ok)
	return e, ok
}

// Contains implements Store.
func (s *Logged) Contains(k cachekey.Key) bool { return s.next.Contains(k) }

// Insert implements Store.
func (s *Logged) Insert(e Entry) []Entry {
	evicted := s.next.Insert(e)
	s.logger.Debug("insert", "key", e.Key.String(), "tables", e.Tables, "rows", rowCount(e))
	if len(evicted) > 0 {
		s.logger.Debug("evicted", "count", len(evicted), "keys", keysOf(evicted))
	}
	return evicted
}

// Delete implements Store.
func (s *Logged) Delete(k cachekey.Key) (Entry, bool) {
	e, ok := s.next.Delete(k)
	s.logger.Debug("delete", "key", k.String(), "found", ok)
	return e, ok
}

// Invalidate implements Store.
func (s *Logged) Invalidate(tables ...string) []Entry {
	removed := s.next.Invalidate(tables...)
	s.logger.Debug("invalidate", "tables", tables, "removed", len(removed))
	return removed
}

// Clear implements Store.
func (s *Logged) Clear() {
	n := s.next.Len()
	s.next.Clear()
	s.logger.Info("cleared", "entries", n)
}

// Len implements Store.
func (s *Logged) Len() int { return s.next.Len() }

func rowCount(e Entry) int {
	if e.Table == nil {
		return 0
	}
	return e.Table.Len()
}

// Ensure Logged implements Store interface
var _ Store = (*Logged)(nil)
