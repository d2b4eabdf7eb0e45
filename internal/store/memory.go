package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/eviction"
)

type bucket = *xsync.MapOf[cachekey.Key, struct{}]

// Memory is an in-memory Store.
//
// Lookups share a read lock and run in parallel. Writers hold the write lock
// so that the primary map and the table index change together.
type Memory struct {
	mu      sync.RWMutex
	entries *xsync.MapOf[cachekey.Key, Entry]
	index   *xsync.MapOf[string, bucket]
	policy  eviction.Policy
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithPolicy sets the eviction policy. The default never evicts.
func WithPolicy(p eviction.Policy) MemoryOption {
	return func(m *Memory) {
		if p != nil {
			m.policy = p
		}
	}
}

// NewMemory creates an empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: xsync.NewMapOf[cachekey.Key, Entry](),
		index:   xsync.NewMapOf[string, bucket](),
		policy:  eviction.Unbounded(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup returns the entry stored under k.
func (m *Memory) Lookup(k cachekey.Key) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries.Load(k)
	if !ok {
		return Entry{}, false
	}
	m.policy.Accessed(k)
	return e.clone(), true
}

// Contains reports whether k is stored.
func (m *Memory) Contains(k cachekey.Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries.Load(k)
	return ok
}

// Insert stores e under e.Key. Table names are normalized with
// NormalizeTables. An entry already stored under the key is replaced without
// counting as an eviction.
func (m *Memory) Insert(e Entry) []Entry {
	e.Tables = NormalizeTables(e.Tables)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries.LoadAndDelete(e.Key); ok {
		m.unindex(old)
		m.policy.Removed(old.Key)
	}

	var evicted []Entry
	for _, k := range m.policy.Victims(m.entries.Size()) {
		victim, ok := m.entries.LoadAndDelete(k)
		if !ok {
			panic(fmt.Sprintf("store: eviction policy chose %s which is not stored", k))
		}
		m.unindex(victim)
		evicted = append(evicted, victim)
	}

	m.entries.Store(e.Key, e)
	for _, table := range e.Tables {
		b, _ := m.index.LoadOrCompute(table, func() bucket {
			return xsync.NewMapOf[cachekey.Key, struct{}]()
		})
		b.Store(e.Key, struct{}{})
	}
	m.policy.Admitted(e.Key)
	return evicted
}

// Delete removes the entry stored under k.
func (m *Memory) Delete(k cachekey.Key) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.LoadAndDelete(k)
	if !ok {
		return Entry{}, false
	}
	m.unindex(e)
	m.policy.Removed(k)
	return e, true
}

// Invalidate removes every entry depending on any of tables. Each removed
// entry appears once in the result, ordered by key.
func (m *Memory) Invalidate(tables ...string) []Entry {
	names := NormalizeTables(tables)
	if len(names) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make(map[cachekey.Key]struct{})
	for _, table := range names {
		b, ok := m.index.Load(table)
		if !ok {
			continue
		}
		b.Range(func(k cachekey.Key, _ struct{}) bool {
			keys[k] = struct{}{}
			return true
		})
	}

	removed := make([]Entry, 0, len(keys))
	for k := range keys {
		e, ok := m.entries.LoadAndDelete(k)
		if !ok {
			panic(fmt.Sprintf("store: index references missing entry %s", k))
		}
		m.unindex(e)
		m.policy.Removed(k)
		removed = append(removed, e)
	}
	slices.SortFunc(removed, func(a, b Entry) int { return a.Key.Compare(b.Key) })
	return removed
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries.Range(func(k cachekey.Key, _ Entry) bool {
		m.policy.Removed(k)
		return true
	})
	m.entries.Clear()
	m.index.Clear()
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	return m.entries.Size()
}

// Tables returns the indexed table names in sorted order.
func (m *Memory) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, m.index.Size())
	m.index.Range(func(table string, _ bucket) bool {
		out = append(out, table)
		return true
	})
	slices.Sort(out)
	return out
}

// Verify checks that every entry is indexed under exactly its tables and that
// every index bucket is non-empty and refers only to stored entries.
func (m *Memory) Verify() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	m.entries.Range(func(k cachekey.Key, e Entry) bool {
		if e.Key != k {
			errs = append(errs, fmt.Errorf("entry stored under %s carries key %s", k, e.Key))
		}
		for _, table := range e.Tables {
			b, ok := m.index.Load(table)
			if !ok {
				errs = append(errs, fmt.Errorf("entry %s: no bucket for table %s", k, table))
				continue
			}
			if _, ok := b.Load(k); !ok {
				errs = append(errs, fmt.Errorf("entry %s: missing from bucket %s", k, table))
			}
		}
		return true
	})
	m.index.Range(func(table string, b bucket) bool {
		if b.Size() == 0 {
			errs = append(errs, fmt.Errorf("bucket %s is empty", table))
		}
		b.Range(func(k cachekey.Key, _ struct{}) bool {
			e, ok := m.entries.Load(k)
			if !ok {
				errs = append(errs, fmt.Errorf("bucket %s: key %s is not stored", table, k))
				return true
			}
			if _, found := slices.BinarySearch(e.Tables, table); !found {
				errs = append(errs, fmt.Errorf("bucket %s: entry %s does not depend on it", table, k))
			}
			return true
		})
		return true
	})
	return errors.Join(errs...)
}

// unindex removes e from every bucket it belongs to, dropping buckets that
// become empty. Callers hold the write lock.
func (m *Memory) unindex(e Entry) {
	for _, table := range e.Tables {
		m.index.Compute(table, func(b bucket, loaded bool) (bucket, bool) {
			if !loaded {
				return nil, true
			}
			b.Delete(e.Key)
			return b, b.Size() == 0
		})
	}
}

// Ensure Memory implements Store interface
var _ Store = (*Memory)(nil)
