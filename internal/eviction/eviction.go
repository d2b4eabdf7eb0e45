// Package eviction decides which cache entries to drop when a store is full.
//
// A store calls Victims with its occupancy before every insertion, then
// reports the keys it admits, reads and removes so bounded policies can keep
// their ordering in step with the store.
package eviction

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/electwix/querycache/internal/cachekey"
)

// Policy chooses eviction victims. Implementations are safe for concurrent
// use.
type Policy interface {
	// Victims returns the keys to evict before inserting into a store that
	// holds size entries. Returned keys are forgotten by the policy.
	Victims(size int) []cachekey.Key
	// Admitted records a newly inserted key.
	Admitted(k cachekey.Key)
	// Accessed records a read of k.
	Accessed(k cachekey.Key)
	// Removed forgets k after a delete, invalidation or clear.
	Removed(k cachekey.Key)
}

// Policy kinds accepted by New.
const (
	KindNone    = "none"
	KindMaxSize = "maxsize"
	KindLRU     = "lru"
)

// New builds the policy named by kind. Bounded kinds require a positive
// capacity.
func New(kind string, capacity int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNone, "unbounded":
		return Unbounded(), nil
	case KindMaxSize, "fifo":
		if capacity < 1 {
			return nil, fmt.Errorf("eviction: %s policy requires a positive capacity, got %d", KindMaxSize, capacity)
		}
		return MaxSize(capacity), nil
	case KindLRU:
		if capacity < 1 {
			return nil, fmt.Errorf("eviction: %s policy requires a positive capacity, got %d", KindLRU, capacity)
		}
		return LRU(capacity), nil
	}
	return nil, fmt.Errorf("eviction: unknown policy %q", kind)
}

type unbounded struct{}

// Unbounded returns a policy that never evicts.
func Unbounded() Policy { return unbounded{} }

func (unbounded) Victims(int) []cachekey.Key { return nil }
func (unbounded) Admitted(cachekey.Key)      {}
func (unbounded) Accessed(cachekey.Key)      {}
func (unbounded) Removed(cachekey.Key)       {}
func (unbounded) String() string             { return KindNone }

// Bounded keeps at most Capacity entries, evicting the oldest first. With
// recency tracking, reads refresh an entry's age.
type Bounded struct {
	capacity int
	recency  bool
	order    *lru.Cache[cachekey.Key, struct{}]
}

// MaxSize returns a policy that evicts in insertion order once n entries are
// held. It panics if n < 1.
func MaxSize(n int) *Bounded { return newBounded(n, false) }

// LRU returns a policy that evicts the least recently used entry once n
// entries are held. It panics if n < 1.
func LRU(n int) *Bounded { return newBounded(n, true) }

func newBounded(n int, recency bool) *Bounded {
	if n < 1 {
		panic(fmt.Sprintf("eviction: capacity must be positive, got %d", n))
	}
	order, err := lru.New[cachekey.Key, struct{}](n)
	if err != nil {
		panic(fmt.Sprintf("eviction: %v", err))
	}
	return &Bounded{capacity: n, recency: recency, order: order}
}

// Capacity returns the maximum number of entries.
func (p *Bounded) Capacity() int { return p.capacity }

// Victims pops the oldest keys until an insertion would fit.
func (p *Bounded) Victims(size int) []cachekey.Key {
	var out []cachekey.Key
	for size-len(out) >= p.capacity {
		k, _, ok := p.order.RemoveOldest()
		if !ok {
			break
		}
		out = append(out, k)
	}
	return out
}

// Admitted records k as the newest entry.
func (p *Bounded) Admitted(k cachekey.Key) { p.order.Add(k, struct{}{}) }

// Accessed refreshes k when the policy tracks recency.
func (p *Bounded) Accessed(k cachekey.Key) {
	if p.recency {
		p.order.Get(k)
	}
}

// Removed forgets k.
func (p *Bounded) Removed(k cachekey.Key) { p.order.Remove(k) }

// Len returns the number of tracked keys.
func (p *Bounded) Len() int { return p.order.Len() }

func (p *Bounded) String() string {
	if p.recency {
		return fmt.Sprintf("%s(%d)", KindLRU, p.capacity)
	}
	return fmt.Sprintf("%s(%d)", KindMaxSize, p.capacity)
}
