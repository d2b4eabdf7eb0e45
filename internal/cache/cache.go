package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/classifier"
	"github.com/electwix/querycache/internal/eviction"
	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/resultset"
	"github.com/electwix/querycache/internal/stats"
	"github.com/electwix/querycache/internal/store"
)

// ErrNotCacheable is returned when a statement's result may not be cached.
var ErrNotCacheable = errors.New("cache: query is not cacheable")

// Loader runs q against the database. Besides the result it may report
// tables the result depends on that do not appear in the statement, such as
// tables read by functions.
type Loader func(ctx context.Context, q query.Query) (*resultset.Table, []string, error)

// Publisher announces invalidated tables to other caches. An empty list
// means every table.
type Publisher interface {
	Publish(ctx context.Context, tables []string) error
}

// QueryCache is a table-invalidated cache of query results. It is safe for
// concurrent use.
type QueryCache struct {
	classifier *classifier.Classifier
	keys       *cachekey.Builder
	memory     *store.Memory
	store      store.Store
	stats      *stats.Statistics
	publisher  Publisher
	logger     logging.Logger
	group      singleflight.Group

	// mu orders invalidations against inserts of loaded results; writes
	// counts invalidations so that a load racing with one is not cached.
	mu     sync.RWMutex
	writes atomic.Uint64
}

type options struct {
	views     map[string][]string
	seed      uint32
	policy    eviction.Policy
	kind      string
	capacity  int
	stats     *stats.Statistics
	publisher Publisher
	logger    logging.Logger
}

// Option configures a QueryCache.
type Option func(*options)

// WithViews declares views and the base tables they read.
func WithViews(views map[string][]string) Option {
	return func(o *options) {
		o.views = views
	}
}

// WithSeed overrides the key hash seed.
func WithSeed(seed uint32) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithPolicy sets the eviction policy.
func WithPolicy(p eviction.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithEviction selects an eviction policy by name, as accepted by
// eviction.New. It is ignored when WithPolicy is also given.
func WithEviction(kind string, capacity int) Option {
	return func(o *options) {
		o.kind = kind
		o.capacity = capacity
	}
}

// WithStatistics makes the cache count into s instead of its own counters.
func WithStatistics(s *stats.Statistics) Option {
	return func(o *options) {
		o.stats = s
	}
}

// WithPublisher announces every invalidation through p.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a QueryCache.
func New(opts ...Option) (*QueryCache, error) {
	o := options{seed: cachekey.DefaultSeed}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	policy := o.policy
	if policy == nil {
		p, err := eviction.New(o.kind, o.capacity)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		policy = p
	}
	if o.stats == nil {
		o.stats = stats.New()
	}

	memory := store.NewMemory(store.WithPolicy(policy))
	c := &QueryCache{
		classifier: classifier.New(classifier.WithViews(o.views), classifier.WithLogger(logger)),
		keys:       cachekey.NewBuilder(cachekey.WithSeed(o.seed)),
		memory:     memory,
		store:      store.NewLogged(store.NewInstrumented(memory, o.stats), logger),
		stats:      o.stats,
		publisher:  o.publisher,
		logger:     logging.Component(logger, "cache"),
	}
	return c, nil
}

// Classify reports whether the result of sql may be cached.
func (c *QueryCache) Classify(sql string) classifier.Result {
	return c.classifier.Classify(sql)
}

// Key returns the cache key of q.
func (c *QueryCache) Key(q query.Query) (cachekey.Key, error) {
	return c.keys.Build(q)
}

// Lookup returns the cached result of q.
func (c *QueryCache) Lookup(q query.Query) (*resultset.Table, bool, error) {
	k, err := c.keys.Build(q)
	if err != nil {
		return nil, false, err
	}
	e, ok := c.store.Lookup(k)
	if !ok {
		return nil, false, nil
	}
	return e.Table, true, nil
}

// Contains reports whether a result for q is cached.
func (c *QueryCache) Contains(q query.Query) (bool, error) {
	k, err := c.keys.Build(q)
	if err != nil {
		return false, err
	}
	return c.store.Contains(k), nil
}

// Insert caches table as the result of q. The entry depends on the tables the
// statement reads plus tables. Statements that are not cacheable fail with an
// error wrapping ErrNotCacheable.
func (c *QueryCache) Insert(q query.Query, table *resultset.Table, tables ...string) error {
	res := c.classifier.Classify(q.SQL())
	if !res.Cacheable {
		return notCacheable(res)
	}
	k, err := c.keys.Build(q)
	if err != nil {
		return err
	}
	c.insert(k, table, res.Tables, tables)
	return nil
}

func (c *QueryCache) insert(k cachekey.Key, table *resultset.Table, read, extra []string) {
	deps := append(slices.Clone(read), extra...)
	c.store.Insert(store.Entry{Key: k, Table: table, Tables: deps})
}

// insertUnlessWritten inserts like insert unless an invalidation happened
// since writes read before.
func (c *QueryCache) insertUnlessWritten(before uint64, k cachekey.Key, table *resultset.Table, read, extra []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.writes.Load() != before {
		return false
	}
	c.insert(k, table, read, extra)
	return true
}

// Delete drops the cached result of q.
func (c *QueryCache) Delete(q query.Query) (bool, error) {
	k, err := c.keys.Build(q)
	if err != nil {
		return false, err
	}
	_, ok := c.store.Delete(k)
	return ok, nil
}

// Invalidate drops every result that depends on any of tables and announces
// the tables through the Publisher, if any. It returns the number of entries
// removed locally; a publishing error does not undo the local invalidation.
func (c *QueryCache) Invalidate(ctx context.Context, tables ...string) (int, error) {
	if len(tables) == 0 {
		return 0, nil
	}
	n := c.invalidate(tables)
	return n, c.publish(ctx, store.NormalizeTables(tables))
}

// ApplyRemote applies an invalidation announced by another process without
// announcing it again. No tables clears the cache.
func (c *QueryCache) ApplyRemote(tables []string) int {
	if len(tables) == 0 {
		return c.clear()
	}
	return c.invalidate(tables)
}

func (c *QueryCache) invalidate(tables []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes.Add(1)
	return len(c.store.Invalidate(tables...))
}

// Clear drops every cached result in this process.
func (c *QueryCache) Clear() {
	c.clear()
}

func (c *QueryCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes.Add(1)
	n := c.store.Len()
	c.store.Clear()
	return n
}

func (c *QueryCache) publish(ctx context.Context, tables []string) error {
	if c.publisher == nil {
		return nil
	}
	if err := c.publisher.Publish(ctx, tables); err != nil {
		c.logger.Warn("publishing invalidation failed", "tables", tables, "error", err)
		return fmt.Errorf("cache: publish invalidation: %w", err)
	}
	return nil
}

// Len returns the number of cached results.
func (c *QueryCache) Len() int { return c.store.Len() }

// Tables returns the tables that cached results depend on.
func (c *QueryCache) Tables() []string { return c.memory.Tables() }

// Verify checks the consistency of the table index.
func (c *QueryCache) Verify() error { return c.memory.Verify() }

// Statistics returns a snapshot of the counters.
func (c *QueryCache) Statistics() stats.Snapshot { return c.stats.Snapshot() }

// ResetStatistics zeroes the counters and returns their previous values.
func (c *QueryCache) ResetStatistics() stats.Snapshot { return c.stats.Reset() }

func notCacheable(res classifier.Result) error {
	switch {
	case res.Err != nil:
		return fmt.Errorf("%w: %s: %w", ErrNotCacheable, res.Reason, res.Err)
	case res.Detail != "":
		return fmt.Errorf("%w: %s: %s", ErrNotCacheable, res.Reason, res.Detail)
	}
	return fmt.Errorf("%w: %s", ErrNotCacheable, res.Reason)
}

// fingerprint identifies a statement in logs without printing it.
func fingerprint(sql string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(sql))
}
