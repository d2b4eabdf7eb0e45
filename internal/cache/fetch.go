package cache

import (
	"context"
	"errors"

	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/resultset"
	"github.com/electwix/querycache/internal/writes"
)

// Fetch returns the result of q, loading it with load on a miss. Concurrent
// misses for the same key share one load, which keeps running when a waiting
// caller's context is done. Statements that are not cacheable are passed to
// load on every call. A result loaded while the cache was being invalidated is
// returned but not cached.
func (c *QueryCache) Fetch(ctx context.Context, q query.Query, load Loader) (*resultset.Table, error) {
	res := c.classifier.Classify(q.SQL())
	if !res.Cacheable {
		c.logger.Debug("bypassing cache", "query", fingerprint(q.SQL()), "reason", res.Reason, "detail", res.Detail)
		table, _, err := load(ctx, q)
		return table, err
	}
	k, err := c.keys.Build(q)
	if err != nil {
		return nil, err
	}
	if e, ok := c.store.Lookup(k); ok {
		return e.Table, nil
	}

	// The shared load outlives any single caller; each caller stops waiting
	// when its own context is done.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.String(), func() (any, error) {
		before := c.writes.Load()
		table, extra, err := load(loadCtx, q)
		if err != nil {
			return nil, err
		}
		if !c.insertUnlessWritten(before, k, table, res.Tables, extra) {
			c.logger.Debug("not caching result loaded during invalidation", "query", fingerprint(q.SQL()), "key", k.String())
		}
		return table, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			c.logger.Debug("shared load", "query", fingerprint(q.SQL()), "key", k.String())
		}
		return r.Val.(*resultset.Table), nil
	}
}

// Written reports that sql was executed and drops every result that depends
// on a table it modifies. When the modified tables cannot be determined the
// whole cache is cleared. It returns the number of entries removed locally.
func (c *QueryCache) Written(ctx context.Context, sql string) (int, error) {
	tables, err := writes.Targets(sql)
	if err != nil {
		if !errors.Is(err, writes.ErrUnrecognized) {
			return 0, err
		}
		c.logger.Info("clearing cache after unrecognized statement", "query", fingerprint(sql), "error", err)
		n := c.clear()
		return n, c.publish(ctx, nil)
	}
	if len(tables) == 0 {
		return 0, nil
	}
	c.logger.Debug("statement modified tables", "query", fingerprint(sql), "tables", tables)
	return c.Invalidate(ctx, tables...)
}
