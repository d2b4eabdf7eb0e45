// Package cache caches the results of SELECT statements and drops them when
// the tables they read are written.
//
// A QueryCache classifies each statement, derives its key from the normalized
// text and parameters, and stores the result indexed by every base table the
// statement reads. Writes reported through Written or Invalidate purge the
// dependent entries, locally and, with a Publisher, in other processes.
//
// Usage:
//
//	qc, err := cache.New(cache.WithEviction("lru", 10000))
//	if err != nil {
//	    return err
//	}
//	table, err := qc.Fetch(ctx, query.New("SELECT id, name FROM person WHERE id = ?",
//	    query.Positional(query.Int(1))...), loader)
//	...
//	_, err = qc.Written(ctx, "UPDATE person SET name = 'x' WHERE id = 1")
package cache
