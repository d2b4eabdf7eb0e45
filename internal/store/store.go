// Package store keeps cached query results indexed by the tables they read.
//
// Every entry is reachable through its key and through each table in its
// dependency set, so a write to a table can drop every dependent entry in one
// call. Memory is the in-process implementation; Instrumented and Logged
// decorate any Store with statistics and debug logging.
package store

import (
	"slices"
	"strings"

	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/resultset"
)

// Entry is a cached result together with the tables it depends on.
type Entry struct {
	Key    cachekey.Key
	Table  *resultset.Table
	Tables []string
}

// Store holds entries by key and by table name. All operations are total:
// they never fail for a valid key or table name.
type Store interface {
	// Lookup returns the entry stored under k.
	Lookup(k cachekey.Key) (Entry, bool)
	// Contains reports whether k is stored.
	Contains(k cachekey.Key) bool
	// Insert stores e, replacing any entry with the same key, and returns
	// the entries evicted to make room.
	Insert(e Entry) []Entry
	// Delete removes the entry stored under k.
	Delete(k cachekey.Key) (Entry, bool)
	// Invalidate removes every entry that depends on any of tables and
	// returns them ordered by key.
	Invalidate(tables ...string) []Entry
	// Clear removes every entry.
	Clear()
	// Len returns the number of entries.
	Len() int
}

// NormalizeTable maps a table reference to its index name: the last
// dot-separated part with quotes removed, upper-cased. "public"."Person",
// public.person and PERSON all share one name.
func NormalizeTable(name string) string {
	name = strings.TrimSpace(name)
	start := 0
	var quote byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '.':
			start = i + 1
		}
	}
	part := strings.TrimSpace(name[start:])
	part = strings.Trim(part, "\"`[]")
	return strings.ToUpper(part)
}

// NormalizeTables normalizes, sorts and deduplicates names, dropping empty
// ones.
func NormalizeTables(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = NormalizeTable(n); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (e Entry) clone() Entry {
	e.Tables = slices.Clone(e.Tables)
	return e
}

func keysOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key.String()
	}
	return out
}
