package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/electwix/querycache/internal/cache"
	"github.com/electwix/querycache/internal/normalize"
	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/resultset"
	"github.com/electwix/querycache/internal/sqlparse/plan"
	"github.com/electwix/querycache/internal/writes"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// printReport describes how the cache treats q.
func printReport(w io.Writer, qc *cache.QueryCache, q query.Query) {
	res := qc.Classify(q.SQL())
	_, _ = fmt.Fprintf(w, "cacheable: %s\n", yesNo(res.Cacheable))
	if !res.Cacheable {
		reason := res.Reason
		if res.Detail != "" {
			reason += " (" + res.Detail + ")"
		}
		_, _ = fmt.Fprintf(w, "reason: %s\n", reason)
		if res.Err != nil {
			_, _ = fmt.Fprintf(w, "error: %v\n", res.Err)
		}
	}
	_, _ = fmt.Fprintf(w, "tables: %s\n", list(res.Tables))
	_, _ = fmt.Fprintf(w, "columns: %s\n", list(res.Columns))

	if res.Statement == nil {
		if targets, err := writes.Targets(q.SQL()); err == nil && len(targets) > 0 {
			_, _ = fmt.Fprintf(w, "writes: %s\n", list(targets))
		} else if errors.Is(err, writes.ErrUnrecognized) {
			_, _ = fmt.Fprintln(w, "writes: unrecognized, clears the cache")
		}
	}

	norm, err := normalize.Normalize(q.SQL())
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "normalized: %s\n", norm.SQL)
	if norm.Presentation != "" {
		_, _ = fmt.Fprintf(w, "presentation: %s\n", norm.Presentation)
	}
	if k, err := qc.Key(q); err == nil {
		_, _ = fmt.Fprintf(w, "key: %s\n", k)
	}
	if res.Plan != nil {
		_, _ = fmt.Fprintln(w, "plan:")
		for _, line := range strings.Split(strings.TrimRight(plan.Explain(res.Plan), "\n"), "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// printTable writes t as aligned columns.
func printTable(w io.Writer, t *resultset.Table) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	columns := t.Columns()
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	_, _ = fmt.Fprintln(tw, strings.Join(names, "\t"))
	for i := range t.Len() {
		cells := make([]string, len(columns))
		for j, col := range columns {
			v, _ := t.Value(i, col.Name)
			cells[j] = v.String()
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", t.Len())
}
