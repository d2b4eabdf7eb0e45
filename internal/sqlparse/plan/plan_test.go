package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/querycache/internal/sqlparse/parser"
)

func build(t *testing.T, sql string, opts ...Option) Node {
	t.Helper()
	q, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	n, err := Build(q, opts...)
	if err != nil {
		t.Fatalf("build %q: %v", sql, err)
	}
	return n
}

func TestExplain(t *testing.T) {
	n := build(t, "SELECT p.id, p.name FROM person p JOIN pet ON pet.owner = p.id WHERE p.id = :id ORDER BY p.name LIMIT 10",
		WithCatalog(Catalog{"PERSON": {"ID", "NAME"}}))
	want := `Limit limit=10
  Sort [P.NAME]
    Project [P.ID, P.NAME]
      Filter [P.ID = :id]
        Join INNER [PET.OWNER = P.ID]
          Scan PERSON AS P (ID, NAME)
          Scan PET`
	if diff := cmp.Diff(want, Explain(n)); diff != "" {
		t.Fatalf("explain mismatch (-want +got):\n%s", diff)
	}
}

func TestExplainWith(t *testing.T) {
	n := build(t, "WITH x AS (SELECT a FROM t) SELECT a FROM x, (SELECT b FROM u) AS d")
	want := `With
  Definition X
    Project [A]
      Scan T
  Project [A]
    Join CROSS
      CTEScan X
      SubqueryAlias D
        Project [B]
          Scan U`
	if diff := cmp.Diff(want, Explain(n)); diff != "" {
		t.Fatalf("explain mismatch (-want +got):\n%s", diff)
	}
}

func TestOperatorDetection(t *testing.T) {
	cases := []struct {
		name      string
		sql       string
		aggregate bool
		window    bool
	}{
		{name: "plain", sql: "SELECT id, name FROM t WHERE id = 1"},
		{name: "count", sql: "SELECT COUNT(*) FROM t", aggregate: true},
		{name: "group by", sql: "SELECT id FROM t GROUP BY id", aggregate: true},
		{name: "having without group", sql: "SELECT 1 FROM t HAVING 1 = 1", aggregate: true},
		{name: "distinct", sql: "SELECT DISTINCT id FROM t", aggregate: true},
		{name: "aggregate in order by", sql: "SELECT id FROM t ORDER BY MAX(id)", aggregate: true},
		{name: "filter clause", sql: "SELECT my_agg(x) FILTER (WHERE x > 0) FROM t", aggregate: true},
		{name: "aggregate hidden in derived table", sql: "SELECT c FROM (SELECT COUNT(*) AS c FROM t) AS v", aggregate: true},
		{name: "aggregate in where subquery", sql: "SELECT id FROM t WHERE id = (SELECT MAX(id) FROM t)", aggregate: true},
		{name: "aggregate in cte", sql: "WITH s AS (SELECT SUM(x) AS total FROM t) SELECT total FROM s", aggregate: true},
		{name: "aggregate in union branch", sql: "SELECT id FROM t UNION SELECT COUNT(*) FROM u", aggregate: true},
		{name: "aggregate in join condition", sql: "SELECT t.id FROM t JOIN u ON u.id = (SELECT MIN(id) FROM v)", aggregate: true},
		{name: "window", sql: "SELECT ROW_NUMBER() OVER (ORDER BY id) FROM t", window: true},
		{name: "windowed aggregate is a window", sql: "SELECT SUM(x) OVER (PARTITION BY y) FROM t", window: true},
		{name: "window in subquery", sql: "SELECT id FROM (SELECT id, RANK() OVER w AS r FROM t WINDOW w AS (ORDER BY id)) AS q", window: true},
		{name: "scalar function", sql: "SELECT UPPER(name), COALESCE(a, b) FROM t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := build(t, tc.sql)
			var aggregate, window bool
			Walk(n, func(node Node) bool {
				switch node.(type) {
				case *Aggregate:
					aggregate = true
				case *Window:
					window = true
				}
				return true
			})
			if aggregate != tc.aggregate || window != tc.window {
				t.Fatalf("aggregate=%v window=%v, want aggregate=%v window=%v\n%s",
					aggregate, window, tc.aggregate, tc.window, Explain(n))
			}
		})
	}
}

func TestRecursiveCTEScansItself(t *testing.T) {
	n := build(t, "WITH RECURSIVE r (n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM r WHERE n < 3) SELECT n FROM r")
	var cteScans, scans int
	Walk(n, func(node Node) bool {
		switch node.(type) {
		case *CTEScan:
			cteScans++
		case *Scan:
			scans++
		}
		return true
	})
	if cteScans != 2 || scans != 0 {
		t.Fatalf("cteScans=%d scans=%d\n%s", cteScans, scans, Explain(n))
	}
}

func TestNonRecursiveCTEDoesNotShadowItsOwnBody(t *testing.T) {
	n := build(t, "WITH t AS (SELECT a FROM t) SELECT a FROM t")
	var tables []string
	Walk(n, func(node Node) bool {
		if scan, ok := node.(*Scan); ok {
			tables = append(tables, scan.Table)
		}
		return true
	})
	if diff := cmp.Diff([]string{"T"}, tables); diff != "" {
		t.Fatalf("scanned tables mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	n := build(t, "SELECT a FROM t WHERE a = 1")
	visited := 0
	Walk(n, func(node Node) bool {
		visited++
		_, isProject := node.(*Project)
		return !isProject
	})
	if visited != 1 {
		t.Fatalf("visited %d nodes, want 1", visited)
	}
}

func TestBuildNil(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error for nil query")
	}
}
