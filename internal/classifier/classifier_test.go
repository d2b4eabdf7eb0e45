package classifier

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/sqlparse/parser"
	"github.com/electwix/querycache/internal/sqlparse/plan"
	"github.com/electwix/querycache/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		sql       string
		cacheable bool
		reason    string
		detail    string
		tables    []string
	}{
		{
			name:      "wildcard",
			sql:       "SELECT * FROM t",
			reason:    ReasonWildcard,
			detail:    "*",
			tables:    []string{"T"},
		},
		{
			name:      "explicit columns",
			sql:       "SELECT id,name FROM t WHERE id=1",
			cacheable: true,
			tables:    []string{"T"},
		},
		{
			name:   "count",
			sql:    "SELECT COUNT(*) FROM t",
			reason: ReasonAggregate,
			tables: []string{"T"},
		},
		{
			name:   "group by",
			sql:    "SELECT id FROM t GROUP BY id",
			reason: ReasonAggregate,
			tables: []string{"T"},
		},
		{
			name:   "qualified wildcard",
			sql:    "SELECT p.* FROM person p",
			reason: ReasonWildcard,
			detail: "P.*",
			tables: []string{"PERSON"},
		},
		{
			name:      "join through aliases",
			sql:       "SELECT p.id, pet.name FROM person p JOIN pet ON pet.owner_id = p.id WHERE p.id = :id",
			cacheable: true,
			tables:    []string{"PERSON", "PET"},
		},
		{
			name:      "schema qualified table",
			sql:       "SELECT p.id FROM public.person AS p",
			cacheable: true,
			tables:    []string{"PERSON"},
		},
		{
			name:      "table name as qualifier",
			sql:       "SELECT person.id FROM person",
			cacheable: true,
			tables:    []string{"PERSON"},
		},
		{
			name:      "cte is not a base table",
			sql:       "WITH recent AS (SELECT id FROM orders WHERE placed > :since) SELECT r.id FROM recent r",
			cacheable: true,
			tables:    []string{"ORDERS"},
		},
		{
			name:      "recursive cte reads no tables",
			sql:       "WITH RECURSIVE r (n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM r WHERE n < 3) SELECT n FROM r",
			cacheable: true,
		},
		{
			name:      "cte shadowing a table still reads the table in its body",
			sql:       "WITH t AS (SELECT a FROM t WHERE a > 0) SELECT a FROM t",
			cacheable: true,
			tables:    []string{"T"},
		},
		{
			name:      "derived table alias",
			sql:       "SELECT d.id FROM (SELECT id FROM t) AS d",
			cacheable: true,
			tables:    []string{"T"},
		},
		{
			name:   "aggregate hidden in derived table",
			sql:    "SELECT c FROM (SELECT COUNT(*) AS c FROM t) AS v",
			reason: ReasonAggregate,
			tables: []string{"T"},
		},
		{
			name:   "wildcard hidden in subquery",
			sql:    "SELECT id FROM t WHERE id IN (SELECT * FROM u)",
			reason: ReasonWildcard,
			detail: "*",
			tables: []string{"T", "U"},
		},
		{
			name:      "correlated exists",
			sql:       "SELECT a.id FROM a WHERE EXISTS (SELECT b.id FROM b WHERE b.a_id = a.id)",
			cacheable: true,
			tables:    []string{"A", "B"},
		},
		{
			name:      "correlated scalar subquery in projection",
			sql:       "SELECT t.id, (SELECT u.name FROM u WHERE u.id = t.uid) AS n FROM t",
			cacheable: true,
			tables:    []string{"T", "U"},
		},
		{
			name:   "unknown qualifier",
			sql:    "SELECT x.id FROM t",
			reason: ReasonUnresolved,
			detail: "X.ID",
			tables: []string{"T"},
		},
		{
			name:   "derived table cannot see its siblings",
			sql:    "SELECT a.id FROM a, (SELECT b.x FROM b WHERE b.y = a.id) AS d",
			reason: ReasonUnresolved,
			detail: "A.ID",
			tables: []string{"A", "B"},
		},
		{
			name:      "lateral derived table sees its siblings",
			sql:       "SELECT a.id, d.x FROM a, LATERAL (SELECT b.x FROM b WHERE b.y = a.id) AS d",
			cacheable: true,
			tables:    []string{"A", "B"},
		},
		{
			name:      "union",
			sql:       "SELECT id FROM a UNION SELECT id FROM b ORDER BY id",
			cacheable: true,
			tables:    []string{"A", "B"},
		},
		{
			name:      "constant select",
			sql:       "SELECT 1",
			cacheable: true,
		},
		{
			name:   "distinct",
			sql:    "SELECT DISTINCT id FROM t",
			reason: ReasonAggregate,
			detail: "Aggregate distinct",
			tables: []string{"T"},
		},
		{
			name:   "window",
			sql:    "SELECT id, ROW_NUMBER() OVER (ORDER BY id) AS rn FROM t",
			reason: ReasonWindow,
			detail: "Window [ROW_NUMBER]",
			tables: []string{"T"},
		},
		{
			name:   "having",
			sql:    "SELECT id FROM t HAVING id > 1",
			reason: ReasonAggregate,
			tables: []string{"T"},
		},
		{
			name:   "now",
			sql:    "SELECT id FROM t WHERE created < NOW()",
			reason: ReasonNondeterministic,
			detail: "NOW",
			tables: []string{"T"},
		},
		{
			name:   "current timestamp keyword",
			sql:    "SELECT id FROM t WHERE created < CURRENT_TIMESTAMP",
			reason: ReasonNondeterministic,
			detail: "CURRENT_TIMESTAMP",
			tables: []string{"T"},
		},
		{
			name:   "random ordering",
			sql:    "SELECT id FROM t ORDER BY RANDOM()",
			reason: ReasonNondeterministic,
			detail: "RANDOM",
			tables: []string{"T"},
		},
		{
			name:   "sqlite date now",
			sql:    "SELECT id FROM t WHERE day = date('now')",
			reason: ReasonNondeterministic,
			detail: "DATE",
			tables: []string{"T"},
		},
		{
			name:   "strftime without time value",
			sql:    "SELECT id FROM t WHERE year = strftime('%Y')",
			reason: ReasonNondeterministic,
			detail: "STRFTIME",
			tables: []string{"T"},
		},
		{
			name:      "date of a column",
			sql:       "SELECT date(created) AS day FROM t",
			cacheable: true,
			tables:    []string{"T"},
		},
		{
			name:   "typed now literal",
			sql:    "SELECT id FROM t WHERE ts > TIMESTAMP 'now'",
			reason: ReasonNondeterministic,
			detail: "TIMESTAMP 'now'",
			tables: []string{"T"},
		},
		{
			name:      "quoted column named like a function",
			sql:       `SELECT "CURRENT_DATE" FROM t`,
			cacheable: true,
			tables:    []string{"T"},
		},
		{
			name:   "syntax error",
			sql:    "SELECT id FROM",
			reason: ReasonParse,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Classify(tc.sql)
			if res.Cacheable != tc.cacheable {
				t.Fatalf("cacheable = %v, want %v (reason %q, detail %q)", res.Cacheable, tc.cacheable, res.Reason, res.Detail)
			}
			if res.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", res.Reason, tc.reason)
			}
			if tc.detail != "" && res.Detail != tc.detail {
				t.Fatalf("detail = %q, want %q", res.Detail, tc.detail)
			}
			if len(res.Tables) != 0 || len(tc.tables) != 0 {
				if diff := cmp.Diff(tc.tables, res.Tables); diff != "" {
					t.Fatalf("tables mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestClassifyColumns(t *testing.T) {
	cases := []struct {
		sql     string
		columns []string
	}{
		{
			sql:     "SELECT id,name FROM t WHERE id=1",
			columns: []string{"T.ID", "T.NAME"},
		},
		{
			sql:     "SELECT p.id, pet.name FROM person p JOIN pet ON pet.owner_id = p.id",
			columns: []string{"PERSON.ID", "PET.NAME", "PET.OWNER_ID"},
		},
		{
			sql:     "WITH recent AS (SELECT id FROM orders WHERE placed > :since) SELECT r.id FROM recent r",
			columns: []string{"ID", "ORDERS.ID", "ORDERS.PLACED"},
		},
		{
			sql:     "SELECT a.x, b.y FROM a JOIN b USING (k) WHERE z = 1",
			columns: []string{"A.X", "B.Y", "K", "Z"},
		},
		{
			sql:     "SELECT UPPER(name) AS n FROM t ORDER BY n",
			columns: []string{"T.NAME"},
		},
	}
	for _, tc := range cases {
		res := Classify(tc.sql)
		if diff := cmp.Diff(tc.columns, res.Columns); diff != "" {
			t.Fatalf("%s: columns mismatch (-want +got):\n%s", tc.sql, diff)
		}
	}
}

func TestClassifyBuildsPlanOverReferencedColumns(t *testing.T) {
	res := Classify("SELECT id,name FROM t WHERE id=1")
	if res.Statement == nil || res.Plan == nil {
		t.Fatalf("expected statement and plan, got %+v", res)
	}
	want := `Project [ID, NAME]
  Filter [ID = 1]
    Scan T (ID, NAME)`
	if diff := cmp.Diff(want, plan.Explain(res.Plan)); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyParseErrors(t *testing.T) {
	res := Classify("UPDATE t SET a = 1")
	if res.Cacheable || res.Reason != ReasonParse {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !errors.Is(res.Err, parser.ErrNotSelect) {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	res = Classify("SELECT 'open")
	var perr *parser.Error
	if !errors.As(res.Err, &perr) {
		t.Fatalf("expected *parser.Error, got %T (%v)", res.Err, res.Err)
	}
	if res.Statement != nil || res.Plan != nil {
		t.Fatalf("expected no statement or plan on parse failure")
	}
}

func TestWithViews(t *testing.T) {
	c := New(WithViews(map[string][]string{"active_users": {"users", "sessions"}}))
	res := c.Classify("SELECT u.id FROM active_users u WHERE u.id = :id")
	if !res.Cacheable {
		t.Fatalf("expected cacheable, got reason %q", res.Reason)
	}
	want := []string{"ACTIVE_USERS", "SESSIONS", "USERS"}
	if diff := cmp.Diff(want, res.Tables); diff != "" {
		t.Fatalf("tables mismatch (-want +got):\n%s", diff)
	}

	plain := Classify("SELECT u.id FROM active_users u")
	if diff := cmp.Diff([]string{"ACTIVE_USERS"}, plain.Tables); diff != "" {
		t.Fatalf("views leaked into default classifier (-want +got):\n%s", diff)
	}
}

func TestClassifyTablesMatchStoreNames(t *testing.T) {
	tests := []struct {
		sql    string
		tables []string
	}{
		{sql: `SELECT t.id FROM "my.table" t`, tables: []string{"TABLE"}},
		{sql: `SELECT p.id FROM public.person p`, tables: []string{"PERSON"}},
		{sql: `SELECT p.id FROM "public"."Person" p`, tables: []string{"PERSON"}},
	}
	for _, tt := range tests {
		res := Classify(tt.sql)
		if !res.Cacheable {
			t.Fatalf("Classify(%q) not cacheable: %s", tt.sql, res.Reason)
		}
		if diff := cmp.Diff(tt.tables, res.Tables); diff != "" {
			t.Errorf("Classify(%q) tables mismatch (-want +got):\n%s", tt.sql, diff)
		}
		if diff := cmp.Diff(store.NormalizeTables(res.Tables), res.Tables); diff != "" {
			t.Errorf("Classify(%q) tables differ from store names (-store +got):\n%s", tt.sql, diff)
		}
	}

	c := New(WithViews(map[string][]string{"reporting.active_users": {"public.users"}}))
	res := c.Classify("SELECT u.id FROM active_users u")
	if diff := cmp.Diff([]string{"ACTIVE_USERS", "USERS"}, res.Tables); diff != "" {
		t.Fatalf("qualified view tables mismatch (-want +got):\n%s", diff)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.FromOptions(logging.Options{Verbose: true, Writer: &buf})
	c := New(WithLogger(logger))
	c.Classify("SELECT COUNT(*) FROM t")
	out := buf.String()
	if !strings.Contains(out, "query not cacheable") || !strings.Contains(out, "reason=aggregation") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

// Every cacheable query must be free of wildcards and of aggregation or
// windowing anywhere in its plan.
func TestCacheableImpliesNoWildcardAggregateOrWindow(t *testing.T) {
	queries := []string{
		"SELECT a FROM t",
		"SELECT a FROM t WHERE b IN (SELECT MAX(b) FROM u)",
		"SELECT a FROM t WHERE EXISTS (SELECT * FROM u WHERE u.x = t.a)",
		"SELECT a FROM (SELECT a, RANK() OVER (ORDER BY a) AS r FROM t) AS q",
		"WITH s AS (SELECT SUM(x) AS total FROM t) SELECT total FROM s",
		"SELECT a FROM t UNION ALL SELECT COUNT(*) FROM u",
		"SELECT t.a FROM t JOIN u ON u.id = (SELECT MIN(id) FROM v)",
		"SELECT a FROM t ORDER BY MAX(a)",
		"SELECT CASE WHEN a > 1 THEN b ELSE c END AS d FROM t",
	}
	for _, sql := range queries {
		res := Classify(sql)
		if !res.Cacheable {
			continue
		}
		if strings.Contains(sql, "*") && !strings.Contains(sql, "COUNT(*)") {
			t.Fatalf("%s: cacheable despite a wildcard", sql)
		}
		plan.Walk(res.Plan, func(n plan.Node) bool {
			switch n.(type) {
			case *plan.Aggregate, *plan.Window:
				t.Fatalf("%s: cacheable despite %s", sql, n.Describe())
			}
			return true
		})
	}
}
