package format

import (
	"testing"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/parser"
)

func TestQueryCanonicalForm(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "simple",
			sql:  "select id,   name\n from person p where p.id=:id",
			want: "SELECT ID, NAME FROM PERSON AS P WHERE P.ID = :id",
		},
		{
			name: "quoted identifiers",
			sql:  `SELECT "Name", "PERSON".x FROM "Person"`,
			want: `SELECT "Name", PERSON.X FROM "Person"`,
		},
		{
			name: "other quote styles",
			sql:  "SELECT [a b] FROM `t`",
			want: `SELECT "a b" FROM "t"`,
		},
		{
			name: "reserved word stays quoted",
			sql:  `SELECT "SELECT" FROM t`,
			want: `SELECT "SELECT" FROM T`,
		},
		{
			name: "joins and ordering",
			sql:  "select a from t left outer join u on t.id=u.id inner join v using (id) order by a desc nulls first limit 10 offset 5",
			want: "SELECT A FROM T LEFT JOIN U ON T.ID = U.ID JOIN V USING (ID) ORDER BY A DESC NULLS FIRST LIMIT 10 OFFSET 5",
		},
		{
			name: "nested join keeps parentheses",
			sql:  "select a from a join (b join c on b.id = c.id) on a.id = b.id",
			want: "SELECT A FROM A JOIN (B JOIN C ON B.ID = C.ID) ON A.ID = B.ID",
		},
		{
			name: "cast forms",
			sql:  "select x::int, cast(y as varchar(10)) from t",
			want: "SELECT CAST(X AS INT), CAST(Y AS VARCHAR(10)) FROM T",
		},
		{
			name: "fetch",
			sql:  "SELECT a FROM t FETCH NEXT 1 ROW ONLY",
			want: "SELECT A FROM T FETCH FIRST 1 ROWS ONLY",
		},
		{
			name: "mysql limit",
			sql:  "SELECT a FROM t LIMIT 5, 10",
			want: "SELECT A FROM T LIMIT 10 OFFSET 5",
		},
		{
			name: "double negation",
			sql:  "SELECT - -1",
			want: "SELECT - -1",
		},
		{
			name: "window and filter",
			sql:  "SELECT count(distinct a) filter (where b > 0) over (partition by c order by d) FROM t",
			want: "SELECT COUNT(DISTINCT A) FILTER (WHERE B > 0) OVER (PARTITION BY C ORDER BY D) FROM T",
		},
		{
			name: "with",
			sql:  "with x (a) as (select a from t) select a from x",
			want: "WITH X (A) AS (SELECT A FROM T) SELECT A FROM X",
		},
		{
			name: "predicates",
			sql:  "SELECT CASE WHEN a IS NOT NULL THEN 'y' END FROM t WHERE b NOT BETWEEN 1 AND 2 AND c NOT IN (1,2) AND d ilike 'x'",
			want: "SELECT CASE WHEN A IS NOT NULL THEN 'y' END FROM T WHERE B NOT BETWEEN 1 AND 2 AND C NOT IN (1, 2) AND D ILIKE 'x'",
		},
		{
			name: "subqueries",
			sql:  "select a from t where exists (select 1 from u where u.a = t.a) and a = any (select b from v)",
			want: "SELECT A FROM T WHERE EXISTS (SELECT 1 FROM U WHERE U.A = T.A) AND A = ANY (SELECT B FROM V)",
		},
		{
			name: "set operations",
			sql:  "select a from t union all (select a from u) except select a from v",
			want: "SELECT A FROM T UNION ALL (SELECT A FROM U) EXCEPT SELECT A FROM V",
		},
		{
			name: "literals",
			sql:  "select x'ab', date '2024-01-01', interval '2' day, 'it''s', true, null",
			want: "SELECT X'AB', DATE '2024-01-01', INTERVAL '2' DAY, 'it''s', TRUE, NULL",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := parser.Parse(tc.sql)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			got := Query(q)
			if got != tc.want {
				t.Fatalf("Query() = %q\nwant      %q", got, tc.want)
			}
			again, err := parser.Parse(got)
			if err != nil {
				t.Fatalf("canonical form does not parse: %v", err)
			}
			if second := Query(again); second != got {
				t.Fatalf("printing is not stable:\nfirst  %q\nsecond %q", got, second)
			}
		})
	}
}

func TestIdent(t *testing.T) {
	cases := []struct {
		id   ast.Ident
		want string
	}{
		{ast.Ident{Name: "PERSON"}, "PERSON"},
		{ast.Ident{Name: "PERSON", Quoted: true}, "PERSON"},
		{ast.Ident{Name: "Person", Quoted: true}, `"Person"`},
		{ast.Ident{Name: "FROM", Quoted: true}, `"FROM"`},
		{ast.Ident{Name: "1A", Quoted: true}, `"1A"`},
		{ast.Ident{Name: `A"B`, Quoted: true}, `"A""B"`},
	}
	for _, tc := range cases {
		if got := Ident(tc.id); got != tc.want {
			t.Errorf("Ident(%+v) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestClauseHelpers(t *testing.T) {
	q, err := parser.Parse("SELECT a, b AS c FROM t ORDER BY a, b DESC LIMIT 3")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := q.Body.(*ast.Select)
	if got := SelectItems(sel.Items); got != "A, B AS C" {
		t.Fatalf("SelectItems() = %q", got)
	}
	if got := OrderBy(q.OrderBy); got != "A, B DESC" {
		t.Fatalf("OrderBy() = %q", got)
	}
	if got := Pagination(q); got != "LIMIT 3" {
		t.Fatalf("Pagination() = %q", got)
	}
	if got := Expr(sel.Items[0].Expr); got != "A" {
		t.Fatalf("Expr() = %q", got)
	}
	if got := Pagination(&ast.Query{}); got != "" {
		t.Fatalf("Pagination() of empty query = %q", got)
	}
}
