package writes

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTargets(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"insert", "INSERT INTO person (id, name) VALUES (1, 'a')", []string{"PERSON"}},
		{"insert lowercase", "insert into Person values (1)", []string{"PERSON"}},
		{"insert select", "INSERT INTO archive SELECT * FROM person WHERE id < 10", []string{"ARCHIVE"}},
		{"insert or replace", "INSERT OR REPLACE INTO kv(k, v) VALUES ('a', 'b')", []string{"KV"}},
		{"insert ignore", "INSERT IGNORE INTO kv VALUES (1)", []string{"KV"}},
		{"replace", "REPLACE INTO kv VALUES (1)", []string{"KV"}},
		{"upsert", "UPSERT INTO kv VALUES (1)", []string{"KV"}},
		{"qualified", `UPDATE public."Person" SET name = 'x' WHERE id = :id`, []string{"PERSON"}},
		{"mysql quoting", "UPDATE `db`.`orders` SET total = 0", []string{"ORDERS"}},
		{"bracket quoting", "DELETE FROM [dbo].[Orders] WHERE id = ?", []string{"ORDERS"}},
		{"update only", "UPDATE ONLY person SET a = 1", []string{"PERSON"}},
		{"delete", "DELETE FROM person WHERE id = $1", []string{"PERSON"}},
		{"delete without from", "DELETE person WHERE id = 1", []string{"PERSON"}},
		{"merge", "MERGE INTO target t USING source s ON t.id = s.id WHEN MATCHED THEN DELETE", []string{"TARGET"}},
		{"truncate many", "TRUNCATE TABLE a, ONLY b, c CASCADE", []string{"A", "B", "C"}},
		{"create table", "CREATE TEMPORARY TABLE IF NOT EXISTS scratch (id INT)", []string{"SCRATCH"}},
		{"create index", "CREATE UNIQUE INDEX CONCURRENTLY idx_person_name ON person (name)", []string{"PERSON"}},
		{"drop index on", "DROP INDEX idx ON person", []string{"PERSON"}},
		{"drop index", "DROP INDEX IF EXISTS idx", nil},
		{"drop tables", "DROP TABLE IF EXISTS a, b", []string{"A", "B"}},
		{"alter", "ALTER TABLE person ADD COLUMN age INT", []string{"PERSON"}},
		{"with insert", "WITH src AS (SELECT id FROM staging) INSERT INTO person SELECT id FROM src", []string{"PERSON"}},
		{"recursive with", "WITH RECURSIVE r(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM r WHERE n < 5) DELETE FROM t WHERE id IN (SELECT n FROM r)", []string{"T"}},
		{"data modifying cte", "WITH moved AS (DELETE FROM queue WHERE id < 5 RETURNING *) INSERT INTO done SELECT * FROM moved", []string{"DONE", "QUEUE"}},
		{"select", "SELECT * FROM person", nil},
		{"with select", "WITH x AS (SELECT 1) SELECT * FROM x", nil},
		{"transaction", "BEGIN; UPDATE a SET x = 1; COMMIT;", []string{"A"}},
		{"script", "DELETE FROM b; -- clean\nINSERT INTO a VALUES (';'); /* done */", []string{"A", "B"}},
		{"duplicates", "UPDATE a SET x = 1; DELETE FROM A", []string{"A"}},
		{"empty", "", nil},
		{"separators only", " ; ; ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Targets(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Targets(%q) mismatch (-want +got):\n%s", tt.sql, diff)
			}
		})
	}
}

func TestTargetsUnrecognized(t *testing.T) {
	for _, sql := range []string{
		"GRANT SELECT ON person TO bob",
		"CREATE VIEW v AS SELECT 1",
		"DELETE FROM WHERE id = 1",
		"UPDATE SET a = 1",
		"WITH x AS (SELECT 1)",
		"WITH bad AS (DELETE FROM) SELECT 1",
	} {
		t.Run(sql, func(t *testing.T) {
			_, err := Targets(sql)
			if !errors.Is(err, ErrUnrecognized) {
				t.Fatalf("Targets(%q) error = %v, want ErrUnrecognized", sql, err)
			}
		})
	}
}

func TestTargetsTerminatorOptional(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"UPDATE person SET id = 2", []string{"PERSON"}},
		{"DELETE FROM person WHERE id = 1", []string{"PERSON"}},
		{"INSERT INTO person (id, name) VALUES (3, 'cy')", []string{"PERSON"}},
		{"MERGE INTO target t USING source s ON t.id = s.id WHEN MATCHED THEN UPDATE SET v = s.v", []string{"TARGET"}},
		{"TRUNCATE TABLE audit_log RESTART IDENTITY", []string{"AUDIT_LOG"}},
		{"ALTER TABLE person RENAME COLUMN name TO full_name", []string{"PERSON"}},
		{"WITH ids AS (SELECT id FROM stale) DELETE FROM person WHERE id IN (SELECT id FROM ids)", []string{"PERSON"}},
		{"SELECT id, name FROM person WHERE id = 1 ORDER BY name", nil},
	}
	for _, tt := range tests {
		for _, sql := range []string{tt.sql, tt.sql + ";", tt.sql + " ;\n"} {
			got, err := Targets(sql)
			if err != nil {
				t.Fatalf("Targets(%q) unexpected error: %v", sql, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Targets(%q) mismatch (-want +got):\n%s", sql, diff)
			}
		}
	}
}

func TestIsWrite(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT 1", false},
		{"SELECT id, name FROM person WHERE id = :id", false},
		{"WITH x AS (SELECT id FROM a) SELECT id FROM x WHERE id > 3", false},
		{"DELETE FROM person WHERE id = 1", true},
		{"UPDATE a SET b = 1", true},
		{"GRANT ALL ON a TO b", true},
		{"DROP INDEX i", false},
	}
	for _, tt := range tests {
		if got := IsWrite(tt.sql); got != tt.want {
			t.Errorf("IsWrite(%q) = %v, want %v", tt.sql, got, tt.want)
		}
	}
}

func FuzzTargets(f *testing.F) {
	for _, seed := range []string{
		"INSERT INTO a VALUES (1)",
		"WITH x AS (DELETE FROM y RETURNING *) SELECT * FROM x",
		"UPDATE \"q\"\"x\" SET a = 'it''s'",
		"((((",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, sql string) {
		targets, err := Targets(sql)
		if err != nil && !errors.Is(err, ErrUnrecognized) {
			t.Fatalf("unexpected error type: %v", err)
		}
		for _, tbl := range targets {
			if tbl == "" {
				t.Fatalf("empty target for %q", sql)
			}
		}
	})
}
