package classifier

import "testing"

func FuzzClassify(f *testing.F) {
	seeds := []string{
		"SELECT id, name FROM person WHERE id = :id",
		"SELECT * FROM t",
		"WITH x AS (SELECT a FROM t) SELECT x.a FROM x JOIN u ON u.a = x.a",
		"SELECT a FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.id = t.id) ORDER BY a LIMIT 5",
		"SELECT SUM(x) OVER (PARTITION BY y) FROM t",
		"SELECT",
		"((((",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, sql string) {
		res := Classify(sql)
		if res.Cacheable {
			if res.Reason != "" || res.Err != nil {
				t.Fatalf("cacheable result carries a reason: %+v", res)
			}
			if res.Plan == nil || res.Statement == nil {
				t.Fatalf("cacheable result without statement or plan")
			}
		} else if res.Reason == "" {
			t.Fatalf("uncacheable result without a reason")
		}
	})
}
