package chaos_test

import (
	"testing"

	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/classifier"
	"github.com/electwix/querycache/internal/normalize"
	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/sqlparse/parser"
	"github.com/electwix/querycache/internal/sqlparse/tokenizer"
	"github.com/electwix/querycache/internal/testing/chaos"
	"github.com/electwix/querycache/internal/writes"
)

var validInputs = []string{
	"SELECT id, name FROM person WHERE id = ?",
	"SELECT p.name, a.city FROM person p JOIN address a ON a.person_id = p.id ORDER BY p.name LIMIT 10",
	"WITH recent AS (SELECT id FROM orders WHERE placed > :since) SELECT id FROM recent",
	"SELECT name FROM person WHERE id IN (SELECT person_id FROM address WHERE city = 'oslo')",
	"SELECT count(*) FROM person GROUP BY name",
	"-- comment\nSELECT /* block */ id FROM t UNION SELECT id FROM u",
	"INSERT INTO person (id, name) VALUES (1, 'test')",
	"UPDATE person SET name = 'x' WHERE id = 1",
	"DELETE FROM address WHERE person_id = 2",
}

func TestCorruptorDeterministic(t *testing.T) {
	a := chaos.NewCorruptor(7).Corpus(validInputs[0], 50)
	b := chaos.NewCorruptor(7).Corpus(validInputs[0], 50)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("corpus[%d] differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestEveryMutationChangesInput(t *testing.T) {
	const sql = "SELECT id, name FROM person WHERE name = 'ann' AND (id = 1)"
	c := chaos.NewCorruptor(1)
	for _, m := range chaos.Mutations() {
		t.Run(m.String(), func(t *testing.T) {
			changed := false
			for range 20 {
				if c.Apply(m, sql) != sql {
					changed = true
					break
				}
			}
			if !changed {
				t.Fatalf("%s never changed the input", m)
			}
		})
	}
}

func TestEmptyInput(t *testing.T) {
	c := chaos.NewCorruptor(3)
	if got := c.Corrupt(""); got == "" {
		t.Fatal("corrupting empty input should produce bytes")
	}
}

// TestTokenizerChaos feeds corrupted statements to the tokenizer and parser.
func TestTokenizerChaos(t *testing.T) {
	c := chaos.NewCorruptor(42)
	for _, valid := range validInputs {
		for _, corrupted := range c.Corpus(valid, 200) {
			_, _ = tokenizer.Scan(corrupted)
			_, _ = parser.Parse(corrupted)
		}
	}
}

// TestClassifierChaos checks that corrupted statements never panic and that
// anything the parser rejects is reported as not cacheable.
func TestClassifierChaos(t *testing.T) {
	c := chaos.NewCorruptor(99)
	keys := cachekey.NewBuilder()
	for _, valid := range validInputs {
		for _, corrupted := range c.Corpus(valid, 200) {
			res := classifier.Classify(corrupted)
			if res.Err != nil && res.Cacheable {
				t.Fatalf("Classify(%q) is cacheable despite error %v", corrupted, res.Err)
			}
			if !res.Cacheable {
				if res.Reason == "" {
					t.Fatalf("Classify(%q) gave no reason", corrupted)
				}
				continue
			}
			if _, err := normalize.Normalize(corrupted); err != nil {
				t.Fatalf("cacheable statement %q failed to normalize: %v", corrupted, err)
			}
			if _, err := keys.Build(query.New(corrupted)); err != nil {
				t.Fatalf("cacheable statement %q has no key: %v", corrupted, err)
			}
		}
	}
}

// TestWritesChaos checks that write-target extraction never panics and
// reports sorted, distinct targets.
func TestWritesChaos(t *testing.T) {
	c := chaos.NewCorruptor(5)
	for _, valid := range validInputs {
		for _, corrupted := range c.Corpus(valid, 200) {
			targets, err := writes.Targets(corrupted)
			if err != nil {
				continue
			}
			for i := 1; i < len(targets); i++ {
				if targets[i-1] >= targets[i] {
					t.Fatalf("Targets(%q) = %v, not sorted and distinct", corrupted, targets)
				}
			}
		}
	}
}
