// Package writes finds the tables a data-modifying statement changes.
//
// Only the target of each statement is recognized: INSERT, REPLACE and UPSERT
// INTO, UPDATE, DELETE FROM, MERGE INTO, TRUNCATE, CREATE, DROP and ALTER
// TABLE, and CREATE or DROP INDEX ... ON. Read-only statements yield no
// targets. A leading WITH clause is skipped, except that data-modifying
// common table expressions contribute their own targets.
package writes

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnrecognized reports a statement whose targets cannot be determined.
// Callers that keep derived state should treat every table as modified.
var ErrUnrecognized = errors.New("writes: unrecognized statement")

// keywords that can follow a write verb but never name its target.
var keywords = map[string]struct{}{
	"WHERE": {}, "SET": {}, "VALUES": {}, "SELECT": {}, "USING": {}, "FROM": {},
	"AS": {}, "ON": {}, "DEFAULT": {}, "RETURNING": {}, "INTO": {}, "TABLE": {},
}

// Targets returns the sorted, deduplicated, upper-cased and unqualified names
// of the tables that sql modifies. sql may hold several statements separated
// by semicolons.
func Targets(sql string) ([]string, error) {
	parsed, err := scriptParser.ParseString("", sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	var out []string
	for _, stmt := range parsed.Statements {
		names, err := stmt.targets()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			rel := n.relation()
			if _, ok := keywords[rel]; ok || rel == "" {
				return nil, fmt.Errorf("%w: %q is not a table name", ErrUnrecognized, strings.Join(n.Parts, "."))
			}
			out = append(out, rel)
		}
		if stmt.With != nil {
			nested, err := stmt.With.targets()
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// IsWrite reports whether sql modifies at least one table, treating
// unrecognized statements as writes.
func IsWrite(sql string) bool {
	targets, err := Targets(sql)
	return err != nil || len(targets) > 0
}

func (s *statement) targets() ([]*name, error) {
	switch {
	case s.Insert != nil:
		return []*name{s.Insert}, nil
	case s.Update != nil:
		return []*name{s.Update}, nil
	case s.Delete != nil:
		return []*name{s.Delete}, nil
	case s.Merge != nil:
		return []*name{s.Merge}, nil
	case len(s.Truncate) > 0:
		return s.Truncate, nil
	case s.CreateTable != nil:
		return []*name{s.CreateTable}, nil
	case s.CreateIndex != nil:
		return []*name{s.CreateIndex}, nil
	case s.DropIndex != nil:
		if s.DropIndex.Table == nil {
			return nil, nil
		}
		return []*name{s.DropIndex.Table}, nil
	case len(s.DropTable) > 0:
		return s.DropTable, nil
	case s.AlterTable != nil:
		return []*name{s.AlterTable}, nil
	case s.Read != "":
		return nil, nil
	}
	return nil, ErrUnrecognized
}

// targets collects the tables modified by data-modifying CTE bodies.
func (w *with) targets() ([]string, error) {
	var out []string
	for _, c := range w.CTEs {
		switch c.Body.leading() {
		case "INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE", "UPSERT":
			nested, err := Targets(c.Body.text())
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}
