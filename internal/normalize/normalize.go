// Package normalize rewrites SELECT statements into a canonical text form.
//
// Two statements that read the same rows through the same tables normalize to
// the same SQL, whatever their projection, ordering or pagination. Those
// clauses are returned separately as the presentation so callers can still
// tell such statements apart.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/format"
	"github.com/electwix/querycache/internal/sqlparse/parser"
)

// Result is the canonical form of a statement.
type Result struct {
	// SQL is the statement with outer projections replaced by * and ordering
	// and pagination removed.
	SQL string
	// Presentation holds the canonical text of the removed clauses.
	Presentation string
}

// NotSelectError reports input that is not a SELECT statement.
type NotSelectError struct {
	SQL string
	Err error
}

func (e *NotSelectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: not a SELECT statement: %v", e.Err)
	}
	return "normalize: not a SELECT statement"
}

func (e *NotSelectError) Unwrap() error {
	return e.Err
}

// Normalize returns the canonical form of sql. Input that parses as something
// other than a SELECT yields a *NotSelectError; other syntax errors are
// returned wrapped.
func Normalize(sql string) (Result, error) {
	q, err := parser.Parse(sql)
	if err != nil {
		if errors.Is(err, parser.ErrNotSelect) || errors.Is(err, parser.ErrEmptySQL) {
			return Result{}, &NotSelectError{SQL: sql, Err: err}
		}
		return Result{}, fmt.Errorf("normalize: %w", err)
	}
	return Query(q), nil
}

// Query normalizes a parsed statement. q is modified in place.
func Query(q *ast.Query) Result {
	var presentation []string
	for _, sel := range outerSelects(q.Body) {
		presentation = append(presentation, "SELECT "+format.SelectItems(sel.Items))
		sel.Items = []ast.SelectItem{{Star: &ast.Star{}}}
	}
	if len(q.OrderBy) > 0 {
		presentation = append(presentation, "ORDER BY "+format.OrderBy(q.OrderBy))
		q.OrderBy = nil
	}
	if page := format.Pagination(q); page != "" {
		presentation = append(presentation, page)
		q.Limit, q.Offset, q.Fetch = nil, nil, nil
	}
	return Result{
		SQL:          CollapseWhitespace(format.Query(q)),
		Presentation: strings.Join(presentation, "; "),
	}
}

// outerSelects returns the SELECT blocks that produce the rows of body.
func outerSelects(body ast.SetExpr) []*ast.Select {
	switch n := body.(type) {
	case *ast.Select:
		return []*ast.Select{n}
	case *ast.SetOp:
		return append(outerSelects(n.Left), outerSelects(n.Right)...)
	case *ast.ParenQuery:
		return outerSelects(n.Query.Body)
	}
	return nil
}

// CollapseWhitespace replaces every run of whitespace outside quoted strings
// and quoted identifiers with a single space and trims both ends.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		closing, quoted := closingQuote(c)
		if !quoted {
			b.WriteByte(c)
			continue
		}
		end := quotedEnd(s, i, closing)
		b.WriteString(s[i:end])
		i = end - 1
	}
	return b.String()
}

func closingQuote(c byte) (byte, bool) {
	switch c {
	case '\'', '"', '`':
		return c, true
	case '[':
		return ']', true
	}
	return 0, false
}

// quotedEnd returns the index just past the quoted run starting at start. A
// doubled closing character is an escape. Unterminated runs extend to the end.
func quotedEnd(s string, start int, closing byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != closing {
			continue
		}
		if i+1 < len(s) && s[i+1] == closing && closing != ']' {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}
