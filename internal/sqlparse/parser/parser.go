// Package parser builds syntax trees for SELECT statements.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/tokenizer"
)

// maxDepth bounds expression and subquery nesting.
const maxDepth = 256

var (
	// ErrEmptySQL reports input without any statement.
	ErrEmptySQL = errors.New("query contains no SQL")
	// ErrNotSelect reports a statement that is not a query, including a WITH
	// clause followed by a data-modifying statement.
	ErrNotSelect = errors.New("statement is not a SELECT")
)

// Error describes a positional parse failure.
type Error struct {
	Line    int
	Column  int
	Message string
	Err     error
}

// Error returns the printable representation of the parse error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Unwrap exposes the sentinel or tokenizer error behind e.
func (e *Error) Unwrap() error {
	return e.Err
}

// Parse parses a single query statement. A trailing semicolon is allowed.
func Parse(sql string) (*ast.Query, error) {
	tokens, err := tokenizer.Scan(sql)
	if err != nil {
		var tokErr *tokenizer.Error
		if errors.As(err, &tokErr) {
			return nil, &Error{Line: tokErr.Line, Column: tokErr.Column, Message: tokErr.Message, Err: err}
		}
		return nil, err
	}
	if len(tokens) == 1 || (len(tokens) == 2 && tokens[0].Is(";")) {
		return nil, &Error{Line: 1, Column: 1, Message: ErrEmptySQL.Error(), Err: ErrEmptySQL}
	}
	p := &parser{tokens: tokens}
	return p.parseStatement()
}

type parser struct {
	tokens []tokenizer.Token
	pos    int
	depth  int
}

func (p *parser) parseStatement() (*ast.Query, error) {
	tok := p.current()
	if !startsQuery(tok) {
		return nil, p.notSelect(tok)
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	p.acceptSymbol(";")
	if !p.isEOF() {
		return nil, p.errorf(p.current(), "unexpected %s after end of query", describe(p.current()))
	}
	return q, nil
}

func (p *parser) parseQuery() (*ast.Query, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	q := &ast.Query{}
	if p.acceptKeyword("WITH") {
		with, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		q.With = with
		if !startsQuery(p.current()) {
			return nil, p.notSelect(p.current())
		}
	}
	body, err := p.parseSetExpr()
	if err != nil {
		return nil, err
	}
	q.Body = body

	if p.matchKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		items, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = items
	}
	if err := p.parsePagination(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) parseWith() (*ast.With, error) {
	with := &ast.With{}
	if p.current().IsWord("RECURSIVE") && p.peek(1).Kind == tokenizer.KindIdentifier {
		p.advance()
		with.Recursive = true
	}
	for {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		cte := ast.CTE{Name: name}
		if p.matchSymbol("(") {
			cols, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			cte.Columns = cols
		}
		if err := p.expectKeyword("AS"); err != nil {
			return nil, err
		}
		if p.current().IsWord("MATERIALIZED") {
			p.advance()
		} else if p.matchKeyword("NOT") && p.peek(1).IsWord("MATERIALIZED") {
			p.advance()
			p.advance()
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		if !startsQuery(p.current()) {
			return nil, p.notSelect(p.current())
		}
		body, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		cte.Query = body
		with.CTEs = append(with.CTEs, cte)
		if !p.acceptSymbol(",") {
			return with, nil
		}
	}
}

func (p *parser) parsePagination(q *ast.Query) error {
	for {
		switch {
		case p.matchKeyword("LIMIT") && q.Limit == nil:
			p.advance()
			if p.acceptKeyword("ALL") {
				continue
			}
			limit, err := p.parseExpr()
			if err != nil {
				return err
			}
			if p.acceptSymbol(",") {
				// LIMIT offset, count
				count, err := p.parseExpr()
				if err != nil {
					return err
				}
				q.Offset = limit
				limit = count
			}
			q.Limit = limit
		case p.matchKeyword("OFFSET") && q.Offset == nil:
			p.advance()
			offset, err := p.parseExpr()
			if err != nil {
				return err
			}
			q.Offset = offset
			if p.current().IsWord("ROW") || p.current().IsWord("ROWS") {
				p.advance()
			}
		case p.matchKeyword("FETCH") && q.Fetch == nil:
			p.advance()
			fetch, err := p.parseFetch()
			if err != nil {
				return err
			}
			q.Fetch = fetch
		default:
			return nil
		}
	}
}

func (p *parser) parseFetch() (*ast.Fetch, error) {
	if !p.current().IsWord("FIRST") && !p.current().IsWord("NEXT") {
		return nil, p.expected("FIRST or NEXT")
	}
	p.advance()
	fetch := &ast.Fetch{}
	if !p.current().IsWord("ROW") && !p.current().IsWord("ROWS") {
		count, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		fetch.Count = count
		if p.current().IsWord("PERCENT") {
			p.advance()
			fetch.Percent = true
		}
	}
	if !p.current().IsWord("ROW") && !p.current().IsWord("ROWS") {
		return nil, p.expected("ROWS")
	}
	p.advance()
	switch {
	case p.current().IsWord("ONLY"):
		p.advance()
	case p.matchKeyword("WITH") && p.peek(1).IsWord("TIES"):
		p.advance()
		p.advance()
		fetch.WithTies = true
	default:
		return nil, p.expected("ONLY or WITH TIES")
	}
	return fetch, nil
}

// parseSetExpr handles UNION and EXCEPT; INTERSECT binds tighter.
func (p *parser) parseSetExpr() (ast.SetExpr, error) {
	left, err := p.parseIntersect()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("UNION") || p.matchKeyword("EXCEPT") || p.matchKeyword("MINUS") {
		op := p.advance().Text
		if op == "MINUS" {
			op = "EXCEPT"
		}
		all := p.parseSetQuantifier()
		right, err := p.parseIntersect()
		if err != nil {
			return nil, err
		}
		left = &ast.SetOp{Op: op, All: all, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseIntersect() (ast.SetExpr, error) {
	left, err := p.parseSetOperand()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("INTERSECT") {
		p.advance()
		all := p.parseSetQuantifier()
		right, err := p.parseSetOperand()
		if err != nil {
			return nil, err
		}
		left = &ast.SetOp{Op: "INTERSECT", All: all, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseSetQuantifier() bool {
	if p.acceptKeyword("ALL") {
		return true
	}
	p.acceptKeyword("DISTINCT")
	return false
}

func (p *parser) parseSetOperand() (ast.SetExpr, error) {
	tok := p.current()
	switch {
	case tok.Is("SELECT"):
		return p.parseSelect()
	case tok.Is("VALUES"):
		return p.parseValues()
	case tok.Is("("):
		p.advance()
		if !startsQuery(p.current()) {
			return nil, p.notSelect(p.current())
		}
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &ast.ParenQuery{Query: q}, nil
	}
	return nil, p.notSelect(tok)
}

func (p *parser) parseValues() (*ast.Values, error) {
	p.advance() // VALUES
	values := &ast.Values{}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		row, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		values.Rows = append(values.Rows, row)
		if !p.acceptSymbol(",") {
			return values, nil
		}
	}
}

func (p *parser) parseSelect() (*ast.Select, error) {
	p.advance() // SELECT
	sel := &ast.Select{}
	if p.acceptKeyword("DISTINCT") {
		sel.Distinct = true
		if p.matchKeyword("ON") {
			p.advance()
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			on, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			sel.DistinctOn = on
		}
	} else {
		p.acceptKeyword("ALL")
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, item)
		if !p.acceptSymbol(",") {
			break
		}
	}

	if p.acceptKeyword("FROM") {
		for {
			item, err := p.parseFromItem()
			if err != nil {
				return nil, err
			}
			sel.From = append(sel.From, item)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}
	if p.matchKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		group, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		sel.GroupBy = group
	}
	if p.acceptKeyword("HAVING") {
		having, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = having
	}
	if p.acceptKeyword("WINDOW") {
		for {
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			spec, err := p.parseWindowSpec()
			if err != nil {
				return nil, err
			}
			sel.Windows = append(sel.Windows, ast.NamedWindow{Name: name, Spec: spec})
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	return sel, nil
}

func (p *parser) parseSelectItem() (ast.SelectItem, error) {
	if p.acceptSymbol("*") {
		return ast.SelectItem{Star: &ast.Star{}}, nil
	}
	if n := p.qualifiedStarLength(); n > 0 {
		var qualifier []ast.Ident
		for len(qualifier) < n {
			ident, err := p.parseIdent()
			if err != nil {
				return ast.SelectItem{}, err
			}
			qualifier = append(qualifier, ident)
			p.advance() // '.'
		}
		p.advance() // '*'
		return ast.SelectItem{Star: &ast.Star{Qualifier: qualifier}}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: expr}
	alias, ok, err := p.parseAlias()
	if err != nil {
		return ast.SelectItem{}, err
	}
	if ok {
		item.Alias = &alias
	}
	return item, nil
}

// qualifiedStarLength returns the number of qualifier parts when the upcoming
// tokens spell name(.name)*.*, otherwise zero.
func (p *parser) qualifiedStarLength() int {
	n := 0
	for {
		if p.peek(2*n).Kind != tokenizer.KindIdentifier || !p.peek(2*n+1).Is(".") {
			break
		}
		n++
		if p.peek(2 * n).Is("*") {
			return n
		}
	}
	return 0
}

func (p *parser) parseAlias() (ast.Ident, bool, error) {
	if p.acceptKeyword("AS") {
		ident, err := p.parseIdent()
		if err != nil {
			return ast.Ident{}, false, err
		}
		return ident, true, nil
	}
	if p.current().Kind == tokenizer.KindIdentifier {
		ident, err := p.parseIdent()
		return ident, err == nil, err
	}
	return ast.Ident{}, false, nil
}

func (p *parser) parseFromItem() (ast.FromItem, error) {
	left, err := p.parseTablePrimary()
	if err != nil {
		return nil, err
	}
	for {
		kind, natural, ok, err := p.parseJoinKind()
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseTablePrimary()
		if err != nil {
			return nil, err
		}
		join := &ast.Join{Kind: kind, Natural: natural, Left: left, Right: right}
		if kind != "CROSS" && !natural {
			switch {
			case p.acceptKeyword("ON"):
				on, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				join.On = on
			case p.matchKeyword("USING"):
				p.advance()
				cols, err := p.parseIdentList()
				if err != nil {
					return nil, err
				}
				join.Using = cols
			case kind != "INNER":
				return nil, p.expected("ON or USING")
			}
		}
		left = join
	}
}

func (p *parser) parseJoinKind() (string, bool, bool, error) {
	natural := p.acceptKeyword("NATURAL")
	kind := "INNER"
	switch {
	case p.acceptKeyword("JOIN"):
		return kind, natural, true, nil
	case p.acceptKeyword("INNER"):
	case p.acceptKeyword("CROSS"):
		kind = "CROSS"
	case p.matchKeyword("LEFT") || p.matchKeyword("RIGHT") || p.matchKeyword("FULL"):
		kind = p.advance().Text
		p.acceptKeyword("OUTER")
	default:
		if natural {
			return "", false, false, p.expected("JOIN")
		}
		return "", false, false, nil
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return "", false, false, err
	}
	return kind, natural, true, nil
}

func (p *parser) parseTablePrimary() (ast.FromItem, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	lateral := p.acceptKeyword("LATERAL")
	if p.matchSymbol("(") {
		if p.parenthesizedQueryAhead() {
			p.advance()
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			derived := &ast.DerivedTable{Lateral: lateral, Query: q}
			alias, ok, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			if ok {
				derived.Alias = &alias
				if p.matchSymbol("(") {
					cols, err := p.parseIdentList()
					if err != nil {
						return nil, err
					}
					derived.ColumnAliases = cols
				}
			}
			return derived, nil
		}
		if lateral {
			return nil, p.expected("subquery after LATERAL")
		}
		p.advance()
		inner, err := p.parseFromItem()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if lateral {
		return nil, p.expected("subquery after LATERAL")
	}

	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if p.matchSymbol("(") {
		return nil, p.errorf(p.current(), "table-valued function %s is not supported", name[len(name)-1].Name)
	}
	ref := &ast.TableRef{Name: name}
	alias, ok, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	if ok {
		ref.Alias = &alias
		if p.matchSymbol("(") {
			cols, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			ref.ColumnAliases = cols
		}
	}
	return ref, nil
}

// parenthesizedQueryAhead reports whether the '(' at the cursor opens a query
// rather than a parenthesized join.
func (p *parser) parenthesizedQueryAhead() bool {
	i := 0
	for p.peek(i).Is("(") {
		i++
	}
	next := p.peek(i)
	return next.Is("SELECT") || next.Is("WITH") || next.Is("VALUES")
}

func (p *parser) parseOrderList() ([]ast.OrderItem, error) {
	var items []ast.OrderItem
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := ast.OrderItem{Expr: expr}
		if p.acceptKeyword("DESC") {
			item.Desc = true
		} else {
			p.acceptKeyword("ASC")
		}
		if p.current().IsWord("NULLS") {
			p.advance()
			switch {
			case p.current().IsWord("FIRST"):
				item.Nulls = "FIRST"
			case p.current().IsWord("LAST"):
				item.Nulls = "LAST"
			default:
				return nil, p.expected("FIRST or LAST")
			}
			p.advance()
		}
		items = append(items, item)
		if !p.acceptSymbol(",") {
			return items, nil
		}
	}
}

func (p *parser) parseWindowSpec() (*ast.WindowSpec, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	spec := &ast.WindowSpec{}
	if p.current().Kind == tokenizer.KindIdentifier && !p.current().IsWord("PARTITION") &&
		!p.current().IsWord("ROWS") && !p.current().IsWord("RANGE") && !p.current().IsWord("GROUPS") {
		ref, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		spec.Ref = &ref
	}
	if p.current().IsWord("PARTITION") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		parts, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		spec.PartitionBy = parts
	}
	if p.matchKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		order, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		spec.OrderBy = order
	}
	if !p.matchSymbol(")") {
		frame, err := p.collectFrame()
		if err != nil {
			return nil, err
		}
		spec.Frame = frame
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return spec, nil
}

// collectFrame gathers the frame clause up to the closing parenthesis of the
// window specification.
func (p *parser) collectFrame() (string, error) {
	var parts []string
	depth := 0
	for {
		tok := p.current()
		switch {
		case tok.Kind == tokenizer.KindEOF:
			return "", p.expected(")")
		case tok.Is("("):
			depth++
		case tok.Is(")"):
			if depth == 0 {
				return strings.Join(parts, " "), nil
			}
			depth--
		}
		text := tok.Text
		if tok.Kind == tokenizer.KindIdentifier && !tok.Quoted() {
			text = strings.ToUpper(text)
		}
		parts = append(parts, text)
		p.advance()
	}
}

func (p *parser) parseQualifiedName() ([]ast.Ident, error) {
	first, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	name := []ast.Ident{first}
	for p.matchSymbol(".") && p.peek(1).Kind == tokenizer.KindIdentifier {
		p.advance()
		part, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		name = append(name, part)
	}
	return name, nil
}

func (p *parser) parseIdentList() ([]ast.Ident, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var idents []ast.Ident
	for {
		ident, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		idents = append(idents, ident)
		if !p.acceptSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return idents, nil
}

func (p *parser) parseIdent() (ast.Ident, error) {
	tok := p.current()
	if tok.Kind != tokenizer.KindIdentifier {
		return ast.Ident{}, p.expected("identifier")
	}
	p.advance()
	return ast.Ident{Name: tokenizer.CanonicalIdentifier(tok.Text), Quoted: tok.Quoted()}, nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(p.current(), "query nested too deeply")
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) matchKeyword(text string) bool {
	tok := p.current()
	return tok.Kind == tokenizer.KindKeyword && tok.Text == text
}

func (p *parser) matchSymbol(text string) bool {
	tok := p.current()
	return tok.Kind == tokenizer.KindSymbol && tok.Text == text
}

func (p *parser) acceptKeyword(text string) bool {
	if !p.matchKeyword(text) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) acceptSymbol(text string) bool {
	if !p.matchSymbol(text) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) expectKeyword(text string) error {
	if !p.acceptKeyword(text) {
		return p.expected(text)
	}
	return nil
}

func (p *parser) expectSymbol(text string) error {
	if !p.acceptSymbol(text) {
		return p.expected(fmt.Sprintf("%q", text))
	}
	return nil
}

func (p *parser) current() tokenizer.Token {
	return p.peek(0)
}

func (p *parser) peek(n int) tokenizer.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) advance() tokenizer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) isEOF() bool {
	return p.current().Kind == tokenizer.KindEOF
}

func (p *parser) expected(what string) error {
	tok := p.current()
	return p.errorf(tok, "expected %s, got %s", what, describe(tok))
}

func (p *parser) notSelect(tok tokenizer.Token) error {
	return &Error{
		Line:    tok.Line,
		Column:  tok.Column,
		Message: fmt.Sprintf("expected SELECT, got %s", describe(tok)),
		Err:     ErrNotSelect,
	}
}

func (p *parser) errorf(tok tokenizer.Token, format string, args ...any) error {
	return &Error{
		Line:    tok.Line,
		Column:  tok.Column,
		Message: fmt.Sprintf(format, args...),
	}
}

func startsQuery(tok tokenizer.Token) bool {
	return tok.Is("SELECT") || tok.Is("WITH") || tok.Is("VALUES") || tok.Is("(")
}

func describe(tok tokenizer.Token) string {
	if tok.Kind == tokenizer.KindEOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", strings.ToLower(tok.Kind.String()), tok.Text)
}
