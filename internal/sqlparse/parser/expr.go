package parser

import (
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/tokenizer"
)

func (p *parser) parseExprList() ([]ast.Expr, error) {
	var exprs []ast.Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if !p.acceptSymbol(",") {
			return exprs, nil
		}
	}
}

func (p *parser) parseExpr() (ast.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: "OR", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: "AND", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expr, error) {
	if p.matchKeyword("NOT") && !p.peek(1).Is("EXISTS") {
		p.advance()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: "NOT", X: x}, nil
	}
	return p.parsePredicate()
}

var comparisonOps = map[string]string{
	"=":  "=",
	"<>": "<>",
	"!=": "<>",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

func (p *parser) parsePredicate() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		if op, ok := comparisonOps[tok.Text]; ok && tok.Kind == tokenizer.KindSymbol {
			p.advance()
			if quant := p.current(); (quant.Is("ALL") || quant.IsWord("ANY") || quant.IsWord("SOME")) &&
				p.peek(1).Is("(") && startsSubquery(p.peek(2)) {
				p.advance()
				p.advance()
				q, err := p.parseQuery()
				if err != nil {
					return nil, err
				}
				if err := p.expectSymbol(")"); err != nil {
					return nil, err
				}
				quantifier := strings.ToUpper(quant.Text)
				if quantifier == "SOME" {
					quantifier = "ANY"
				}
				left = &ast.Quantified{X: left, Op: op, Quantifier: quantifier, Query: q}
				continue
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.Binary{Op: op, L: left, R: right}
			continue
		}

		not := false
		if p.matchKeyword("NOT") {
			next := p.peek(1)
			if !next.Is("IN") && !next.Is("LIKE") && !next.Is("BETWEEN") && !next.IsWord("ILIKE") {
				return left, nil
			}
			p.advance()
			not = true
		}
		switch {
		case p.matchKeyword("IS"):
			if not {
				return nil, p.expected("IN, LIKE or BETWEEN")
			}
			left, err = p.parseIs(left)
		case p.matchKeyword("IN"):
			left, err = p.parseIn(left, not)
		case p.matchKeyword("BETWEEN"):
			left, err = p.parseBetween(left, not)
		case p.matchKeyword("LIKE") || p.current().IsWord("ILIKE"):
			left, err = p.parseLike(left, not)
		default:
			return left, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseIs(x ast.Expr) (ast.Expr, error) {
	p.advance() // IS
	is := &ast.Is{X: x, Not: p.acceptKeyword("NOT")}
	tok := p.current()
	switch {
	case tok.Is("NULL"), tok.Is("TRUE"), tok.Is("FALSE"):
		is.Target = tok.Text
		p.advance()
	case tok.IsWord("UNKNOWN"):
		is.Target = "UNKNOWN"
		p.advance()
	case tok.Is("DISTINCT"):
		p.advance()
		if err := p.expectKeyword("FROM"); err != nil {
			return nil, err
		}
		from, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		is.Target = "DISTINCT FROM"
		is.From = from
	default:
		return nil, p.expected("NULL, TRUE, FALSE, UNKNOWN or DISTINCT FROM")
	}
	return is, nil
}

func (p *parser) parseIn(x ast.Expr, not bool) (ast.Expr, error) {
	p.advance() // IN
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	if startsSubquery(p.current()) {
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &ast.InSubquery{X: x, Not: not, Query: q}, nil
	}
	list, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &ast.InList{X: x, Not: not, List: list}, nil
}

func (p *parser) parseBetween(x ast.Expr, not bool) (ast.Expr, error) {
	p.advance() // BETWEEN
	lo, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AND"); err != nil {
		return nil, err
	}
	hi, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &ast.Between{X: x, Not: not, Lo: lo, Hi: hi}, nil
}

func (p *parser) parseLike(x ast.Expr, not bool) (ast.Expr, error) {
	op := strings.ToUpper(p.advance().Text)
	pattern, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	like := &ast.Like{X: x, Not: not, Op: op, Pattern: pattern}
	if p.acceptKeyword("ESCAPE") {
		escape, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		like.Escape = escape
	}
	return like, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		if tok.Kind != tokenizer.KindSymbol {
			return left, nil
		}
		switch tok.Text {
		case "+", "-", "||", "&", "|", "^":
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: tok.Text, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.matchSymbol("*") || p.matchSymbol("/") || p.matchSymbol("%") {
		op := p.advance().Text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.matchSymbol("-") || p.matchSymbol("+") || p.matchSymbol("~") {
		op := p.advance().Text
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.acceptSymbol("::") {
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		x = &ast.Cast{X: x, Type: typ, Suffix: true}
	}
	return x, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.current()
	switch tok.Kind {
	case tokenizer.KindNumber:
		p.advance()
		return &ast.Literal{Kind: ast.LiteralNumber, Text: tok.Text}, nil
	case tokenizer.KindString:
		p.advance()
		return &ast.Literal{Kind: ast.LiteralString, Text: tok.Text}, nil
	case tokenizer.KindBlob:
		p.advance()
		return &ast.Literal{Kind: ast.LiteralBlob, Text: tok.Text}, nil
	case tokenizer.KindParam:
		p.advance()
		return &ast.Param{Text: tok.Text}, nil
	case tokenizer.KindKeyword:
		switch tok.Text {
		case "NULL":
			p.advance()
			return &ast.Literal{Kind: ast.LiteralNull, Text: "NULL"}, nil
		case "TRUE", "FALSE":
			p.advance()
			return &ast.Literal{Kind: ast.LiteralBool, Text: tok.Text}, nil
		case "EXISTS":
			return p.parseExists(false)
		case "NOT":
			p.advance()
			return p.parseExists(true)
		case "CASE":
			return p.parseCase()
		case "CAST":
			return p.parseCast()
		case "LEFT", "RIGHT":
			if p.peek(1).Is("(") {
				p.advance()
				return p.parseFuncCall([]ast.Ident{{Name: tok.Text}})
			}
		}
	case tokenizer.KindSymbol:
		if tok.Is("(") {
			return p.parseParenthesized()
		}
	case tokenizer.KindIdentifier:
		return p.parseIdentifierExpr()
	}
	return nil, p.expected("expression")
}

func (p *parser) parseIdentifierExpr() (ast.Expr, error) {
	tok := p.current()
	next := p.peek(1)
	if !tok.Quoted() && next.Kind == tokenizer.KindString {
		switch upper := strings.ToUpper(tok.Text); upper {
		case "DATE", "TIME", "TIMESTAMP":
			p.advance()
			p.advance()
			return &ast.TypedLiteral{Type: upper, Value: next.Text}, nil
		case "INTERVAL":
			p.advance()
			p.advance()
			interval := &ast.Interval{Value: next.Text}
			if unit := p.current(); unit.Kind == tokenizer.KindIdentifier && !unit.Quoted() && isIntervalUnit(unit.Text) {
				interval.Unit = strings.ToUpper(unit.Text)
				p.advance()
			}
			return interval, nil
		}
	}
	if tok.IsWord("EXTRACT") && next.Is("(") {
		return p.parseExtract()
	}

	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if p.matchSymbol("(") {
		return p.parseFuncCall(name)
	}
	return &ast.ColumnRef{Parts: name}, nil
}

func (p *parser) parseFuncCall(name []ast.Ident) (ast.Expr, error) {
	p.advance() // '('
	call := &ast.FuncCall{Name: name}
	switch {
	case p.acceptSymbol("*"):
		call.Star = true
	case p.matchSymbol(")"):
	default:
		if p.acceptKeyword("DISTINCT") {
			call.Distinct = true
		} else {
			p.acceptKeyword("ALL")
		}
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		call.Args = args
		if p.matchKeyword("ORDER") {
			p.advance()
			if err := p.expectKeyword("BY"); err != nil {
				return nil, err
			}
			order, err := p.parseOrderList()
			if err != nil {
				return nil, err
			}
			call.OrderBy = order
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	if p.current().IsWord("WITHIN") && p.peek(1).Is("GROUP") {
		p.advance()
		p.advance()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ORDER"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		order, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		call.WithinGroup = order
	}
	if p.current().IsWord("FILTER") && p.peek(1).Is("(") {
		p.advance()
		p.advance()
		if err := p.expectKeyword("WHERE"); err != nil {
			return nil, err
		}
		filter, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		call.Filter = filter
	}
	if p.acceptKeyword("OVER") {
		if p.current().Kind == tokenizer.KindIdentifier {
			ref, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			call.Over = &ast.WindowSpec{Ref: &ref}
		} else {
			spec, err := p.parseWindowSpec()
			if err != nil {
				return nil, err
			}
			call.Over = spec
		}
	}
	return call, nil
}

func (p *parser) parseExtract() (ast.Expr, error) {
	p.advance() // EXTRACT
	p.advance() // '('
	field := p.current()
	if field.Kind != tokenizer.KindIdentifier || field.Quoted() {
		return nil, p.expected("date part")
	}
	p.advance()
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &ast.Extract{Field: strings.ToUpper(field.Text), X: x}, nil
}

func (p *parser) parseParenthesized() (ast.Expr, error) {
	p.advance() // '('
	if startsSubquery(p.current()) {
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &ast.Subquery{Query: q}, nil
	}
	items, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if len(items) == 1 {
		return &ast.Paren{X: items[0]}, nil
	}
	return &ast.Tuple{Items: items}, nil
}

func (p *parser) parseExists(not bool) (ast.Expr, error) {
	if err := p.expectKeyword("EXISTS"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &ast.Exists{Not: not, Query: q}, nil
}

func (p *parser) parseCase() (ast.Expr, error) {
	p.advance() // CASE
	c := &ast.Case{}
	if !p.matchKeyword("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.acceptKeyword("WHEN") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, ast.When{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		return nil, p.expected("WHEN")
	}
	if p.acceptKeyword("ELSE") {
		elseExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = elseExpr
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *parser) parseCast() (ast.Expr, error) {
	p.advance() // CAST
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &ast.Cast{X: x, Type: typ}, nil
}

// parseTypeName reads a possibly multi-word type such as DOUBLE PRECISION,
// VARCHAR(20) or TIMESTAMP WITH TIME ZONE.
func (p *parser) parseTypeName() (string, error) {
	tok := p.current()
	if tok.Kind != tokenizer.KindIdentifier {
		return "", p.expected("type name")
	}
	p.advance()
	name := strings.ToUpper(tok.Text)
	if tok.Quoted() {
		name = tok.Text
	}
	for {
		next := p.current()
		if next.Kind != tokenizer.KindIdentifier || next.Quoted() || !typeNameSuffixes[strings.ToUpper(next.Text)] {
			break
		}
		name += " " + strings.ToUpper(next.Text)
		p.advance()
	}
	if p.acceptSymbol("(") {
		var args []string
		for {
			tok := p.current()
			if tok.Kind != tokenizer.KindNumber {
				return "", p.expected("type modifier")
			}
			args = append(args, tok.Text)
			p.advance()
			if !p.acceptSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return "", err
		}
		name += "(" + strings.Join(args, ",") + ")"
	}
	if (p.matchKeyword("WITH") || p.current().IsWord("WITHOUT")) && p.peek(1).IsWord("TIME") && p.peek(2).IsWord("ZONE") {
		name += " " + strings.ToUpper(p.advance().Text) + " TIME ZONE"
		p.advance()
		p.advance()
	}
	return name, nil
}

var typeNameSuffixes = map[string]bool{
	"PRECISION": true,
	"VARYING":   true,
	"UNSIGNED":  true,
	"SIGNED":    true,
}

func startsSubquery(tok tokenizer.Token) bool {
	return tok.Is("SELECT") || tok.Is("WITH") || tok.Is("VALUES")
}

func isIntervalUnit(text string) bool {
	switch strings.ToUpper(text) {
	case "YEAR", "MONTH", "DAY", "HOUR", "MINUTE", "SECOND", "WEEK",
		"YEARS", "MONTHS", "DAYS", "HOURS", "MINUTES", "SECONDS", "WEEKS":
		return true
	}
	return false
}
