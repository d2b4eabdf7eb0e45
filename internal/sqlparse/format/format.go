// Package format prints syntax trees in a single canonical dialect.
//
// Output uses upper-case keywords, canonical identifiers, single spaces between
// tokens and no line breaks. Printing a parsed query, parsing the output and
// printing again yields the same text.
package format

import (
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/tokenizer"
)

// Query renders a full query.
func Query(q *ast.Query) string {
	var p printer
	p.query(q)
	return p.String()
}

// Expr renders a scalar expression.
func Expr(e ast.Expr) string {
	var p printer
	p.expr(e)
	return p.String()
}

// SelectItems renders a projection list.
func SelectItems(items []ast.SelectItem) string {
	var p printer
	p.selectItems(items)
	return p.String()
}

// OrderBy renders ORDER BY keys without the leading keywords.
func OrderBy(items []ast.OrderItem) string {
	var p printer
	p.orderItems(items)
	return p.String()
}

// Pagination renders the LIMIT, OFFSET and FETCH clauses of q, or "" when absent.
func Pagination(q *ast.Query) string {
	var p printer
	p.pagination(q)
	return strings.TrimPrefix(p.String(), " ")
}

// Ident renders an identifier, quoting it only when the bare spelling would
// resolve differently.
func Ident(id ast.Ident) string {
	if !id.Quoted || isBareIdentifier(id.Name) {
		return id.Name
	}
	return `"` + strings.ReplaceAll(id.Name, `"`, `""`) + `"`
}

func isBareIdentifier(name string) bool {
	if name == "" || name != strings.ToUpper(name) || tokenizer.IsKeyword(name) {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r >= '0' && r <= '9' || r == '$'):
		default:
			return false
		}
	}
	return true
}

type printer struct {
	b strings.Builder
}

func (p *printer) String() string {
	return p.b.String()
}

func (p *printer) write(parts ...string) {
	for _, part := range parts {
		p.b.WriteString(part)
	}
}

func (p *printer) query(q *ast.Query) {
	if q.With != nil {
		p.write("WITH ")
		if q.With.Recursive {
			p.write("RECURSIVE ")
		}
		for i, cte := range q.With.CTEs {
			if i > 0 {
				p.write(", ")
			}
			p.write(Ident(cte.Name))
			if len(cte.Columns) > 0 {
				p.write(" ")
				p.identList(cte.Columns)
			}
			p.write(" AS (")
			p.query(cte.Query)
			p.write(")")
		}
		p.write(" ")
	}
	p.setExpr(q.Body)
	if len(q.OrderBy) > 0 {
		p.write(" ORDER BY ")
		p.orderItems(q.OrderBy)
	}
	p.pagination(q)
}

func (p *printer) pagination(q *ast.Query) {
	if q.Limit != nil {
		p.write(" LIMIT ")
		p.expr(q.Limit)
	}
	if q.Offset != nil {
		p.write(" OFFSET ")
		p.expr(q.Offset)
	}
	if q.Fetch != nil {
		p.write(" FETCH FIRST ")
		if q.Fetch.Count != nil {
			p.expr(q.Fetch.Count)
			if q.Fetch.Percent {
				p.write(" PERCENT")
			}
			p.write(" ")
		}
		p.write("ROWS ")
		if q.Fetch.WithTies {
			p.write("WITH TIES")
		} else {
			p.write("ONLY")
		}
	}
}

func (p *printer) setExpr(body ast.SetExpr) {
	switch n := body.(type) {
	case *ast.Select:
		p.selectBlock(n)
	case *ast.SetOp:
		p.setExpr(n.Left)
		p.write(" ", n.Op, " ")
		if n.All {
			p.write("ALL ")
		}
		p.setExpr(n.Right)
	case *ast.ParenQuery:
		p.write("(")
		p.query(n.Query)
		p.write(")")
	case *ast.Values:
		p.write("VALUES ")
		for i, row := range n.Rows {
			if i > 0 {
				p.write(", ")
			}
			p.write("(")
			p.exprList(row)
			p.write(")")
		}
	}
}

func (p *printer) selectBlock(s *ast.Select) {
	p.write("SELECT ")
	if s.Distinct {
		p.write("DISTINCT ")
		if len(s.DistinctOn) > 0 {
			p.write("ON (")
			p.exprList(s.DistinctOn)
			p.write(") ")
		}
	}
	p.selectItems(s.Items)
	if len(s.From) > 0 {
		p.write(" FROM ")
		for i, item := range s.From {
			if i > 0 {
				p.write(", ")
			}
			p.fromItem(item, false)
		}
	}
	if s.Where != nil {
		p.write(" WHERE ")
		p.expr(s.Where)
	}
	if len(s.GroupBy) > 0 {
		p.write(" GROUP BY ")
		p.exprList(s.GroupBy)
	}
	if s.Having != nil {
		p.write(" HAVING ")
		p.expr(s.Having)
	}
	if len(s.Windows) > 0 {
		p.write(" WINDOW ")
		for i, w := range s.Windows {
			if i > 0 {
				p.write(", ")
			}
			p.write(Ident(w.Name), " AS ")
			p.windowSpec(w.Spec)
		}
	}
}

func (p *printer) selectItems(items []ast.SelectItem) {
	for i, item := range items {
		if i > 0 {
			p.write(", ")
		}
		if item.Star != nil {
			for _, q := range item.Star.Qualifier {
				p.write(Ident(q), ".")
			}
			p.write("*")
			continue
		}
		p.expr(item.Expr)
		if item.Alias != nil {
			p.write(" AS ", Ident(*item.Alias))
		}
	}
}

func (p *printer) fromItem(item ast.FromItem, nested bool) {
	switch n := item.(type) {
	case *ast.TableRef:
		p.qualifiedName(n.Name)
		p.alias(n.Alias, n.ColumnAliases)
	case *ast.DerivedTable:
		if n.Lateral {
			p.write("LATERAL ")
		}
		p.write("(")
		p.query(n.Query)
		p.write(")")
		p.alias(n.Alias, n.ColumnAliases)
	case *ast.Join:
		if nested {
			p.write("(")
		}
		p.fromItem(n.Left, false)
		p.write(" ")
		if n.Natural {
			p.write("NATURAL ")
		}
		if n.Kind != "INNER" {
			p.write(n.Kind, " ")
		}
		p.write("JOIN ")
		p.fromItem(n.Right, true)
		if n.On != nil {
			p.write(" ON ")
			p.expr(n.On)
		}
		if len(n.Using) > 0 {
			p.write(" USING ")
			p.identList(n.Using)
		}
		if nested {
			p.write(")")
		}
	}
}

func (p *printer) alias(alias *ast.Ident, columns []ast.Ident) {
	if alias == nil {
		return
	}
	p.write(" AS ", Ident(*alias))
	if len(columns) > 0 {
		p.write(" ")
		p.identList(columns)
	}
}

func (p *printer) qualifiedName(parts []ast.Ident) {
	for i, part := range parts {
		if i > 0 {
			p.write(".")
		}
		p.write(Ident(part))
	}
}

func (p *printer) identList(idents []ast.Ident) {
	p.write("(")
	for i, id := range idents {
		if i > 0 {
			p.write(", ")
		}
		p.write(Ident(id))
	}
	p.write(")")
}

func (p *printer) orderItems(items []ast.OrderItem) {
	for i, item := range items {
		if i > 0 {
			p.write(", ")
		}
		p.expr(item.Expr)
		if item.Desc {
			p.write(" DESC")
		}
		if item.Nulls != "" {
			p.write(" NULLS ", item.Nulls)
		}
	}
}

func (p *printer) windowSpec(spec *ast.WindowSpec) {
	var parts []string
	if spec.Ref != nil {
		parts = append(parts, Ident(*spec.Ref))
	}
	if len(spec.PartitionBy) > 0 {
		var sub printer
		sub.exprList(spec.PartitionBy)
		parts = append(parts, "PARTITION BY "+sub.String())
	}
	if len(spec.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+OrderBy(spec.OrderBy))
	}
	if spec.Frame != "" {
		parts = append(parts, spec.Frame)
	}
	p.write("(", strings.Join(parts, " "), ")")
}

func (p *printer) exprList(exprs []ast.Expr) {
	for i, e := range exprs {
		if i > 0 {
			p.write(", ")
		}
		p.expr(e)
	}
}

func (p *printer) expr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.ColumnRef:
		p.qualifiedName(n.Parts)
	case *ast.Literal:
		p.write(n.Text)
	case *ast.TypedLiteral:
		p.write(n.Type, " ", n.Value)
	case *ast.Interval:
		p.write("INTERVAL ", n.Value)
		if n.Unit != "" {
			p.write(" ", n.Unit)
		}
	case *ast.Param:
		p.write(n.Text)
	case *ast.Unary:
		p.unary(n)
	case *ast.Binary:
		p.expr(n.L)
		p.write(" ", n.Op, " ")
		p.expr(n.R)
	case *ast.Paren:
		p.write("(")
		p.expr(n.X)
		p.write(")")
	case *ast.Tuple:
		p.write("(")
		p.exprList(n.Items)
		p.write(")")
	case *ast.FuncCall:
		p.funcCall(n)
	case *ast.Subquery:
		p.write("(")
		p.query(n.Query)
		p.write(")")
	case *ast.Exists:
		if n.Not {
			p.write("NOT ")
		}
		p.write("EXISTS (")
		p.query(n.Query)
		p.write(")")
	case *ast.InList:
		p.expr(n.X)
		p.write(negation(n.Not), " IN (")
		p.exprList(n.List)
		p.write(")")
	case *ast.InSubquery:
		p.expr(n.X)
		p.write(negation(n.Not), " IN (")
		p.query(n.Query)
		p.write(")")
	case *ast.Quantified:
		p.expr(n.X)
		p.write(" ", n.Op, " ", n.Quantifier, " (")
		p.query(n.Query)
		p.write(")")
	case *ast.Between:
		p.expr(n.X)
		p.write(negation(n.Not), " BETWEEN ")
		p.expr(n.Lo)
		p.write(" AND ")
		p.expr(n.Hi)
	case *ast.Like:
		p.expr(n.X)
		p.write(negation(n.Not), " ", n.Op, " ")
		p.expr(n.Pattern)
		if n.Escape != nil {
			p.write(" ESCAPE ")
			p.expr(n.Escape)
		}
	case *ast.Is:
		p.expr(n.X)
		p.write(" IS ")
		if n.Not {
			p.write("NOT ")
		}
		p.write(n.Target)
		if n.From != nil {
			p.write(" ")
			p.expr(n.From)
		}
	case *ast.Case:
		p.write("CASE ")
		if n.Operand != nil {
			p.expr(n.Operand)
			p.write(" ")
		}
		for _, w := range n.Whens {
			p.write("WHEN ")
			p.expr(w.Cond)
			p.write(" THEN ")
			p.expr(w.Result)
			p.write(" ")
		}
		if n.Else != nil {
			p.write("ELSE ")
			p.expr(n.Else)
			p.write(" ")
		}
		p.write("END")
	case *ast.Cast:
		p.write("CAST(")
		p.expr(n.X)
		p.write(" AS ", n.Type, ")")
	case *ast.Extract:
		p.write("EXTRACT(", n.Field, " FROM ")
		p.expr(n.X)
		p.write(")")
	}
}

func (p *printer) unary(n *ast.Unary) {
	if n.Op == "NOT" {
		p.write("NOT ")
		p.expr(n.X)
		return
	}
	operand := Expr(n.X)
	p.write(n.Op)
	if strings.HasPrefix(operand, "-") || strings.HasPrefix(operand, "+") {
		p.write(" ")
	}
	p.write(operand)
}

func (p *printer) funcCall(f *ast.FuncCall) {
	p.qualifiedName(f.Name)
	p.write("(")
	switch {
	case f.Star:
		p.write("*")
	default:
		if f.Distinct {
			p.write("DISTINCT ")
		}
		p.exprList(f.Args)
		if len(f.OrderBy) > 0 {
			p.write(" ORDER BY ")
			p.orderItems(f.OrderBy)
		}
	}
	p.write(")")
	if len(f.WithinGroup) > 0 {
		p.write(" WITHIN GROUP (ORDER BY ")
		p.orderItems(f.WithinGroup)
		p.write(")")
	}
	if f.Filter != nil {
		p.write(" FILTER (WHERE ")
		p.expr(f.Filter)
		p.write(")")
	}
	if f.Over != nil {
		p.write(" OVER ")
		if f.Over.Ref != nil && len(f.Over.PartitionBy) == 0 && len(f.Over.OrderBy) == 0 && f.Over.Frame == "" {
			p.write(Ident(*f.Over.Ref))
		} else {
			p.windowSpec(f.Over)
		}
	}
}

func negation(negated bool) string {
	if negated {
		return " NOT"
	}
	return ""
}
