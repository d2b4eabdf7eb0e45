package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/format"
)

// Catalog maps canonical table names to their known columns.
type Catalog map[string][]string

// Option configures Build.
type Option func(*builder)

// WithCatalog attaches column lists to scans of known tables.
func WithCatalog(c Catalog) Option {
	return func(b *builder) {
		b.catalog = c
	}
}

// Build produces the logical plan of q.
func Build(q *ast.Query, opts ...Option) (Node, error) {
	if q == nil {
		return nil, errors.New("plan: nil query")
	}
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b.query(q, nil)
}

// aggregateFunctions lists functions that collapse rows when used without OVER.
var aggregateFunctions = map[string]struct{}{
	"ANY_VALUE":        {},
	"ARRAY_AGG":        {},
	"AVG":              {},
	"BIT_AND":          {},
	"BIT_OR":           {},
	"BIT_XOR":          {},
	"BOOL_AND":         {},
	"BOOL_OR":          {},
	"COLLECT":          {},
	"CORR":             {},
	"COUNT":            {},
	"COUNT_BIG":        {},
	"COVAR_POP":        {},
	"COVAR_SAMP":       {},
	"EVERY":            {},
	"GROUPING":         {},
	"GROUP_CONCAT":     {},
	"JSON_AGG":         {},
	"JSON_ARRAYAGG":    {},
	"JSON_GROUP_ARRAY": {},
	"JSON_OBJECTAGG":   {},
	"JSON_OBJECT_AGG":  {},
	"JSONB_AGG":        {},
	"LISTAGG":          {},
	"MAX":              {},
	"MEDIAN":           {},
	"MIN":              {},
	"MODE":             {},
	"PERCENTILE_CONT":  {},
	"PERCENTILE_DISC":  {},
	"REGR_SLOPE":       {},
	"REGR_INTERCEPT":   {},
	"REGR_COUNT":       {},
	"STDDEV":           {},
	"STDDEV_POP":       {},
	"STDDEV_SAMP":      {},
	"STRING_AGG":       {},
	"SUM":              {},
	"TOTAL":            {},
	"VAR_POP":          {},
	"VAR_SAMP":         {},
	"VARIANCE":         {},
	"XMLAGG":           {},
}

// IsAggregate reports whether call aggregates rows of its input.
func IsAggregate(call *ast.FuncCall) bool {
	if call.Over != nil {
		return false
	}
	if len(call.WithinGroup) > 0 || call.Filter != nil {
		return true
	}
	_, ok := aggregateFunctions[strings.ToUpper(call.FuncName())]
	return ok
}

type builder struct {
	catalog Catalog
}

// cteScope is a chain of visible common table expression names.
type cteScope struct {
	names  map[string]struct{}
	parent *cteScope
}

func (s *cteScope) has(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

func (b *builder) query(q *ast.Query, scope *cteScope) (Node, error) {
	var with *With
	if q.With != nil {
		scope = &cteScope{names: map[string]struct{}{}, parent: scope}
		with = &With{Recursive: q.With.Recursive}
		for _, cte := range q.With.CTEs {
			if q.With.Recursive {
				scope.names[cte.Name.Name] = struct{}{}
			}
			body, err := b.query(cte.Query, scope)
			if err != nil {
				return nil, err
			}
			scope.names[cte.Name.Name] = struct{}{}
			with.Definitions = append(with.Definitions, &Definition{Name: format.Ident(cte.Name), Plan: body})
		}
	}

	var node Node
	var err error
	if sel, ok := q.Body.(*ast.Select); ok {
		node, err = b.selectBlock(sel, scope, q.OrderBy)
	} else {
		node, err = b.setExpr(q.Body, scope)
	}
	if err != nil {
		return nil, err
	}

	if len(q.OrderBy) > 0 {
		subplans, err := b.subplans(scope, ast.OrderExprs(q.OrderBy)...)
		if err != nil {
			return nil, err
		}
		sort := &Sort{Input: node, Subplans: subplans}
		for _, item := range q.OrderBy {
			sort.Keys = append(sort.Keys, format.OrderBy([]ast.OrderItem{item}))
		}
		node = sort
	}
	if q.Limit != nil || q.Offset != nil || q.Fetch != nil {
		limit := &Limit{Input: node}
		if q.Limit != nil {
			limit.Limit = format.Expr(q.Limit)
		}
		if q.Offset != nil {
			limit.Offset = format.Expr(q.Offset)
		}
		if q.Fetch != nil {
			limit.Fetch = "ALL"
			if q.Fetch.Count != nil {
				limit.Fetch = format.Expr(q.Fetch.Count)
			}
		}
		node = limit
	}
	if with != nil {
		with.Input = node
		node = with
	}
	return node, nil
}

func (b *builder) setExpr(body ast.SetExpr, scope *cteScope) (Node, error) {
	switch n := body.(type) {
	case *ast.Select:
		return b.selectBlock(n, scope, nil)
	case *ast.SetOp:
		left, err := b.setExpr(n.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := b.setExpr(n.Right, scope)
		if err != nil {
			return nil, err
		}
		return &SetOp{Op: n.Op, All: n.All, Left: left, Right: right}, nil
	case *ast.ParenQuery:
		return b.query(n.Query, scope)
	case *ast.Values:
		values := &Values{Rows: len(n.Rows)}
		for _, row := range n.Rows {
			subplans, err := b.subplans(scope, row...)
			if err != nil {
				return nil, err
			}
			values.Subplans = append(values.Subplans, subplans...)
		}
		return values, nil
	}
	return nil, fmt.Errorf("plan: unsupported query body %T", body)
}

// selectBlock plans one SELECT. orderBy belongs to the enclosing query and is
// considered for aggregate and window detection only.
func (b *builder) selectBlock(sel *ast.Select, scope *cteScope, orderBy []ast.OrderItem) (Node, error) {
	var node Node = &OneRow{}
	for i, item := range sel.From {
		from, err := b.fromItem(item, scope)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			node = from
			continue
		}
		node = &Join{Kind: "CROSS", Left: node, Right: from}
	}

	if sel.Where != nil {
		subplans, err := b.subplans(scope, sel.Where)
		if err != nil {
			return nil, err
		}
		node = &Filter{Condition: format.Expr(sel.Where), Input: node, Subplans: subplans}
	}

	items := ast.ItemExprs(sel.Items)
	orderExprs := ast.OrderExprs(orderBy)
	detect := append(append(append([]ast.Expr{}, items...), orderExprs...), sel.Having)
	aggregates := aggregateCalls(detect...)
	if len(sel.GroupBy) > 0 || sel.Having != nil || sel.Distinct || len(aggregates) > 0 {
		subplans, err := b.subplans(scope, sel.GroupBy...)
		if err != nil {
			return nil, err
		}
		agg := &Aggregate{Functions: aggregates, Distinct: sel.Distinct, Input: node, Subplans: subplans}
		for _, g := range sel.GroupBy {
			agg.GroupBy = append(agg.GroupBy, format.Expr(g))
		}
		node = agg
		if sel.Having != nil {
			subplans, err := b.subplans(scope, sel.Having)
			if err != nil {
				return nil, err
			}
			node = &Filter{Condition: format.Expr(sel.Having), Input: node, Subplans: subplans}
		}
	}

	windows := windowCalls(append(append([]ast.Expr{}, items...), orderExprs...)...)
	if len(windows) > 0 || len(sel.Windows) > 0 {
		node = &Window{Functions: windows, Input: node}
	}

	subplans, err := b.subplans(scope, items...)
	if err != nil {
		return nil, err
	}
	project := &Project{Input: node, Subplans: subplans}
	for _, item := range sel.Items {
		project.Columns = append(project.Columns, format.SelectItems([]ast.SelectItem{item}))
	}
	return project, nil
}

func (b *builder) fromItem(item ast.FromItem, scope *cteScope) (Node, error) {
	switch n := item.(type) {
	case *ast.TableRef:
		alias := ""
		if n.Alias != nil {
			alias = format.Ident(*n.Alias)
		}
		table := n.Table()
		if len(n.Name) == 1 && scope.has(table.Name) {
			return &CTEScan{Name: format.Ident(table), Alias: alias}, nil
		}
		var name strings.Builder
		for i, part := range n.Name {
			if i > 0 {
				name.WriteByte('.')
			}
			name.WriteString(format.Ident(part))
		}
		canonical := strings.ToUpper(table.Name)
		return &Scan{Name: name.String(), Table: canonical, Alias: alias, Columns: b.catalog[canonical]}, nil
	case *ast.DerivedTable:
		input, err := b.query(n.Query, scope)
		if err != nil {
			return nil, err
		}
		alias := ""
		if n.Alias != nil {
			alias = format.Ident(*n.Alias)
		}
		return &SubqueryAlias{Alias: alias, Lateral: n.Lateral, Input: input}, nil
	case *ast.Join:
		left, err := b.fromItem(n.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := b.fromItem(n.Right, scope)
		if err != nil {
			return nil, err
		}
		join := &Join{Kind: n.Kind, Natural: n.Natural, Left: left, Right: right}
		switch {
		case n.On != nil:
			join.Condition = format.Expr(n.On)
			subplans, err := b.subplans(scope, n.On)
			if err != nil {
				return nil, err
			}
			join.Subplans = subplans
		case len(n.Using) > 0:
			cols := make([]string, 0, len(n.Using))
			for _, c := range n.Using {
				cols = append(cols, format.Ident(c))
			}
			join.Condition = "USING (" + strings.Join(cols, ", ") + ")"
		}
		return join, nil
	}
	return nil, fmt.Errorf("plan: unsupported from item %T", item)
}

func (b *builder) subplans(scope *cteScope, exprs ...ast.Expr) ([]Node, error) {
	var out []Node
	for _, q := range ast.Queries(exprs...) {
		sub, err := b.query(q, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// aggregateCalls returns aggregate function names used at this query level.
func aggregateCalls(exprs ...ast.Expr) []string {
	var out []string
	for _, e := range exprs {
		ast.WalkExpr(e, func(x ast.Expr) bool {
			if call, ok := x.(*ast.FuncCall); ok && IsAggregate(call) {
				out = append(out, call.FuncName())
			}
			return true
		})
	}
	return out
}

// windowCalls returns window function names used at this query level.
func windowCalls(exprs ...ast.Expr) []string {
	var out []string
	for _, e := range exprs {
		ast.WalkExpr(e, func(x ast.Expr) bool {
			if call, ok := x.(*ast.FuncCall); ok && call.Over != nil {
				out = append(out, call.FuncName())
			}
			return true
		})
	}
	return out
}
