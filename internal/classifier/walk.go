package classifier

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/format"
	"github.com/electwix/querycache/internal/sqlparse/plan"
	"github.com/electwix/querycache/internal/store"
)

// walker collects dependencies of a statement and records the first reason
// that makes it uncacheable.
type walker struct {
	views   map[string][]string
	tables  map[string]struct{}
	columns map[string]struct{}
	byTable map[string]map[string]struct{}
	reason  string
	detail  string
}

func newWalker(views map[string][]string) *walker {
	return &walker{
		views:   views,
		tables:  make(map[string]struct{}),
		columns: make(map[string]struct{}),
		byTable: make(map[string]map[string]struct{}),
	}
}

func (w *walker) reject(reason, detail string) {
	if w.reason == "" {
		w.reason, w.detail = reason, detail
	}
}

func (w *walker) addTable(table string) {
	if table != "" {
		w.tables[table] = struct{}{}
	}
}

func (w *walker) addColumn(table, column string) {
	if table == "" {
		w.columns[column] = struct{}{}
		return
	}
	w.columns[table+"."+column] = struct{}{}
	cols, ok := w.byTable[table]
	if !ok {
		cols = make(map[string]struct{})
		w.byTable[table] = cols
	}
	cols[column] = struct{}{}
}

// catalog describes every base table with the columns the query uses.
func (w *walker) catalog() plan.Catalog {
	out := make(plan.Catalog, len(w.byTable))
	for table, cols := range w.byTable {
		out[table] = slices.Sorted(maps.Keys(cols))
	}
	return out
}

func (w *walker) query(q *ast.Query, parent *scope) {
	s := parent
	if q.With != nil {
		s = newScope(parent)
		for _, cte := range q.With.CTEs {
			if q.With.Recursive {
				s.addCTE(cte.Name.Name)
			}
			w.query(cte.Query, s)
			s.addCTE(cte.Name.Name)
		}
	}
	w.body(q.Body, s, q.OrderBy)
	w.expr(q.Limit, s, nil)
	w.expr(q.Offset, s, nil)
	if q.Fetch != nil {
		w.expr(q.Fetch.Count, s, nil)
	}
}

// body walks a query body. ORDER BY keys of a plain SELECT resolve against
// its FROM clause; keys of other bodies name output columns.
func (w *walker) body(body ast.SetExpr, s *scope, orderBy []ast.OrderItem) {
	switch n := body.(type) {
	case *ast.Select:
		w.selectBlock(n, s, orderBy)
		return
	case *ast.SetOp:
		w.body(n.Left, s, nil)
		w.body(n.Right, s, nil)
	case *ast.ParenQuery:
		w.query(n.Query, s)
	case *ast.Values:
		for _, row := range n.Rows {
			w.exprs(row, s, nil)
		}
	default:
		w.reject(ReasonInternal, fmt.Sprintf("unsupported query body %T", body))
		return
	}
	w.exprs(ast.OrderExprs(orderBy), newScope(s), nil)
}

func (w *walker) selectBlock(sel *ast.Select, parent *scope, orderBy []ast.OrderItem) {
	s := newScope(parent)
	for _, item := range sel.From {
		w.fromItem(item, s)
	}

	aliases := make(map[string]struct{})
	for _, item := range sel.Items {
		if item.Star != nil {
			w.reject(ReasonWildcard, format.SelectItems([]ast.SelectItem{item}))
			continue
		}
		w.expr(item.Expr, s, nil)
		if item.Alias != nil {
			aliases[normalizeName(item.Alias.Name)] = struct{}{}
		}
	}
	w.exprs(sel.DistinctOn, s, nil)
	w.expr(sel.Where, s, nil)
	w.exprs(sel.GroupBy, s, aliases)
	w.expr(sel.Having, s, aliases)
	for _, win := range sel.Windows {
		if win.Spec != nil {
			w.exprs(win.Spec.PartitionBy, s, aliases)
			w.exprs(ast.OrderExprs(win.Spec.OrderBy), s, aliases)
		}
	}
	w.exprs(ast.OrderExprs(orderBy), s, aliases)
}

func (w *walker) fromItem(item ast.FromItem, s *scope) {
	switch n := item.(type) {
	case *ast.TableRef:
		name := normalizeName(n.Table().Name)
		alias := name
		if n.Alias != nil {
			alias = n.Alias.Name
		}
		if len(n.Name) == 1 && s.hasCTE(name) {
			s.addRelation(alias, &relation{})
			return
		}
		table := store.NormalizeTable(name)
		w.addTable(table)
		for _, base := range w.views[table] {
			w.addTable(base)
		}
		s.addRelation(alias, &relation{table: table})
	case *ast.DerivedTable:
		if n.Lateral {
			w.query(n.Query, s)
		} else {
			w.query(n.Query, s.parent)
		}
		if n.Alias != nil {
			s.addRelation(n.Alias.Name, &relation{})
		}
	case *ast.Join:
		w.fromItem(n.Left, s)
		w.fromItem(n.Right, s)
		w.expr(n.On, s, nil)
		for _, col := range n.Using {
			w.addColumn("", normalizeName(col.Name))
		}
	default:
		w.reject(ReasonInternal, fmt.Sprintf("unsupported from item %T", item))
	}
}

func (w *walker) exprs(exprs []ast.Expr, s *scope, aliases map[string]struct{}) {
	for _, e := range exprs {
		w.expr(e, s, aliases)
	}
}

// expr walks e and the queries nested in it. Nested queries see s as their
// enclosing scope.
func (w *walker) expr(e ast.Expr, s *scope, aliases map[string]struct{}) {
	if e == nil {
		return
	}
	ast.WalkExpr(e, func(x ast.Expr) bool {
		switch n := x.(type) {
		case *ast.ColumnRef:
			w.column(n, s, aliases)
		case *ast.FuncCall:
			if isNondeterministicCall(n) {
				w.reject(ReasonNondeterministic, strings.ToUpper(n.FuncName()))
			}
		case *ast.TypedLiteral:
			if isRelativeTimeLiteral(n.Value) {
				w.reject(ReasonNondeterministic, format.Expr(n))
			}
		case *ast.Cast:
			if lit, ok := n.X.(*ast.Literal); ok && lit.Kind == ast.LiteralString &&
				isTemporalType(n.Type) && isRelativeTimeLiteral(lit.Text) {
				w.reject(ReasonNondeterministic, format.Expr(n))
			}
		}
		return true
	})
	for _, q := range ast.Queries(e) {
		w.query(q, s)
	}
}

func (w *walker) column(ref *ast.ColumnRef, s *scope, aliases map[string]struct{}) {
	col := ref.Column()
	name := normalizeName(col.Name)
	qualifier := ref.Qualifier()
	if len(qualifier) == 0 {
		if !col.Quoted {
			if _, ok := niladicFunctions[name]; ok {
				w.reject(ReasonNondeterministic, name)
				return
			}
		}
		if _, ok := aliases[name]; ok {
			return
		}
		if rel, ok := s.single(); ok {
			w.addColumn(rel.table, name)
			return
		}
		w.addColumn("", name)
		return
	}
	rel, ok := s.lookup(qualifier[len(qualifier)-1].Name)
	if !ok {
		w.reject(ReasonUnresolved, format.Expr(ref))
		w.addColumn("", name)
		return
	}
	w.addColumn(rel.table, name)
}
