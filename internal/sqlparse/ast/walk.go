package ast

// WalkExpr visits e and its sub-expressions in depth-first order. fn returning
// false skips the children of the current node. Queries nested in Subquery,
// Exists, InSubquery and Quantified are not entered; use Queries to reach them.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		WalkExpr(n.X, fn)
	case *Binary:
		WalkExpr(n.L, fn)
		WalkExpr(n.R, fn)
	case *Paren:
		WalkExpr(n.X, fn)
	case *Tuple:
		walkExprs(n.Items, fn)
	case *FuncCall:
		walkExprs(n.Args, fn)
		walkOrder(n.OrderBy, fn)
		walkOrder(n.WithinGroup, fn)
		WalkExpr(n.Filter, fn)
		if n.Over != nil {
			walkExprs(n.Over.PartitionBy, fn)
			walkOrder(n.Over.OrderBy, fn)
		}
	case *InList:
		WalkExpr(n.X, fn)
		walkExprs(n.List, fn)
	case *InSubquery:
		WalkExpr(n.X, fn)
	case *Quantified:
		WalkExpr(n.X, fn)
	case *Between:
		WalkExpr(n.X, fn)
		WalkExpr(n.Lo, fn)
		WalkExpr(n.Hi, fn)
	case *Like:
		WalkExpr(n.X, fn)
		WalkExpr(n.Pattern, fn)
		WalkExpr(n.Escape, fn)
	case *Is:
		WalkExpr(n.X, fn)
		WalkExpr(n.From, fn)
	case *Case:
		WalkExpr(n.Operand, fn)
		for _, w := range n.Whens {
			WalkExpr(w.Cond, fn)
			WalkExpr(w.Result, fn)
		}
		WalkExpr(n.Else, fn)
	case *Cast:
		WalkExpr(n.X, fn)
	case *Extract:
		WalkExpr(n.X, fn)
	}
}

func walkExprs(exprs []Expr, fn func(Expr) bool) {
	for _, e := range exprs {
		WalkExpr(e, fn)
	}
}

func walkOrder(items []OrderItem, fn func(Expr) bool) {
	for _, item := range items {
		WalkExpr(item.Expr, fn)
	}
}

// Queries returns the queries nested directly in the given expressions, in
// source order, without descending into those queries.
func Queries(exprs ...Expr) []*Query {
	var out []*Query
	for _, e := range exprs {
		WalkExpr(e, func(x Expr) bool {
			switch n := x.(type) {
			case *Subquery:
				out = append(out, n.Query)
			case *Exists:
				out = append(out, n.Query)
			case *InSubquery:
				out = append(out, n.Query)
			case *Quantified:
				out = append(out, n.Query)
			}
			return true
		})
	}
	return out
}

// OrderExprs returns the expressions of ORDER BY keys.
func OrderExprs(items []OrderItem) []Expr {
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		out = append(out, item.Expr)
	}
	return out
}

// ItemExprs returns the non-wildcard projection expressions.
func ItemExprs(items []SelectItem) []Expr {
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		if item.Expr != nil {
			out = append(out, item.Expr)
		}
	}
	return out
}
