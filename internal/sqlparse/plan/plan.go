// Package plan builds a minimal logical plan for parsed queries.
//
// The plan exposes the relational operators a query needs (scans, joins,
// filters, aggregation, windowing, sorting, limits and set operations) so that
// callers can reason about query semantics independently of how the SQL was
// spelled. A view-like derived table that aggregates still yields an Aggregate
// node, even when the outer query looks like a plain projection.
package plan

import (
	"fmt"
	"strings"
)

// Node is a logical operator.
type Node interface {
	// Children returns inputs followed by plans of nested subqueries.
	Children() []Node
	// Describe returns a one-line label for the operator.
	Describe() string
}

// OneRow produces a single empty row, as for SELECT without FROM.
type OneRow struct{}

// Scan reads a base table.
type Scan struct {
	Name    string // qualified display name
	Table   string // canonical unqualified table name
	Alias   string
	Columns []string
}

// CTEScan reads a common table expression defined in an enclosing WITH.
type CTEScan struct {
	Name  string
	Alias string
}

// Values produces literal rows.
type Values struct {
	Rows     int
	Subplans []Node
}

// SubqueryAlias names the output of a derived table.
type SubqueryAlias struct {
	Alias   string
	Lateral bool
	Input   Node
}

// Join combines two inputs.
type Join struct {
	Kind      string
	Natural   bool
	Condition string
	Left      Node
	Right     Node
	Subplans  []Node
}

// Filter keeps rows satisfying Condition.
type Filter struct {
	Condition string
	Input     Node
	Subplans  []Node
}

// Aggregate groups rows and computes aggregate functions. Distinct marks
// duplicate elimination from SELECT DISTINCT.
type Aggregate struct {
	GroupBy   []string
	Functions []string
	Distinct  bool
	Input     Node
	Subplans  []Node
}

// Window computes window functions over its input.
type Window struct {
	Functions []string
	Input     Node
}

// Project computes the output columns.
type Project struct {
	Columns  []string
	Input    Node
	Subplans []Node
}

// Sort orders rows.
type Sort struct {
	Keys     []string
	Input    Node
	Subplans []Node
}

// Limit restricts the number of rows.
type Limit struct {
	Limit  string
	Offset string
	Fetch  string
	Input  Node
}

// SetOp combines two inputs with UNION, INTERSECT or EXCEPT.
type SetOp struct {
	Op    string
	All   bool
	Left  Node
	Right Node
}

// With binds common table expressions for its input.
type With struct {
	Recursive   bool
	Definitions []*Definition
	Input       Node
}

// Definition is one common table expression.
type Definition struct {
	Name string
	Plan Node
}

func (n *OneRow) Children() []Node        { return nil }
func (n *Scan) Children() []Node          { return nil }
func (n *CTEScan) Children() []Node       { return nil }
func (n *Values) Children() []Node        { return n.Subplans }
func (n *SubqueryAlias) Children() []Node { return []Node{n.Input} }
func (n *Join) Children() []Node          { return append([]Node{n.Left, n.Right}, n.Subplans...) }
func (n *Filter) Children() []Node        { return append([]Node{n.Input}, n.Subplans...) }
func (n *Aggregate) Children() []Node     { return append([]Node{n.Input}, n.Subplans...) }
func (n *Window) Children() []Node        { return []Node{n.Input} }
func (n *Project) Children() []Node       { return append([]Node{n.Input}, n.Subplans...) }
func (n *Sort) Children() []Node          { return append([]Node{n.Input}, n.Subplans...) }
func (n *Limit) Children() []Node         { return []Node{n.Input} }
func (n *SetOp) Children() []Node         { return []Node{n.Left, n.Right} }
func (n *With) Children() []Node {
	out := make([]Node, 0, len(n.Definitions)+1)
	for _, def := range n.Definitions {
		out = append(out, def)
	}
	return append(out, n.Input)
}
func (n *Definition) Children() []Node { return []Node{n.Plan} }

func (n *OneRow) Describe() string { return "OneRow" }

func (n *Scan) Describe() string {
	var b strings.Builder
	b.WriteString("Scan ")
	b.WriteString(n.Name)
	if n.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(n.Alias)
	}
	if len(n.Columns) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(n.Columns, ", "))
	}
	return b.String()
}

func (n *CTEScan) Describe() string {
	if n.Alias != "" {
		return "CTEScan " + n.Name + " AS " + n.Alias
	}
	return "CTEScan " + n.Name
}

func (n *Values) Describe() string { return fmt.Sprintf("Values rows=%d", n.Rows) }

func (n *SubqueryAlias) Describe() string {
	label := "SubqueryAlias"
	if n.Lateral {
		label = "LateralSubquery"
	}
	if n.Alias != "" {
		return label + " " + n.Alias
	}
	return label
}

func (n *Join) Describe() string {
	kind := n.Kind
	if n.Natural {
		kind = "NATURAL " + kind
	}
	if n.Condition != "" {
		return fmt.Sprintf("Join %s [%s]", kind, n.Condition)
	}
	return "Join " + kind
}

func (n *Filter) Describe() string { return "Filter [" + n.Condition + "]" }

func (n *Aggregate) Describe() string {
	var parts []string
	if n.Distinct {
		parts = append(parts, "distinct")
	}
	if len(n.GroupBy) > 0 {
		parts = append(parts, "group=["+strings.Join(n.GroupBy, ", ")+"]")
	}
	if len(n.Functions) > 0 {
		parts = append(parts, "functions=["+strings.Join(n.Functions, ", ")+"]")
	}
	if len(parts) == 0 {
		return "Aggregate"
	}
	return "Aggregate " + strings.Join(parts, " ")
}

func (n *Window) Describe() string {
	return "Window [" + strings.Join(n.Functions, ", ") + "]"
}

func (n *Project) Describe() string {
	return "Project [" + strings.Join(n.Columns, ", ") + "]"
}

func (n *Sort) Describe() string { return "Sort [" + strings.Join(n.Keys, ", ") + "]" }

func (n *Limit) Describe() string {
	var parts []string
	if n.Limit != "" {
		parts = append(parts, "limit="+n.Limit)
	}
	if n.Offset != "" {
		parts = append(parts, "offset="+n.Offset)
	}
	if n.Fetch != "" {
		parts = append(parts, "fetch="+n.Fetch)
	}
	return "Limit " + strings.Join(parts, " ")
}

func (n *SetOp) Describe() string {
	if n.All {
		return n.Op + " ALL"
	}
	return n.Op
}

func (n *With) Describe() string {
	if n.Recursive {
		return "With RECURSIVE"
	}
	return "With"
}

func (n *Definition) Describe() string { return "Definition " + n.Name }

// Walk visits n and its descendants depth-first, including subquery plans.
// fn returning false skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Children() {
		Walk(child, fn)
	}
}

// Explain renders the plan as an indented tree, one operator per line.
func Explain(n Node) string {
	var b strings.Builder
	explain(&b, n, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func explain(b *strings.Builder, n Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Describe())
	b.WriteByte('\n')
	for _, child := range n.Children() {
		explain(b, child, depth+1)
	}
}
