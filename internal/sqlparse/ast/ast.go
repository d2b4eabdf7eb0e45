// Package ast defines the syntax tree produced for SELECT statements.
//
// Identifiers are stored in canonical form: unquoted names are upper-cased and
// quoted names keep their spelling, so two spellings that resolve to the same
// object compare equal. Quoted records whether the source used delimiters.
package ast

// Node is implemented by every syntax tree node.
type Node interface {
	node()
}

// Expr is a scalar expression.
type Expr interface {
	Node
	expr()
}

// SetExpr is the body of a query: a SELECT block, a set operation or a
// parenthesized query.
type SetExpr interface {
	Node
	setExpr()
}

// FromItem is an entry in a FROM clause.
type FromItem interface {
	Node
	fromItem()
}

// Ident is a canonical identifier.
type Ident struct {
	Name   string
	Quoted bool
}

// Query is a complete query expression with optional WITH, ORDER BY and
// pagination clauses.
type Query struct {
	With    *With
	Body    SetExpr
	OrderBy []OrderItem
	Limit   Expr
	Offset  Expr
	Fetch   *Fetch
}

// With holds common table expressions.
type With struct {
	Recursive bool
	CTEs      []CTE
}

// CTE is a named query in a WITH clause.
type CTE struct {
	Name    Ident
	Columns []Ident
	Query   *Query
}

// Fetch is the FETCH FIRST|NEXT n ROWS ONLY|WITH TIES clause.
type Fetch struct {
	Count    Expr
	Percent  bool
	WithTies bool
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr  Expr
	Desc  bool
	Nulls string // "", "FIRST" or "LAST"
}

// Select is a single SELECT block.
type Select struct {
	Distinct   bool
	DistinctOn []Expr
	Items      []SelectItem
	From       []FromItem
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	Windows    []NamedWindow
}

// SelectItem is one projection entry. Exactly one of Star or Expr is set.
type SelectItem struct {
	Star  *Star
	Expr  Expr
	Alias *Ident
}

// Star is a wildcard projection, optionally qualified (t.*).
type Star struct {
	Qualifier []Ident
}

// NamedWindow is a WINDOW clause definition.
type NamedWindow struct {
	Name Ident
	Spec *WindowSpec
}

// SetOp combines two query bodies with UNION, INTERSECT or EXCEPT.
type SetOp struct {
	Op    string
	All   bool
	Left  SetExpr
	Right SetExpr
}

// ParenQuery is a parenthesized query used as a set operand.
type ParenQuery struct {
	Query *Query
}

// Values is a VALUES row constructor used as a query body.
type Values struct {
	Rows [][]Expr
}

// TableRef references a named relation.
type TableRef struct {
	Name          []Ident // schema-qualified parts, last element is the table
	Alias         *Ident
	ColumnAliases []Ident
}

// Table returns the unqualified relation name.
func (t *TableRef) Table() Ident {
	return t.Name[len(t.Name)-1]
}

// DerivedTable is a subquery in FROM.
type DerivedTable struct {
	Lateral       bool
	Query         *Query
	Alias         *Ident
	ColumnAliases []Ident
}

// Join combines two FROM items.
type Join struct {
	Kind    string // INNER, LEFT, RIGHT, FULL or CROSS
	Natural bool
	Left    FromItem
	Right   FromItem
	On      Expr
	Using   []Ident
}

// ColumnRef is a possibly qualified column reference.
type ColumnRef struct {
	Parts []Ident
}

// Column returns the referenced column name.
func (c *ColumnRef) Column() Ident {
	return c.Parts[len(c.Parts)-1]
}

// Qualifier returns the relation qualifier, or nil for bare names.
func (c *ColumnRef) Qualifier() []Ident {
	return c.Parts[:len(c.Parts)-1]
}

// LiteralKind classifies literal values.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBlob
	LiteralBool
	LiteralNull
)

// Literal is a constant. Text is the source spelling (quotes included for strings).
type Literal struct {
	Kind LiteralKind
	Text string
}

// TypedLiteral is a literal prefixed with a type name, e.g. DATE '2024-01-01'.
type TypedLiteral struct {
	Type  string
	Value string
}

// Interval is an INTERVAL literal.
type Interval struct {
	Value string
	Unit  string
}

// Param is a bind placeholder.
type Param struct {
	Text string
}

// Unary applies a prefix operator.
type Unary struct {
	Op string
	X  Expr
}

// Binary applies an infix operator.
type Binary struct {
	Op string
	L  Expr
	R  Expr
}

// Paren is a parenthesized expression.
type Paren struct {
	X Expr
}

// Tuple is a parenthesized expression list, e.g. (a, b) IN (...).
type Tuple struct {
	Items []Expr
}

// FuncCall is a function invocation, including aggregates and window functions.
type FuncCall struct {
	Name        []Ident
	Distinct    bool
	Star        bool
	Args        []Expr
	OrderBy     []OrderItem
	WithinGroup []OrderItem
	Filter      Expr
	Over        *WindowSpec
}

// FuncName returns the unqualified function name.
func (f *FuncCall) FuncName() string {
	return f.Name[len(f.Name)-1].Name
}

// WindowSpec is an OVER clause body or a named window reference.
type WindowSpec struct {
	Ref         *Ident
	PartitionBy []Expr
	OrderBy     []OrderItem
	Frame       string
}

// Subquery is a scalar or row subquery.
type Subquery struct {
	Query *Query
}

// Exists is an EXISTS predicate.
type Exists struct {
	Not   bool
	Query *Query
}

// InList is an IN predicate over an expression list.
type InList struct {
	X    Expr
	Not  bool
	List []Expr
}

// InSubquery is an IN predicate over a subquery.
type InSubquery struct {
	X     Expr
	Not   bool
	Query *Query
}

// Quantified is a comparison against ANY/SOME/ALL of a subquery.
type Quantified struct {
	X          Expr
	Op         string
	Quantifier string
	Query      *Query
}

// Between is a BETWEEN predicate.
type Between struct {
	X   Expr
	Not bool
	Lo  Expr
	Hi  Expr
}

// Like is a LIKE or ILIKE predicate.
type Like struct {
	X       Expr
	Not     bool
	Op      string
	Pattern Expr
	Escape  Expr
}

// Is is an IS [NOT] NULL|TRUE|FALSE|UNKNOWN|DISTINCT FROM predicate.
type Is struct {
	X      Expr
	Not    bool
	Target string // NULL, TRUE, FALSE, UNKNOWN or DISTINCT FROM
	From   Expr   // set for DISTINCT FROM
}

// Extract is EXTRACT(field FROM x).
type Extract struct {
	Field string
	X     Expr
}

// Case is a CASE expression.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
}

// When is one CASE arm.
type When struct {
	Cond   Expr
	Result Expr
}

// Cast converts an expression to a type, via CAST(x AS t) or x::t.
type Cast struct {
	X      Expr
	Type   string
	Suffix bool
}

func (*Query) node()        {}
func (*Select) node()       {}
func (*SetOp) node()        {}
func (*ParenQuery) node()   {}
func (*Values) node()       {}
func (*TableRef) node()     {}
func (*DerivedTable) node() {}
func (*Join) node()         {}
func (*ColumnRef) node()    {}
func (*Literal) node()      {}
func (*TypedLiteral) node() {}
func (*Interval) node()     {}
func (*Param) node()        {}
func (*Unary) node()        {}
func (*Binary) node()       {}
func (*Paren) node()        {}
func (*Tuple) node()        {}
func (*FuncCall) node()     {}
func (*Subquery) node()     {}
func (*Exists) node()       {}
func (*InList) node()       {}
func (*InSubquery) node()   {}
func (*Quantified) node()   {}
func (*Between) node()      {}
func (*Like) node()         {}
func (*Is) node()           {}
func (*Case) node()         {}
func (*Extract) node()      {}
func (*Cast) node()         {}

func (*Select) setExpr()     {}
func (*SetOp) setExpr()      {}
func (*ParenQuery) setExpr() {}
func (*Values) setExpr()     {}

func (*TableRef) fromItem()     {}
func (*DerivedTable) fromItem() {}
func (*Join) fromItem()         {}

func (*ColumnRef) expr()    {}
func (*Literal) expr()      {}
func (*TypedLiteral) expr() {}
func (*Interval) expr()     {}
func (*Param) expr()        {}
func (*Unary) expr()        {}
func (*Binary) expr()       {}
func (*Paren) expr()        {}
func (*Tuple) expr()        {}
func (*FuncCall) expr()     {}
func (*Subquery) expr()     {}
func (*Exists) expr()       {}
func (*InList) expr()       {}
func (*InSubquery) expr()   {}
func (*Quantified) expr()   {}
func (*Between) expr()      {}
func (*Like) expr()         {}
func (*Is) expr()           {}
func (*Case) expr()         {}
func (*Extract) expr()      {}
func (*Cast) expr()         {}
