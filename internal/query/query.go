// Package query defines the immutable query values consumed by the cache: SQL
// text with an ordered list of typed parameters.
package query

import (
	"database/sql"
	"slices"
	"strings"
)

// Param is one bound parameter.
type Param struct {
	// Name is the binding name, with or without its ':', '@' or '$' prefix.
	// Empty or numeric names bind positionally.
	Name  string
	Value Value
}

// Named returns a parameter bound by name.
func Named(name string, v Value) Param {
	return Param{Name: name, Value: v}
}

// Positional returns parameters bound by position, in order.
func Positional(values ...Value) []Param {
	out := make([]Param, len(values))
	for i, v := range values {
		out[i] = Param{Value: v}
	}
	return out
}

// Query is SQL text with its parameters. The zero value is an empty query.
type Query struct {
	sql    string
	params []Param
}

// New creates a Query. params is copied.
func New(sql string, params ...Param) Query {
	return Query{sql: sql, params: slices.Clone(params)}
}

// SQL returns the statement text.
func (q Query) SQL() string { return q.sql }

// Params returns a copy of the parameters in binding order.
func (q Query) Params() []Param { return slices.Clone(q.params) }

// Len returns the number of parameters.
func (q Query) Len() int { return len(q.params) }

// Param returns the i-th parameter.
func (q Query) Param(i int) Param { return q.params[i] }

// Args returns the parameters as database/sql arguments. Named parameters
// become sql.NamedArg values.
func (q Query) Args() []any {
	args := make([]any, 0, len(q.params))
	for _, p := range q.params {
		name := bindName(p.Name)
		if name == "" {
			args = append(args, p.Value.Any())
			continue
		}
		args = append(args, sql.Named(name, p.Value.Any()))
	}
	return args
}

// bindName strips a parameter prefix and returns "" for positional names.
func bindName(name string) string {
	name = strings.TrimLeft(name, ":@$?")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return ""
	}
	return name
}
