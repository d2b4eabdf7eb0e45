// Package resultset holds immutable tabular query results and materializes
// them from database/sql and pgx row streams.
package resultset

import (
	"fmt"
	"maps"
	"slices"

	"github.com/electwix/querycache/internal/query"
)

// Column describes one result column.
type Column struct {
	Name string
	// Type is the SQL type code, numbered as java.sql.Types.
	Type int
	// TypeName is the database type name reported by the driver, if any.
	TypeName string
}

// Row maps column names to values.
type Row map[string]query.Value

// Table is an immutable query result. A *Table is safe to share between
// goroutines.
type Table struct {
	columns []Column
	rows    []Row
}

// New creates a Table holding copies of columns and rows.
func New(columns []Column, rows []Row) *Table {
	t := &Table{columns: slices.Clone(columns), rows: make([]Row, len(rows))}
	for i, row := range rows {
		t.rows[i] = maps.Clone(row)
	}
	return t
}

// Columns returns a copy of the column descriptors.
func (t *Table) Columns() []Column { return slices.Clone(t.columns) }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of row i.
func (t *Table) Row(i int) Row { return maps.Clone(t.rows[i]) }

// Rows returns copies of every row.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, row := range t.rows {
		out[i] = maps.Clone(row)
	}
	return out
}

// Value returns the value of column in row i.
func (t *Table) Value(i int, column string) (query.Value, bool) {
	v, ok := t.rows[i][column]
	return v, ok
}

// Equal reports whether t and o hold the same columns and values.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !slices.Equal(t.columns, o.columns) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.rows {
		if !maps.EqualFunc(t.rows[i], o.rows[i], query.Value.Equal) {
			return false
		}
	}
	return true
}

// Builder accumulates rows for a Table.
type Builder struct {
	columns []Column
	rows    []Row
}

// NewBuilder starts a table with the given columns.
func NewBuilder(columns ...Column) *Builder {
	return &Builder{columns: slices.Clone(columns)}
}

// Append adds a row given values in column order.
func (b *Builder) Append(values ...query.Value) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("resultset: row has %d values, table has %d columns", len(values), len(b.columns))
	}
	row := make(Row, len(values))
	for i, v := range values {
		row[b.columns[i].Name] = v
	}
	b.rows = append(b.rows, row)
	return nil
}

// Build returns the table. The Builder must not be used afterwards.
func (b *Builder) Build() *Table {
	t := &Table{columns: b.columns, rows: b.rows}
	b.columns, b.rows = nil, nil
	return t
}
