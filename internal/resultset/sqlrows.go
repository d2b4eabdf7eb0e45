package resultset

import (
	"database/sql"
	"fmt"

	"github.com/electwix/querycache/internal/query"
)

// FromSQLRows reads every remaining row of rows into a Table. Column types
// come from the driver's type names; columns without one take the type of
// their first non-NULL value. rows is not closed.
func FromSQLRows(rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("resultset: column types: %w", err)
	}
	columns := make([]Column, len(types))
	for i, ct := range types {
		columns[i] = Column{Name: ct.Name(), TypeName: ct.DatabaseTypeName(), Type: TypeCode(ct.DatabaseTypeName())}
	}

	var raw [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("resultset: scan: %w", err)
		}
		raw = append(raw, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resultset: rows: %w", err)
	}
	return build(columns, raw)
}

// build converts raw driver rows. Columns with TypeNull are resolved from
// their first non-NULL value.
func build(columns []Column, raw [][]any) (*Table, error) {
	for i := range columns {
		if columns[i].Type != TypeNull {
			continue
		}
		for _, row := range raw {
			if row[i] != nil {
				columns[i].Type = inferTypeCode(row[i])
				break
			}
		}
	}
	b := NewBuilder(columns...)
	values := make([]query.Value, len(columns))
	for _, row := range raw {
		for i, cell := range row {
			v, err := convert(columns[i], cell)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if err := b.Append(values...); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
