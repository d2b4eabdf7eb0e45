package resultset

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgTypes maps PostgreSQL type OIDs to SQL type codes and names.
var pgTypes = map[uint32]struct {
	code int
	name string
}{
	pgtype.BoolOID:        {TypeBoolean, "BOOL"},
	pgtype.ByteaOID:       {TypeBinary, "BYTEA"},
	pgtype.Int2OID:        {TypeSmallInt, "INT2"},
	pgtype.Int4OID:        {TypeInteger, "INT4"},
	pgtype.Int8OID:        {TypeBigInt, "INT8"},
	pgtype.TextOID:        {TypeVarChar, "TEXT"},
	pgtype.VarcharOID:     {TypeVarChar, "VARCHAR"},
	pgtype.BPCharOID:      {TypeChar, "BPCHAR"},
	pgtype.Float4OID:      {TypeReal, "FLOAT4"},
	pgtype.Float8OID:      {TypeDouble, "FLOAT8"},
	pgtype.NumericOID:     {TypeNumeric, "NUMERIC"},
	pgtype.DateOID:        {TypeDate, "DATE"},
	pgtype.TimeOID:        {TypeTime, "TIME"},
	pgtype.TimestampOID:   {TypeTimestamp, "TIMESTAMP"},
	pgtype.TimestamptzOID: {TypeTimestampWithTimeZone, "TIMESTAMPTZ"},
	pgtype.UUIDOID:        {TypeOther, "UUID"},
}

// FromPgxRows reads every remaining row of rows into a Table and closes rows.
func FromPgxRows(rows pgx.Rows) (*Table, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]Column, len(fields))
	for i, fd := range fields {
		col := Column{Name: fd.Name, Type: TypeOther}
		if t, ok := pgTypes[fd.DataTypeOID]; ok {
			col.Type, col.TypeName = t.code, t.name
		}
		columns[i] = col
	}

	var raw [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("resultset: values: %w", err)
		}
		for i, v := range values {
			n, ok := v.(pgtype.Numeric)
			if !ok {
				continue
			}
			d, err := numericDecimal(n)
			if err != nil {
				return nil, fmt.Errorf("resultset: column %s: %w", columns[i].Name, err)
			}
			values[i] = d
		}
		raw = append(raw, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resultset: rows: %w", err)
	}
	return build(columns, raw)
}

// numericDecimal converts a numeric to a decimal, or nil for NULL.
func numericDecimal(n pgtype.Numeric) (any, error) {
	switch {
	case !n.Valid:
		return nil, nil
	case n.NaN:
		return nil, fmt.Errorf("NaN is not representable as a decimal")
	case n.InfinityModifier != pgtype.Finite:
		return nil, fmt.Errorf("infinity is not representable as a decimal")
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
