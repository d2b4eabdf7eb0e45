package resultset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/electwix/querycache/internal/query"
)

// SQL type codes, numbered as java.sql.Types.
const (
	TypeBit                   = -7
	TypeTinyInt               = -6
	TypeBigInt                = -5
	TypeLongVarBinary         = -4
	TypeVarBinary             = -3
	TypeBinary                = -2
	TypeLongVarChar           = -1
	TypeNull                  = 0
	TypeChar                  = 1
	TypeNumeric               = 2
	TypeDecimal               = 3
	TypeInteger               = 4
	TypeSmallInt              = 5
	TypeFloat                 = 6
	TypeReal                  = 7
	TypeDouble                = 8
	TypeVarChar               = 12
	TypeBoolean               = 16
	TypeDate                  = 91
	TypeTime                  = 92
	TypeTimestamp             = 93
	TypeOther                 = 1111
	TypeBlob                  = 2004
	TypeClob                  = 2005
	TypeTimestampWithTimeZone = 2014
)

// typeCodes maps database type names, without length or precision, to codes.
var typeCodes = map[string]int{
	"BIGINT":            TypeBigInt,
	"BIGSERIAL":         TypeBigInt,
	"BINARY":            TypeBinary,
	"BIT":               TypeBit,
	"BLOB":              TypeBlob,
	"BOOL":              TypeBoolean,
	"BOOLEAN":           TypeBoolean,
	"BPCHAR":            TypeChar,
	"BYTEA":             TypeBinary,
	"CHAR":              TypeChar,
	"CHARACTER":         TypeChar,
	"CLOB":              TypeClob,
	"DATE":              TypeDate,
	"DATETIME":          TypeTimestamp,
	"DEC":               TypeDecimal,
	"DECIMAL":           TypeDecimal,
	"DOUBLE":            TypeDouble,
	"DOUBLE PRECISION":  TypeDouble,
	"FLOAT":             TypeDouble,
	"FLOAT4":            TypeReal,
	"FLOAT8":            TypeDouble,
	"INT":               TypeInteger,
	"INT2":              TypeSmallInt,
	"INT4":              TypeInteger,
	"INT8":              TypeBigInt,
	"INTEGER":           TypeInteger,
	"LONGBLOB":          TypeLongVarBinary,
	"LONGTEXT":          TypeLongVarChar,
	"MEDIUMINT":         TypeInteger,
	"MONEY":             TypeDecimal,
	"NCHAR":             TypeChar,
	"NUMERIC":           TypeNumeric,
	"NVARCHAR":          TypeVarChar,
	"REAL":              TypeReal,
	"SERIAL":            TypeInteger,
	"SMALLINT":          TypeSmallInt,
	"TEXT":              TypeVarChar,
	"TIME":              TypeTime,
	"TIMESTAMP":         TypeTimestamp,
	"TIMESTAMPTZ":       TypeTimestampWithTimeZone,
	"TINYINT":           TypeTinyInt,
	"UUID":              TypeOther,
	"VARBINARY":         TypeVarBinary,
	"VARCHAR":           TypeVarChar,
	"CHARACTER VARYING": TypeVarChar,
}

// TypeCode returns the code for a database type name such as "VARCHAR(20)"
// or "timestamp with time zone". Unknown names yield TypeOther and the empty
// name yields TypeNull.
func TypeCode(name string) int {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return TypeNull
	}
	if i := strings.IndexByte(upper, '('); i >= 0 {
		upper = strings.TrimSpace(upper[:i])
	}
	if strings.HasSuffix(upper, " WITH TIME ZONE") {
		return TypeTimestampWithTimeZone
	}
	upper = strings.TrimSuffix(upper, " WITHOUT TIME ZONE")
	upper = strings.TrimSuffix(upper, " UNSIGNED")
	if code, ok := typeCodes[upper]; ok {
		return code
	}
	return TypeOther
}

// inferTypeCode derives a code from a driver value when the driver reports
// no type name.
func inferTypeCode(raw any) int {
	switch raw.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case int8, int16, int32, uint8, uint16:
		return TypeInteger
	case int, int64, uint32, uint, uint64:
		return TypeBigInt
	case float32, float64:
		return TypeDouble
	case string:
		return TypeVarChar
	case []byte:
		return TypeVarBinary
	case time.Time:
		return TypeTimestamp
	case decimal.Decimal:
		return TypeDecimal
	}
	return TypeOther
}

// convert maps a raw driver value to a typed value for column col.
func convert(col Column, raw any) (query.Value, error) {
	if raw == nil {
		return query.Null(), nil
	}
	switch col.Type {
	case TypeTinyInt, TypeSmallInt, TypeInteger:
		if i, ok := asInt64(raw); ok && i >= -1<<31 && i < 1<<31 {
			return query.Int(int32(i)), nil
		}
	case TypeBigInt:
		if i, ok := asInt64(raw); ok {
			return query.Long(i), nil
		}
	case TypeBoolean, TypeBit:
		switch v := raw.(type) {
		case bool:
			return query.Bool(v), nil
		case int64:
			return query.Bool(v != 0), nil
		}
	case TypeNumeric, TypeDecimal:
		switch v := raw.(type) {
		case string:
			return parseDecimal(v)
		case []byte:
			return parseDecimal(string(v))
		case int64:
			return query.Decimal(decimal.NewFromInt(v)), nil
		case float64:
			return query.Decimal(decimal.NewFromFloat(v)), nil
		}
	case TypeDate:
		switch v := raw.(type) {
		case time.Time:
			return query.Date(v), nil
		case string:
			return parseTime(v, query.Date)
		case []byte:
			return parseTime(string(v), query.Date)
		}
	case TypeTimestamp, TypeTimestampWithTimeZone:
		switch v := raw.(type) {
		case time.Time:
			return query.Timestamp(v), nil
		case string:
			return parseTime(v, query.Timestamp)
		case []byte:
			return parseTime(string(v), query.Timestamp)
		}
	case TypeChar, TypeVarChar, TypeLongVarChar, TypeClob:
		switch v := raw.(type) {
		case string:
			return query.Text(v), nil
		case []byte:
			return query.Text(string(v)), nil
		}
	case TypeBinary, TypeVarBinary, TypeLongVarBinary, TypeBlob:
		if b, ok := raw.([]byte); ok {
			return query.Binary(b), nil
		}
	case TypeOther:
		if strings.EqualFold(col.TypeName, "UUID") {
			return parseUUID(raw)
		}
	}
	v, err := query.FromAny(raw)
	if err != nil {
		return query.Value{}, fmt.Errorf("resultset: column %s: %w", col.Name, err)
	}
	return v, nil
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case int:
		return int64(v), true
	case []byte:
		i, err := strconv.ParseInt(string(v), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func parseDecimal(s string) (query.Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return query.Value{}, fmt.Errorf("resultset: decimal %q: %w", s, err)
	}
	return query.Decimal(d), nil
}

// timeLayouts are the text forms drivers use for dates and timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	time.DateOnly,
}

func parseTime(s string, mk func(time.Time) query.Value) (query.Value, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return mk(t), nil
		}
	}
	return query.Value{}, fmt.Errorf("resultset: unrecognized time %q", s)
}

func parseUUID(raw any) (query.Value, error) {
	switch v := raw.(type) {
	case [16]byte:
		return query.UUID(uuid.UUID(v)), nil
	case uuid.UUID:
		return query.UUID(v), nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return query.Value{}, fmt.Errorf("resultset: uuid %q: %w", v, err)
		}
		return query.UUID(id), nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return query.Value{}, err
			}
			return query.UUID(id), nil
		}
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return query.Value{}, fmt.Errorf("resultset: uuid %q: %w", v, err)
		}
		return query.UUID(id), nil
	}
	return query.Value{}, fmt.Errorf("resultset: unsupported uuid value %T", raw)
}
