package query

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the declared type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindLong
	KindBool
	KindDecimal
	KindDate
	KindTimestamp
	KindBinary
	KindUUID
)

var kindNames = [...]string{
	KindNull:      "null",
	KindText:      "text",
	KindInt:       "int",
	KindLong:      "long",
	KindBool:      "bool",
	KindDecimal:   "decimal",
	KindDate:      "date",
	KindTimestamp: "timestamp",
	KindBinary:    "binary",
	KindUUID:      "uuid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind resolves a kind name such as "int" or "timestamp".
func ParseKind(name string) (Kind, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == lower {
			return Kind(k), true
		}
	}
	switch lower {
	case "string", "varchar":
		return KindText, true
	case "integer", "int32":
		return KindInt, true
	case "bigint", "int64":
		return KindLong, true
	case "boolean":
		return KindBool, true
	case "numeric":
		return KindDecimal, true
	case "bytes", "blob":
		return KindBinary, true
	}
	return KindNull, false
}

const secondsPerDay = 24 * 60 * 60

// Value is an immutable typed parameter or column value. The zero Value is
// NULL.
type Value struct {
	kind Kind
	str  string
	num  int64 // int, long, bool and date (days since the Unix epoch)
	dec  decimal.Decimal
	ts   time.Time
	bin  []byte
	id   uuid.UUID
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Int returns a 32-bit integer value.
func Int(i int32) Value { return Value{kind: KindInt, num: int64(i)} }

// Long returns a 64-bit integer value.
func Long(i int64) Value { return Value{kind: KindLong, num: i} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Decimal returns an exact decimal value.
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

// Date returns the calendar date of t in t's location.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Value{kind: KindDate, num: midnight.Unix() / secondsPerDay}
}

// Timestamp returns an instant, stored in UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t.UTC()} }

// Binary returns a binary value holding a copy of b.
func Binary(b []byte) Value {
	return Value{kind: KindBinary, bin: bytes.Clone(b)}
}

// UUID returns a UUID value.
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, id: id} }

// Kind returns the declared type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the text of a text value.
func (v Value) AsString() string { return v.str }

// AsInt64 returns the integer of an int, long or bool value, or the day
// number of a date.
func (v Value) AsInt64() int64 { return v.num }

// AsBool returns the boolean of a bool value.
func (v Value) AsBool() bool { return v.kind == KindBool && v.num != 0 }

// AsDecimal returns the decimal of a decimal value.
func (v Value) AsDecimal() decimal.Decimal { return v.dec }

// AsTime returns midnight UTC of a date or the instant of a timestamp.
func (v Value) AsTime() time.Time {
	switch v.kind {
	case KindDate:
		return time.Unix(v.num*secondsPerDay, 0).UTC()
	case KindTimestamp:
		return v.ts
	}
	return time.Time{}
}

// AsBytes returns a copy of the bytes of a binary value.
func (v Value) AsBytes() []byte { return bytes.Clone(v.bin) }

// AsUUID returns the UUID of a uuid value.
func (v Value) AsUUID() uuid.UUID { return v.id }

// Equal reports whether v and o have the same kind and the same value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return v.str == o.str
	case KindInt, KindLong, KindBool, KindDate:
		return v.num == o.num
	case KindDecimal:
		return v.dec.Equal(o.dec)
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindBinary:
		return bytes.Equal(v.bin, o.bin)
	case KindUUID:
		return v.id == o.id
	}
	return false
}

// Any returns v as a value accepted by database/sql drivers.
func (v Value) Any() any {
	switch v.kind {
	case KindText:
		return v.str
	case KindInt:
		return int32(v.num)
	case KindLong:
		return v.num
	case KindBool:
		return v.num != 0
	case KindDecimal:
		return v.dec
	case KindDate, KindTimestamp:
		return v.AsTime()
	case KindBinary:
		return bytes.Clone(v.bin)
	case KindUUID:
		return v.id
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindText:
		return v.str
	case KindInt, KindLong:
		return strconv.FormatInt(v.num, 10)
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindDecimal:
		return v.dec.String()
	case KindDate:
		return v.AsTime().Format(time.DateOnly)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case KindBinary:
		return hex.EncodeToString(v.bin)
	case KindUUID:
		return v.id.String()
	}
	return ""
}

// FromAny converts a Go or driver value. Floats become decimals; integers
// wider than 32 bits become longs.
func FromAny(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case []byte:
		return Binary(val), nil
	case bool:
		return Bool(val), nil
	case int8:
		return Int(int32(val)), nil
	case int16:
		return Int(int32(val)), nil
	case int32:
		return Int(val), nil
	case uint8:
		return Int(int32(val)), nil
	case uint16:
		return Int(int32(val)), nil
	case int:
		return Long(int64(val)), nil
	case int64:
		return Long(val), nil
	case uint32:
		return Long(int64(val)), nil
	case uint:
		if uint64(val) > 1<<63-1 {
			return Value{}, fmt.Errorf("query: unsigned value %d overflows a long", val)
		}
		return Long(int64(val)), nil
	case uint64:
		if val > 1<<63-1 {
			return Value{}, fmt.Errorf("query: unsigned value %d overflows a long", val)
		}
		return Long(int64(val)), nil
	case float32:
		return Decimal(decimal.NewFromFloat32(val)), nil
	case float64:
		return Decimal(decimal.NewFromFloat(val)), nil
	case decimal.Decimal:
		return Decimal(val), nil
	case time.Time:
		return Timestamp(val), nil
	case uuid.UUID:
		return UUID(val), nil
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return Value{}, fmt.Errorf("query: %T: %w", x, err)
		}
		if _, again := inner.(driver.Valuer); again {
			return Value{}, fmt.Errorf("query: %T returned another valuer", x)
		}
		return FromAny(inner)
	}
	return Value{}, fmt.Errorf("query: unsupported value type %T", x)
}

// Parse reads a value written as kind:text, for example int:42,
// date:2024-01-31 or uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8. Input without
// a known kind prefix is text. "null" is NULL.
func Parse(s string) (Value, error) {
	if strings.EqualFold(s, "null") {
		return Null(), nil
	}
	name, text, found := strings.Cut(s, ":")
	if !found {
		return Text(s), nil
	}
	kind, ok := ParseKind(name)
	if !ok {
		return Text(s), nil
	}
	v, err := parseKind(kind, text)
	if err != nil {
		return Value{}, fmt.Errorf("query: parse %s value %q: %w", kind, text, err)
	}
	return v, nil
}

func parseKind(kind Kind, text string) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindText:
		return Text(text), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, err
		}
		return Int(int32(i)), nil
	case KindLong:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Long(i), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case KindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return Value{}, err
		}
		return Decimal(d), nil
	case KindDate:
		t, err := time.Parse(time.DateOnly, text)
		if err != nil {
			return Value{}, err
		}
		return Date(t), nil
	case KindTimestamp:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	case KindBinary:
		b, err := hex.DecodeString(text)
		if err != nil {
			return Value{}, err
		}
		return Binary(b), nil
	case KindUUID:
		id, err := uuid.Parse(text)
		if err != nil {
			return Value{}, err
		}
		return UUID(id), nil
	}
	return Value{}, fmt.Errorf("unknown kind %d", kind)
}
