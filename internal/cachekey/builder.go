package cachekey

import (
	"encoding/binary"
	"fmt"

	"github.com/electwix/querycache/internal/normalize"
	"github.com/electwix/querycache/internal/query"
)

// DefaultSeed seeds the hash unless WithSeed overrides it.
const DefaultSeed uint32 = 0x9747b28c

// Type tags prefixed to every encoded parameter.
const (
	tagNull byte = iota
	tagText
	tagInt
	tagLong
	tagBool
	tagDecimal
	tagDate
	tagTimestamp
	tagBinary
	tagUUID
)

// Builder computes keys. A Builder is safe for concurrent use.
type Builder struct {
	seed uint32
}

// Option configures a Builder.
type Option func(*Builder)

// WithSeed overrides the hash seed.
func WithSeed(seed uint32) Option {
	return func(b *Builder) {
		b.seed = seed
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{seed: DefaultSeed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Seed returns the hash seed.
func (b *Builder) Seed() uint32 { return b.seed }

// Build normalizes the statement of q and hashes it with the parameters.
// Statements that are not SELECTs fail with *normalize.NotSelectError.
func (b *Builder) Build(q query.Query) (Key, error) {
	norm, err := normalize.Normalize(q.SQL())
	if err != nil {
		return Key{}, fmt.Errorf("cachekey: %w", err)
	}
	return b.FromNormalized(norm, q.Params()), nil
}

// FromNormalized hashes an already normalized statement with params.
func (b *Builder) FromNormalized(norm normalize.Result, params []query.Param) Key {
	h1, h2 := Sum128(Encode(norm, params), b.seed)
	return Key{Hi: h1, Lo: h2}
}

// Encode returns the byte form that keys are hashed from: the normalized SQL,
// a zero byte, the presentation, a zero byte, then every parameter value as a
// type tag followed by its little-endian payload. Variable length payloads
// carry a 32-bit length prefix.
func Encode(norm normalize.Result, params []query.Param) []byte {
	buf := make([]byte, 0, len(norm.SQL)+len(norm.Presentation)+2+17*len(params))
	buf = append(buf, norm.SQL...)
	buf = append(buf, 0)
	buf = append(buf, norm.Presentation...)
	buf = append(buf, 0)
	for _, p := range params {
		buf = AppendValue(buf, p.Value)
	}
	return buf
}

// AppendValue appends the tagged encoding of v to dst.
func AppendValue(dst []byte, v query.Value) []byte {
	le := binary.LittleEndian
	switch v.Kind() {
	case query.KindText:
		dst = append(dst, tagText)
		return appendBytes(dst, []byte(v.AsString()))
	case query.KindInt:
		dst = append(dst, tagInt)
		return le.AppendUint32(dst, uint32(int32(v.AsInt64())))
	case query.KindLong:
		dst = append(dst, tagLong)
		return le.AppendUint64(dst, uint64(v.AsInt64()))
	case query.KindBool:
		dst = append(dst, tagBool)
		if v.AsBool() {
			return append(dst, 1)
		}
		return append(dst, 0)
	case query.KindDecimal:
		dst = append(dst, tagDecimal)
		return appendBytes(dst, []byte(v.AsDecimal().String()))
	case query.KindDate:
		dst = append(dst, tagDate)
		return le.AppendUint64(dst, uint64(v.AsInt64()))
	case query.KindTimestamp:
		t := v.AsTime()
		dst = append(dst, tagTimestamp)
		dst = le.AppendUint64(dst, uint64(t.Unix()))
		return le.AppendUint32(dst, uint32(t.Nanosecond()))
	case query.KindBinary:
		dst = append(dst, tagBinary)
		return appendBytes(dst, v.AsBytes())
	case query.KindUUID:
		id := v.AsUUID()
		dst = append(dst, tagUUID)
		return append(dst, id[:]...)
	}
	return append(dst, tagNull)
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}
