// Package cachekey derives stable cache keys from queries.
//
// A key is the MurmurHash3 x64 128-bit hash of the normalized statement, its
// presentation clauses and a typed encoding of every parameter. Values of
// different declared types never encode alike, so Int(1) and Bool(true)
// produce different keys.
package cachekey

import (
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Key identifies a cached result.
type Key struct {
	Hi uint64
	Lo uint64
}

// String renders the key as 32 lowercase hexadecimal digits.
func (k Key) String() string {
	buf := make([]byte, 0, 32)
	buf = appendHex64(buf, k.Hi)
	buf = appendHex64(buf, k.Lo)
	return string(buf)
}

func appendHex64(dst []byte, v uint64) []byte {
	s := strconv.FormatUint(v, 16)
	for i := len(s); i < 16; i++ {
		dst = append(dst, '0')
	}
	return append(dst, s...)
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k.Hi == 0 && k.Lo == 0 }

// Compare orders keys by their hexadecimal rendering.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Hi, o.Hi); c != 0 {
		return c
	}
	return cmp.Compare(k.Lo, o.Lo)
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	if len(s) != 32 {
		return Key{}, fmt.Errorf("cachekey: key %q must be 32 hex digits", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("cachekey: key %q: %w", s, err)
	}
	return Key{Hi: binary.BigEndian.Uint64(raw[:8]), Lo: binary.BigEndian.Uint64(raw[8:])}, nil
}
