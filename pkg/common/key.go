package common

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Value is one component of a view key.
type Value struct {
	kind Kind
	num  uint64
	str  string
}

func IntValue(n uint64) Value {
	return Value{kind: KindInt, num: n}
}

func StringValue(b BoundedString) Value {
	return Value{kind: KindString, str: b.s}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Int returns the numeric payload; ok is false for string values.
func (v Value) Int() (uint64, bool) {
	return v.num, v.kind == KindInt
}

// Str returns the string payload; ok is false for numeric values.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Interface returns the payload as uint64 or string.
func (v Value) Interface() any {
	if v.kind == KindInt {
		return v.num
	}
	return v.str
}

func (v Value) String() string {
	if v.kind == KindInt {
		return strconv.FormatUint(v.num, 10)
	}
	return strconv.Quote(v.str)
}

// Key is an ordered tuple of values.
type Key []Value

// Encode produces the canonical byte form used as the hash map key. Each
// component is tagged with its kind and strings are length-prefixed, so two
// keys encode equally only if every component matches in order.
func (k Key) Encode() string {
	buf := make([]byte, 0, 16*len(k))
	for _, v := range k {
		buf = append(buf, byte(v.kind))
		switch v.kind {
		case KindInt:
			buf = binary.BigEndian.AppendUint64(buf, v.num)
		case KindString:
			buf = binary.AppendUvarint(buf, uint64(len(v.str)))
			buf = append(buf, v.str...)
		}
	}
	return string(buf)
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
