package common

import (
	"fmt"
	"strings"
)

// Field names a record attribute that can take part in a view key.
type Field string

const (
	FieldID       Field = "id"
	FieldName     Field = "name"
	FieldAge      Field = "age"
	FieldNickname Field = "nickname"
	FieldLanguage Field = "language"
)

// Fields lists every keyable field in record order.
var Fields = []Field{FieldID, FieldName, FieldAge, FieldNickname, FieldLanguage}

// Kind is the value domain of a field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Kind reports the value domain of f, or KindInvalid for unknown fields.
func (f Field) Kind() Kind {
	switch f {
	case FieldID, FieldAge:
		return KindInt
	case FieldName, FieldNickname, FieldLanguage:
		return KindString
	default:
		return KindInvalid
	}
}

func (f Field) Valid() bool {
	return f.Kind() != KindInvalid
}

// ParseField maps a (case-insensitive) field name to a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}

// Record is the unit stored by the index. Once inserted it is never modified.
type Record struct {
	ID       uint16
	Name     BoundedString
	Age      uint16
	Nickname BoundedString
	Language BoundedString
}

// Value returns the key component of r for field f.
func (r *Record) Value(f Field) (Value, bool) {
	switch f {
	case FieldID:
		return IntValue(uint64(r.ID)), true
	case FieldName:
		return StringValue(r.Name), true
	case FieldAge:
		return IntValue(uint64(r.Age)), true
	case FieldNickname:
		return StringValue(r.Nickname), true
	case FieldLanguage:
		return StringValue(r.Language), true
	}
	return Value{}, false
}

// Bounded returns a copy of r with every string field clamped to n.
func (r Record) Bounded(n StringBound) Record {
	r.Name = n.Clamp(r.Name)
	r.Nickname = n.Clamp(r.Nickname)
	r.Language = n.Clamp(r.Language)
	return r
}

// String 方便调试打印
func (r *Record) String() string {
	return fmt.Sprintf("Record{ID: %d, Name: %q, Age: %d, Nickname: %q, Language: %q}",
		r.ID, r.Name, r.Age, r.Nickname, r.Language)
}
