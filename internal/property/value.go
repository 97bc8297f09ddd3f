// Package property translates between the raw byte buffers stored on X11
// windows and the typed values exposed on the bus.
package property

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindBool
	KindString
	KindStringArray
	KindIntArray
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindStringArray:
		return "string-array"
	case KindIntArray:
		return "integer-array"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union over the property types the daemon
// synchronizes. The zero Value is invalid.
type Value struct {
	kind Kind
	num  int64
	str  string
	strs []string
	nums []int64
}

// Int returns an integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, num: n}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Strings returns a string-array value. The slice is copied.
func Strings(ss ...string) Value {
	return Value{kind: KindStringArray, strs: append([]string{}, ss...)}
}

// Ints returns an integer-array value. The slice is copied.
func Ints(ns ...int64) Value {
	return Value{kind: KindIntArray, nums: append([]int64{}, ns...)}
}

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v carries a tag.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Int returns the integer payload. It is zero for non-integer values.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.num
}

// Bool returns the boolean payload.
func (v Value) Bool() bool {
	return v.kind == KindBool && v.num != 0
}

// Text returns the string payload.
func (v Value) Text() string {
	return v.str
}

// Strings returns a copy of the string-array payload.
func (v Value) Strings() []string {
	return append([]string{}, v.strs...)
}

// Ints returns a copy of the integer-array payload.
func (v Value) Ints() []int64 {
	return append([]int64{}, v.nums...)
}

// Equal reports whether both values carry the same tag and payload. Nil
// and empty arrays compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt, KindBool:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindStringArray:
		return slices.Equal(v.strs, o.strs)
	case KindIntArray:
		return slices.Equal(v.nums, o.nums)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.num != 0)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindStringArray:
		quoted := make([]string, len(v.strs))
		for i, s := range v.strs {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, " ") + "]"
	case KindIntArray:
		return fmt.Sprint(v.nums)
	default:
		return "<invalid>"
	}
}
