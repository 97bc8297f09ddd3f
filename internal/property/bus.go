package property

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Signature returns the D-Bus type signature of d.
func Signature(d Descriptor) string {
	switch d.Kind {
	case KindInt:
		if d.Signed {
			return "i"
		}
		return "u"
	case KindBool:
		return "b"
	case KindString:
		return "s"
	case KindStringArray:
		return "as"
	case KindIntArray:
		if d.Signed {
			return "ai"
		}
		return "au"
	default:
		return "v"
	}
}

// ToBus converts v into the Go value whose D-Bus signature is
// Signature(d).
func ToBus(d Descriptor, v Value) any {
	switch d.Kind {
	case KindInt:
		if d.Signed {
			return int32(v.Int())
		}
		return uint32(v.Int())
	case KindBool:
		return v.Bool()
	case KindString:
		return v.Text()
	case KindStringArray:
		return v.Strings()
	case KindIntArray:
		if d.Signed {
			out := make([]int32, len(v.nums))
			for i, n := range v.nums {
				out[i] = int32(n)
			}
			return out
		}
		out := make([]uint32, len(v.nums))
		for i, n := range v.nums {
			out[i] = uint32(n)
		}
		return out
	}
	return nil
}

// FromBus coerces a bus- or JSON-originated value into a Value of the
// descriptor's kind. Any integer type is accepted for integer kinds, as
// are integral floats.
func FromBus(d Descriptor, in any) (Value, error) {
	switch d.Kind {
	case KindInt:
		n, ok := toInt64(in)
		if !ok {
			return Value{}, encodeErr(d, "cannot use %T as integer", in)
		}
		return Int(n), nil

	case KindBool:
		if b, ok := in.(bool); ok {
			return Bool(b), nil
		}
		return Value{}, encodeErr(d, "cannot use %T as boolean", in)

	case KindString:
		if s, ok := in.(string); ok {
			return String(s), nil
		}
		return Value{}, encodeErr(d, "cannot use %T as string", in)

	case KindStringArray:
		switch ss := in.(type) {
		case []string:
			return Strings(ss...), nil
		case []any:
			out := make([]string, len(ss))
			for i, e := range ss {
				s, ok := e.(string)
				if !ok {
					return Value{}, encodeErr(d, "element %d: cannot use %T as string", i, e)
				}
				out[i] = s
			}
			return Strings(out...), nil
		}
		return Value{}, encodeErr(d, "cannot use %T as string array", in)

	case KindIntArray:
		elems, ok := toSlice(in)
		if !ok {
			return Value{}, encodeErr(d, "cannot use %T as integer array", in)
		}
		out := make([]int64, len(elems))
		for i, e := range elems {
			n, ok := toInt64(e)
			if !ok {
				return Value{}, encodeErr(d, "element %d: cannot use %T as integer", i, e)
			}
			out[i] = n
		}
		return Ints(out...), nil
	}
	return Value{}, encodeErr(d, "invalid descriptor kind")
}

// Parse reads a command-line representation of a value: decimal or 0x
// integers, true/false/1/0 booleans, and comma-separated arrays.
func Parse(d Descriptor, s string) (Value, error) {
	switch d.Kind {
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return Value{}, encodeErr(d, "%v", err)
		}
		return Int(n), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, encodeErr(d, "%v", err)
		}
		return Bool(b), nil
	case KindString:
		return String(s), nil
	case KindStringArray:
		if s == "" {
			return Strings(), nil
		}
		return Strings(strings.Split(s, ",")...), nil
	case KindIntArray:
		if strings.TrimSpace(s) == "" {
			return Ints(), nil
		}
		fields := strings.Split(s, ",")
		out := make([]int64, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(strings.TrimSpace(f), 0, 64)
			if err != nil {
				return Value{}, encodeErr(d, "element %d: %v", i, err)
			}
			out[i] = n
		}
		return Ints(out...), nil
	}
	return Value{}, encodeErr(d, "invalid descriptor kind")
}

func toInt64(in any) (int64, bool) {
	switch n := in.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toSlice(in any) ([]any, bool) {
	switch s := in.(type) {
	case []any:
		return s, true
	case []uint32:
		return convertSlice(s), true
	case []int32:
		return convertSlice(s), true
	case []int64:
		return convertSlice(s), true
	case []uint64:
		return convertSlice(s), true
	case []int:
		return convertSlice(s), true
	case []byte:
		return convertSlice(s), true
	}
	return nil, false
}

func convertSlice[T any](s []T) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

// Describe renders v for human output.
func Describe(d Descriptor, v Value) string {
	switch d.Kind {
	case KindString:
		return v.Text()
	case KindStringArray:
		return strings.Join(v.Strings(), ",")
	case KindIntArray:
		parts := make([]string, len(v.nums))
		for i, n := range v.nums {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(ToBus(d, v))
}
