package property

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/xgb"
	"golang.org/x/text/encoding/charmap"
)

// Decode converts a raw window property into a Value of the descriptor's
// kind. An absent property yields the descriptor default or ErrAbsent.
func Decode(raw Raw, d Descriptor) (Value, error) {
	if raw.Absent() {
		if d.Default != nil {
			return *d.Default, nil
		}
		return Value{}, &CodecError{Property: d.Name, Reason: "no value on window", kind: ErrAbsent}
	}
	if !typeMatches(raw.Type, d) {
		return Value{}, decodeErr(d, "type %s, want %s", raw.Type, d.Type)
	}
	if !formatMatches(raw.Format, d) {
		return Value{}, decodeErr(d, "format %d, want %d", raw.Format, d.Format)
	}
	width := int(raw.Format / 8)
	if len(raw.Data)%width != 0 {
		return Value{}, decodeErr(d, "%d bytes is not a multiple of %d", len(raw.Data), width)
	}
	count := len(raw.Data) / width

	switch d.Kind {
	case KindInt:
		if count != 1 {
			return Value{}, decodeErr(d, "%d elements, want 1", count)
		}
		return Int(readInt(raw.Data, width, d.Signed)), nil

	case KindBool:
		if count != 1 {
			return Value{}, decodeErr(d, "%d elements, want 1", count)
		}
		switch readInt(raw.Data, width, false) {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		default:
			return Value{}, decodeErr(d, "boolean out of range")
		}

	case KindIntArray:
		nums := make([]int64, count)
		for i := range nums {
			nums[i] = readInt(raw.Data[i*width:], width, d.Signed)
		}
		return Value{kind: KindIntArray, nums: nums}, nil

	case KindString:
		data := bytes.TrimSuffix(raw.Data, []byte{0})
		s, err := decodeText(data, raw.Type)
		if err != nil {
			return Value{}, decodeErr(d, "%v", err)
		}
		return String(s), nil

	case KindStringArray:
		if len(raw.Data) == 0 {
			return Strings(), nil
		}
		parts := bytes.Split(bytes.TrimSuffix(raw.Data, []byte{0}), []byte{0})
		strs := make([]string, len(parts))
		for i, p := range parts {
			s, err := decodeText(p, raw.Type)
			if err != nil {
				return Value{}, decodeErr(d, "element %d: %v", i, err)
			}
			strs[i] = s
		}
		return Value{kind: KindStringArray, strs: strs}, nil
	}
	return Value{}, decodeErr(d, "invalid descriptor kind")
}

// Encode converts v into the raw representation d stores on a window. A
// value whose tag differs from the descriptor kind is rejected.
func Encode(v Value, d Descriptor) (Raw, error) {
	if v.Kind() != d.Kind {
		return Raw{}, encodeErr(d, "value is %s, want %s", v.Kind(), d.Kind)
	}
	width := int(d.Format / 8)
	raw := Raw{Type: d.Type, Format: d.Format}

	switch d.Kind {
	case KindInt, KindBool:
		if !inRange(v.num, width, d.Signed) {
			return Raw{}, encodeErr(d, "%d does not fit %d-bit field", v.num, d.Format)
		}
		raw.Data = make([]byte, width)
		writeInt(raw.Data, width, v.num)

	case KindIntArray:
		raw.Data = make([]byte, width*len(v.nums))
		for i, n := range v.nums {
			if !inRange(n, width, d.Signed) {
				return Raw{}, encodeErr(d, "element %d: %d does not fit %d-bit field", i, n, d.Format)
			}
			writeInt(raw.Data[i*width:], width, n)
		}

	case KindString:
		data, err := encodeText(v.str, d.Type)
		if err != nil {
			return Raw{}, encodeErr(d, "%v", err)
		}
		raw.Data = data

	case KindStringArray:
		var buf bytes.Buffer
		for i, s := range v.strs {
			data, err := encodeText(s, d.Type)
			if err != nil {
				return Raw{}, encodeErr(d, "element %d: %v", i, err)
			}
			buf.Write(data)
			buf.WriteByte(0)
		}
		raw.Data = buf.Bytes()

	default:
		return Raw{}, encodeErr(d, "invalid descriptor kind")
	}
	return raw, nil
}

func typeMatches(typ string, d Descriptor) bool {
	if d.Kind == KindString || d.Kind == KindStringArray {
		return typ == TypeString || typ == TypeUTF8String
	}
	if !d.Signed && (d.Type == TypeCardinal || d.Type == TypeWindow) {
		return typ == TypeCardinal || typ == TypeWindow
	}
	return typ == d.Type
}

// formatMatches accepts any element width for integers; the value is
// widened on read. Text is always 8-bit.
func formatMatches(format uint8, d Descriptor) bool {
	if d.Kind == KindString || d.Kind == KindStringArray {
		return format == 8
	}
	switch format {
	case 8, 16, 32:
		return true
	}
	return false
}

func readInt(b []byte, width int, signed bool) int64 {
	switch width {
	case 1:
		if signed {
			return int64(int8(b[0]))
		}
		return int64(b[0])
	case 2:
		u := xgb.Get16(b)
		if signed {
			return int64(int16(u))
		}
		return int64(u)
	default:
		u := xgb.Get32(b)
		if signed {
			return int64(int32(u))
		}
		return int64(u)
	}
}

func writeInt(b []byte, width int, n int64) {
	switch width {
	case 1:
		b[0] = byte(n)
	case 2:
		xgb.Put16(b, uint16(n))
	default:
		xgb.Put32(b, uint32(n))
	}
}

func inRange(n int64, width int, signed bool) bool {
	bits := uint(width * 8)
	if signed {
		limit := int64(1) << (bits - 1)
		return n >= -limit && n < limit
	}
	return n >= 0 && n < int64(1)<<bits
}

// decodeText validates printable text. STRING is Latin-1, UTF8_STRING is
// UTF-8.
func decodeText(b []byte, typ string) (string, error) {
	var s string
	if typ == TypeString {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		s = string(out)
	} else {
		if !utf8.Valid(b) {
			return "", errInvalidText("invalid UTF-8")
		}
		s = string(b)
	}
	if err := checkPrintable(s); err != nil {
		return "", err
	}
	return s, nil
}

func encodeText(s, typ string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, errInvalidText("invalid UTF-8")
	}
	if err := checkPrintable(s); err != nil {
		return nil, err
	}
	if typ == TypeString {
		return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	}
	return []byte(s), nil
}

func checkPrintable(s string) error {
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPrint(r) }); i >= 0 {
		return errInvalidText("non-printable character")
	}
	return nil
}

type errInvalidText string

func (e errInvalidText) Error() string { return string(e) }
