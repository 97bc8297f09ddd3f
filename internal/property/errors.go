package property

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks a malformed wire value.
	ErrDecode = errors.New("decode error")
	// ErrEncode marks a value that does not fit its descriptor.
	ErrEncode = errors.New("encode error")
	// ErrAbsent marks a property that is not set and has no default.
	ErrAbsent = errors.New("property not set")
)

// CodecError describes a failed translation of one property.
type CodecError struct {
	Property string
	Reason   string
	kind     error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.kind, e.Property, e.Reason)
}

func (e *CodecError) Unwrap() error {
	return e.kind
}

func decodeErr(d Descriptor, format string, args ...any) error {
	return &CodecError{Property: d.Name, Reason: fmt.Sprintf(format, args...), kind: ErrDecode}
}

func encodeErr(d Descriptor, format string, args ...any) error {
	return &CodecError{Property: d.Name, Reason: fmt.Sprintf(format, args...), kind: ErrEncode}
}
