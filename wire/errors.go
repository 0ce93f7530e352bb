package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Malformed input causes. A *WireFormatError wraps exactly one of these.
var (
	ErrVarintTooLong    = errors.New("varint too long")
	ErrUnexpectedEOF    = errors.New("unexpected end of buffer")
	ErrLengthOutOfRange = errors.New("length exceeds remaining buffer")
	ErrInvalidWireType  = errors.New("invalid wire type")
	ErrEndGroup         = errors.New("mismatched end group")
	ErrDepthExceeded    = errors.New("maximum nesting depth exceeded")
	ErrFieldNumber      = errors.New("invalid field number")
)

// WireFormatError reports bytes that cannot be parsed as protobuf wire format.
// A decode that hits one never returns a partial message.
type WireFormatError struct {
	Op  string // reader operation, e.g. "varint", "skip"
	Pos int    // offset into the reader's buffer
	Err error  // one of the Err* causes above
}

// Error implements the error interface.
func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire: %s at offset %d: %v", e.Op, e.Pos, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WireFormatError) Unwrap() error {
	return e.Err
}

func newWireError(op string, pos int, err error) error {
	return &WireFormatError{Op: op, Pos: pos, Err: err}
}

// FieldError represents an encoding/decoding error with a field path.
type FieldError struct {
	FieldPath []string // e.g., ["order", "items", "price"]
	Err       error    // underlying error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if len(e.FieldPath) == 0 {
		return e.Err.Error()
	}

	return fmt.Sprintf("error at proto path %s: %v", strings.Join(e.FieldPath, "."), e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// WrapWithField prefixes err's field path with fieldName. Nested FieldErrors
// are flattened so the path reads outermost first.
func WrapWithField(err error, fieldName string) error {
	if err == nil {
		return nil
	}

	if fe, ok := err.(*FieldError); ok {
		return &FieldError{
			FieldPath: append([]string{fieldName}, fe.FieldPath...),
			Err:       fe.Err,
		}
	}

	return &FieldError{
		FieldPath: []string{fieldName},
		Err:       err,
	}
}
