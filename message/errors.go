package message

import "fmt"

// ValidationError reports a value that does not fit its field. Path is the
// dotted field path from the verified message, Reason one of the fixed
// verify reasons such as "integer expected" or "missing required 'id'".
type ValidationError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

func invalid(path, reason string) error {
	return &ValidationError{Path: path, Reason: reason}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// RequiredFieldError is returned by decode when a proto2 required field is
// absent once its message is complete.
type RequiredFieldError struct {
	Message string // fully-qualified message name
	Field   string
}

// Error implements the error interface.
func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field %s.%s", e.Message, e.Field)
}
