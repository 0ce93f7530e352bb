package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSealed is returned when a file is added after Resolve.
	ErrSealed = errors.New("registry is resolved and read-only")
	// ErrNotResolved is returned by lookups made before Resolve.
	ErrNotResolved = errors.New("registry is not resolved")
)

// SchemaResolutionError lists every problem found by Resolve. A registry that
// returned one stays unresolved.
type SchemaResolutionError struct {
	Problems []string
}

// Error implements the error interface.
func (e *SchemaResolutionError) Error() string {
	if len(e.Problems) == 1 {
		return "schema resolution failed: " + e.Problems[0]
	}
	return fmt.Sprintf("schema resolution failed with %d problems:\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}
