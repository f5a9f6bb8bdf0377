package store

import (
	"errors"
	"fmt"
)

// Errors returned by store operations.
var (
	// ErrInvalidName indicates an entity name that cannot map to a file.
	ErrInvalidName = errors.New("invalid entity name")
)

// DecodeError reports a document that is not a valid YAML mapping.
type DecodeError struct {
	// Path is the file that failed to decode.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
