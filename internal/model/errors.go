package model

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an entity document does not exist.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind Kind
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind.Singular(), e.Name)
}

// Is implements error matching for NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
