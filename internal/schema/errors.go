package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/archctx/internal/model"
)

// ErrInvalidDocument matches every *ValidationError.
var ErrInvalidDocument = errors.New("invalid document")

// FieldError is a single validation failure.
type FieldError struct {
	// Path is the JSON pointer of the invalid value, "/" for the document.
	Path string

	// Message describes what's wrong.
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError collects the failures of one document.
type ValidationError struct {
	Kind   model.Kind
	Name   string
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	head := fmt.Sprintf("%s '%s' is invalid", e.Kind.Singular(), e.Name)
	switch len(e.Fields) {
	case 0:
		return head
	case 1:
		return head + ": " + e.Fields[0].Error()
	}

	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%s: %d errors:\n  - %s", head, len(e.Fields), strings.Join(msgs, "\n  - "))
}

// Is implements error matching against ErrInvalidDocument.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDocument
}
