package resolve

import (
	"fmt"
	"strings"

	"github.com/dshills/archctx/internal/engine/depgraph"
	"github.com/dshills/archctx/internal/model"
)

// MissingEntityError is returned when a required entity does not exist. It
// lists the names that do exist so the caller can correct the request.
type MissingEntityError struct {
	Kind      model.Kind
	Name      string
	Available []string
}

// Error implements the error interface.
func (e *MissingEntityError) Error() string {
	available := "(none)"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("%s '%s' not found. Available %s: %s",
		e.Kind.Singular(), e.Name, e.Kind.Collection(), available)
}

// Unwrap returns model.ErrNotFound so errors.Is works across layers.
func (e *MissingEntityError) Unwrap() error {
	return model.ErrNotFound
}

// CircularDependencyError aborts a resolution whose service takes part in,
// or reaches, a dependency cycle.
type CircularDependencyError struct {
	// Service is the entity being resolved.
	Service string
	// Cycle is the offending path, starting and ending with the same name.
	Cycle []string
	// Message is a human-readable description of the cycle.
	Message string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("resolving %s: %s", e.Service, e.Message)
}

// Is implements error matching against depgraph.ErrCycle.
func (e *CircularDependencyError) Is(target error) bool {
	return target == depgraph.ErrCycle
}
