package manager

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching.
var (
	ErrNoDependency = errors.New("no such dependency")
	ErrInUse        = errors.New("service in use")
)

// DependencyError is returned when removing an edge that does not exist.
type DependencyError struct {
	From string
	To   string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("service '%s' does not depend on '%s'", e.From, e.To)
}

// Is implements error matching against ErrNoDependency.
func (e *DependencyError) Is(target error) bool {
	return target == ErrNoDependency
}

// InUseError is returned when deleting a service others depend on.
type InUseError struct {
	Service    string
	Dependents []string
}

// Error implements the error interface.
func (e *InUseError) Error() string {
	return fmt.Sprintf("service '%s' is still required by: %s", e.Service, strings.Join(e.Dependents, ", "))
}

// Is implements error matching against ErrInUse.
func (e *InUseError) Is(target error) bool {
	return target == ErrInUse
}
