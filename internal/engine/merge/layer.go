// Package merge provides the deep-merge engine for configuration layers.
//
// Layers are applied in order; a value in a later layer overrides the same
// path in an earlier one. Mappings merge recursively, sequences are atomic
// unless the concat strategy is selected, null clears a path and absent
// values are ignored.
package merge

import (
	"fmt"
	"strings"

	"github.com/dshills/archctx/internal/engine/value"
)

// Layer is one named, partial contribution to a merge.
type Layer struct {
	// Source identifies where the partial came from
	// (e.g. "services/api.yaml#environments.prod").
	Source string

	// Partial holds the layer's values. A nil Partial is skipped.
	Partial *value.Map
}

// NewLayer creates a layer.
func NewLayer(source string, partial *value.Map) Layer {
	return Layer{Source: source, Partial: partial}
}

// Level is the coarse origin of a contribution.
type Level uint8

const (
	// LevelUnknown is used when the source identifier matches no known pattern.
	LevelUnknown Level = iota
	// LevelSystem represents system-wide defaults.
	LevelSystem
	// LevelService represents a service's own configuration.
	LevelService
	// LevelEnvironment represents environment-wide configuration.
	LevelEnvironment
	// LevelTenant represents tenant overrides.
	LevelTenant
)

// String returns a human-readable name for the level.
func (l Level) String() string {
	switch l {
	case LevelSystem:
		return "system"
	case LevelService:
		return "service"
	case LevelEnvironment:
		return "environment"
	case LevelTenant:
		return "tenant"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LevelOf infers the level from a source identifier. Tenant patterns are
// checked first since a tenant override of an environment names both.
func LevelOf(source string) Level {
	switch {
	case strings.Contains(source, "tenants/"):
		return LevelTenant
	case strings.Contains(source, "environments/"):
		return LevelEnvironment
	case strings.Contains(source, "services/"):
		return LevelService
	case strings.Contains(source, "system/"), strings.Contains(source, "defaults"):
		return LevelSystem
	default:
		return LevelUnknown
	}
}

// Contribution records the layer that last wrote a merged path.
type Contribution struct {
	Source string `json:"source" yaml:"source"`
	Path   string `json:"path" yaml:"path"`
	Level  Level  `json:"level" yaml:"level"`
}

// ArrayStrategy selects how sequences from a later layer combine with an
// earlier sequence at the same path.
type ArrayStrategy uint8

const (
	// ArrayReplace replaces the earlier sequence entirely.
	ArrayReplace ArrayStrategy = iota
	// ArrayConcat appends the later items to the earlier sequence.
	ArrayConcat
)

// String returns the strategy name.
func (s ArrayStrategy) String() string {
	switch s {
	case ArrayConcat:
		return "concat"
	default:
		return "replace"
	}
}

// ParseArrayStrategy parses "replace" or "concat". The empty string is
// replace.
func ParseArrayStrategy(s string) (ArrayStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ArrayReplace, nil
	case "concat", "append":
		return ArrayConcat, nil
	default:
		return ArrayReplace, &StrategyError{Value: s}
	}
}

// StrategyError is returned for an unknown array strategy name.
type StrategyError struct {
	Value string
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	return fmt.Sprintf("unknown array strategy %q (want replace or concat)", e.Value)
}
