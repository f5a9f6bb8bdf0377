// Package settings loads archctx's own configuration.
//
// Settings come from three places, highest precedence first: ARCHCTX_*
// environment variables, an optional archctx.toml file, and built-in
// defaults. A missing file is not an error.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/archctx/internal/engine/merge"
	"github.com/dshills/archctx/internal/logging"
)

// FileName is the settings file looked up in the configuration root.
const FileName = "archctx.toml"

// Settings is the complete archctx configuration.
type Settings struct {
	// Root is the directory holding system/, services/, environments/ and
	// tenants/.
	Root  string        `toml:"root"`
	Log   LogSettings   `toml:"log"`
	Merge MergeSettings `toml:"merge"`
	Store StoreSettings `toml:"store"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level string `toml:"level"`
}

// MergeSettings configures the deep merge.
type MergeSettings struct {
	// Arrays is "replace" or "concat".
	Arrays       string `toml:"arrays"`
	TrackSources *bool  `toml:"track_sources"`
}

// StoreSettings configures document storage.
type StoreSettings struct {
	Validate *bool  `toml:"validate"`
	Cache    *bool  `toml:"cache"`
	Watch    *bool  `toml:"watch"`
	Debounce string `toml:"debounce"`
}

func boolPtr(b bool) *bool { return &b }

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Root: ".",
		Log:  LogSettings{Level: "info"},
		Merge: MergeSettings{
			Arrays:       "replace",
			TrackSources: boolPtr(false),
		},
		Store: StoreSettings{
			Validate: boolPtr(true),
			Cache:    boolPtr(true),
			Watch:    boolPtr(false),
			Debounce: "100ms",
		},
	}
}

// Load reads settings from path, applies environment overrides, fills
// defaults and validates the result. An empty path skips the file.
func Load(path string) (*Settings, error) {
	var s Settings
	if path != "" {
		if err := decodeFile(path, &s); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(&s, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := mergo.Merge(&s, Default(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Parse decodes TOML settings without touching the environment or defaults.
func Parse(source string, data []byte) (*Settings, error) {
	var s Settings
	if err := decode(source, data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading settings file %s: %w", path, err)
	}
	return decode(path, data, s)
}

func decode(source string, data []byte, s *Settings) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}

		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		var se *toml.StrictMissingError
		if errors.As(err, &se) {
			pe.Message = "unknown keys: " + strings.Join(unknownKeys(se), ", ")
		}
		return pe
	}
	return nil
}

func unknownKeys(se *toml.StrictMissingError) []string {
	keys := make([]string, 0, len(se.Errors))
	for _, e := range se.Errors {
		keys = append(keys, strings.Join(e.Key(), "."))
	}
	return keys
}

// Validate checks that every setting has a usable value.
func (s *Settings) Validate() error {
	var errs []error
	if _, ok := logging.LookupLevel(s.Log.Level); !ok {
		errs = append(errs, &ValueError{Key: "log.level", Value: s.Log.Level, Reason: "expected debug, info, warn or error"})
	}
	if _, err := merge.ParseArrayStrategy(s.Merge.Arrays); err != nil {
		errs = append(errs, &ValueError{Key: "merge.arrays", Value: s.Merge.Arrays, Reason: "expected replace or concat"})
	}
	if s.Store.Debounce != "" {
		if d, err := time.ParseDuration(s.Store.Debounce); err != nil || d < 0 {
			errs = append(errs, &ValueError{Key: "store.debounce", Value: s.Store.Debounce, Reason: "expected a non-negative duration"})
		}
	}
	return errors.Join(errs...)
}

// LogLevel returns the configured log level.
func (s *Settings) LogLevel() logging.Level {
	return logging.ParseLevel(s.Log.Level)
}

// MergeOptions returns the merge options the settings select.
func (s *Settings) MergeOptions() []merge.Option {
	strategy, _ := merge.ParseArrayStrategy(s.Merge.Arrays)
	return []merge.Option{
		merge.WithArrayStrategy(strategy),
		merge.WithSourceTracking(isSet(s.Merge.TrackSources)),
	}
}

// ValidateDocuments reports whether documents are schema-checked on load.
func (s *Settings) ValidateDocuments() bool { return isSet(s.Store.Validate) }

// CacheEnabled reports whether loaded documents are cached.
func (s *Settings) CacheEnabled() bool { return isSet(s.Store.Cache) }

// WatchEnabled reports whether the root is watched for changes.
func (s *Settings) WatchEnabled() bool { return isSet(s.Store.Watch) }

// Debounce returns the watcher debounce interval.
func (s *Settings) Debounce() time.Duration {
	d, err := time.ParseDuration(s.Store.Debounce)
	if err != nil {
		return 0
	}
	return d
}

func isSet(b *bool) bool {
	return b != nil && *b
}

// ParseError reports a malformed settings file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValueError reports a setting with an unusable value.
type ValueError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Key, e.Value, e.Reason)
}
