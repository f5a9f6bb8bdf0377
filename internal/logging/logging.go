// Package logging provides the leveled text logger used across archctx,
// exposed as a logr.Logger.
//
// Lines look like:
//
//	2024-03-01T12:00:00.000 [INFO] archctx/store: document loaded {kind=services, name=api}
//
// logr verbosity maps onto levels: V(0) is INFO, V(1) and above is DEBUG.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn suppresses informational messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LookupLevel parses a level name, reporting whether it is known.
func LookupLevel(s string) (Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// ParseLevel parses a string into a Level. Unknown names yield LevelInfo.
func ParseLevel(s string) Level {
	l, _ := LookupLevel(s)
	return l
}

// Config configures the logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is the root logger name.
	Prefix string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Prefix: "archctx",
	}
}

const timeFormat = "2006-01-02T15:04:05.000"

// output is shared by a logger and everything derived from it.
type output struct {
	mu    sync.Mutex
	level Level
	w     io.Writer
	now   func() time.Time
}

// sink implements logr.LogSink.
type sink struct {
	out    *output
	name   string
	fields map[string]any
}

var _ logr.LogSink = (*sink)(nil)

// New creates a logger with the given configuration.
func New(cfg Config) logr.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return logr.New(&sink{
		out:    &output{level: cfg.Level, w: cfg.Output, now: cfg.Now},
		name:   cfg.Prefix,
		fields: map[string]any{},
	})
}

// WithComponent returns a logger named after a component.
func WithComponent(l logr.Logger, component string) logr.Logger {
	return l.WithName(component)
}

func (s *sink) Init(logr.RuntimeInfo) {}

func (s *sink) Enabled(v int) bool {
	if v > 0 {
		return s.out.enabled(LevelDebug)
	}
	return s.out.enabled(LevelInfo)
}

func (s *sink) Info(v int, msg string, kv ...any) {
	level := LevelInfo
	if v > 0 {
		level = LevelDebug
	}
	s.write(level, msg, kv)
}

func (s *sink) Error(err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, "error", err)
	}
	s.write(LevelError, msg, kv)
}

func (s *sink) WithValues(kv ...any) logr.LogSink {
	return &sink{out: s.out, name: s.name, fields: s.merged(kv)}
}

func (s *sink) WithName(name string) logr.LogSink {
	full := name
	if s.name != "" {
		full = s.name + "/" + name
	}
	return &sink{out: s.out, name: full, fields: s.fields}
}

func (s *sink) merged(kv []any) map[string]any {
	fields := make(map[string]any, len(s.fields)+len(kv)/2)
	for k, v := range s.fields {
		fields[k] = v
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = "(MISSING)"
		}
	}
	return fields
}

func (o *output) enabled(level Level) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return level >= o.level
}

func (s *sink) write(level Level, msg string, kv []any) {
	fields := s.merged(kv)

	var b strings.Builder
	b.WriteString(s.out.now().Format(timeFormat))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if s.name != "" {
		b.WriteString(s.name)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, fields[k])
		}
		b.WriteString("}")
	}
	b.WriteString("\n")

	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	if level < s.out.level {
		return
	}
	_, _ = io.WriteString(s.out.w, b.String())
}
