package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = '%s', expected '%s'", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		known    bool
	}{
		{"debug", LevelDebug, true},
		{"DEBUG", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"Warning", LevelWarn, true},
		{"error", LevelError, true},
		{"unknown", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel('%s') = %v, expected %v", tt.input, got, tt.expected)
		}
		if _, ok := LookupLevel(tt.input); ok != tt.known {
			t.Errorf("LookupLevel('%s') known = %v, expected %v", tt.input, ok, tt.known)
		}
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf, Prefix: "archctx", Now: fixedNow})

	log.WithName("store").WithValues("kind", "services").Info("document loaded", "name", "api")

	want := "2024-03-01T12:30:00.000 [INFO] archctx/store: document loaded {kind=services, name=api}\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q\nwant     %q", got, want)
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		wantDebug bool
		wantInfo  bool
		wantError bool
	}{
		{"debug", LevelDebug, true, true, true},
		{"info", LevelInfo, false, true, true},
		{"warn", LevelWarn, false, false, true},
		{"error", LevelError, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level, Output: &buf, Now: fixedNow})

			log.V(1).Info("debug message")
			log.Info("info message")
			log.Error(errors.New("boom"), "error message")

			out := buf.String()
			if got := strings.Contains(out, "[DEBUG] debug message"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "[INFO] info message"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(out, "[ERROR] error message {error=boom}"); got != tt.wantError {
				t.Errorf("error logged = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestLogger_WithValuesDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Output: &buf, Now: fixedNow})

	_ = root.WithValues("tenant", "acme")
	root.Info("plain")

	if strings.Contains(buf.String(), "tenant") {
		t.Errorf("parent logger picked up child values: %q", buf.String())
	}
}

func TestLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Now: fixedNow})

	log.Info("odd", "dangling")

	if !strings.Contains(buf.String(), "dangling=(MISSING)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := WithComponent(New(Config{Output: &buf, Prefix: "archctx", Now: fixedNow}), "watcher")

	log.Info("started")

	if !strings.Contains(buf.String(), "archctx/watcher: started") {
		t.Errorf("output = %q", buf.String())
	}
}
