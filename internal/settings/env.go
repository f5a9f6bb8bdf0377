package settings

import (
	"fmt"
	"sort"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARCHCTX_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envSetter func(s *Settings, raw string) error

func setString(field func(*Settings) *string) envSetter {
	return func(s *Settings, raw string) error {
		*field(s) = raw
		return nil
	}
}

func setBool(field func(*Settings) **bool) envSetter {
	return func(s *Settings, raw string) error {
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		*field(s) = &b
		return nil
	}
}

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"ARCHCTX_ROOT":                setString(func(s *Settings) *string { return &s.Root }),
	"ARCHCTX_LOG_LEVEL":           setString(func(s *Settings) *string { return &s.Log.Level }),
	"ARCHCTX_MERGE_ARRAYS":        setString(func(s *Settings) *string { return &s.Merge.Arrays }),
	"ARCHCTX_MERGE_TRACK_SOURCES": setBool(func(s *Settings) **bool { return &s.Merge.TrackSources }),
	"ARCHCTX_STORE_VALIDATE":      setBool(func(s *Settings) **bool { return &s.Store.Validate }),
	"ARCHCTX_STORE_CACHE":         setBool(func(s *Settings) **bool { return &s.Store.Cache }),
	"ARCHCTX_STORE_WATCH":         setBool(func(s *Settings) **bool { return &s.Store.Watch }),
	"ARCHCTX_STORE_DEBOUNCE":      setString(func(s *Settings) *string { return &s.Store.Debounce }),
}

// EnvVars lists the recognised environment variables.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides s with any ARCHCTX_* variables lookup finds. An empty
// value is treated as set.
func ApplyEnv(s *Settings, lookup LookupFunc) error {
	for _, name := range EnvVars() {
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping[name](s, raw); err != nil {
			return fmt.Errorf("environment variable %s: %w", name, err)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
