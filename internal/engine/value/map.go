package value

import (
	"sort"
	"strings"
)

// Map is a string-keyed mapping of values. A *Map is the identity of a
// mapping: two Values wrapping the same *Map refer to the same object.
// The nil *Map behaves as an empty, read-only map.
type Map struct {
	entries map[string]Value
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{entries: make(map[string]Value)}
}

// MapFrom converts a plain Go map into a fresh *Map.
func MapFrom(src map[string]any) *Map {
	m := &Map{entries: make(map[string]Value, len(src))}
	for key, val := range src {
		m.entries[key] = FromAny(val)
	}
	return m
}

// Len returns the number of entries, absent entries included.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Get returns the value stored under key, or an absent value.
func (m *Map) Get(key string) Value {
	if m == nil {
		return Value{}
	}
	return m.entries[key]
}

// Has reports whether key holds a defined (non-absent) value.
func (m *Map) Has(key string) bool {
	return !m.Get(key).IsAbsent()
}

// Set stores v under key. Storing an absent value keeps the key present but
// undefined, which the merge treats as "not provided".
func (m *Map) Set(key string, v Value) {
	if m.entries == nil {
		m.entries = make(map[string]Value)
	}
	m.entries[key] = v
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	delete(m.entries, key)
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	return cloneMap(m, make(map[*Map]*Map))
}

func cloneMap(m *Map, seen map[*Map]*Map) *Map {
	if m == nil {
		return nil
	}
	if c, ok := seen[m]; ok {
		return c
	}
	c := &Map{entries: make(map[string]Value, len(m.entries))}
	seen[m] = c
	for key, val := range m.entries {
		c.entries[key] = cloneValue(val, seen)
	}
	return c
}

// Without returns a shallow copy of m lacking the given keys. Nested values
// are shared with m, so the result must be treated as read-only.
func (m *Map) Without(keys ...string) *Map {
	out := &Map{entries: make(map[string]Value, m.Len())}
	if m == nil {
		return out
	}
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	for key, val := range m.entries {
		if !skip[key] {
			out.entries[key] = val
		}
	}
	return out
}

// ToAny converts m to a plain map[string]any.
func (m *Map) ToAny() map[string]any {
	return mapToAny(m, make(map[*Map]bool))
}

// Equal reports whether m and other hold the same data.
func (m *Map) Equal(other *Map) bool {
	return Equal(Mapping(orEmpty(m)), Mapping(orEmpty(other)))
}

func orEmpty(m *Map) *Map {
	if m == nil {
		return NewMap()
	}
	return m
}

// GetPath retrieves a value using a dot-separated path.
func (m *Map) GetPath(path string) (Value, bool) {
	if m == nil || path == "" {
		return Value{}, false
	}

	current := m
	parts := strings.Split(path, ".")
	for i, part := range parts {
		val, ok := current.entries[part]
		if !ok || val.IsAbsent() {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return val, true
		}
		if val.kind != KindMapping {
			return Value{}, false
		}
		current = val.m
	}
	return Value{}, false
}

// JoinPath appends key to a dot-separated prefix.
func JoinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
