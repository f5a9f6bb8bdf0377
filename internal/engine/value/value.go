// Package value provides the tagged value type used for shape-free
// configuration documents.
//
// A Value is one of absent, null, scalar, sequence or mapping. The zero Value
// is absent: it is what a missing key looks like and it never overrides
// anything during a merge. Null is an explicit value that clears a path.
package value

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindAbsent is the zero Kind; the value is undefined.
	KindAbsent Kind = iota
	// KindNull is an explicit null.
	KindNull
	// KindScalar is a string, bool, int64 or float64.
	KindScalar
	// KindSequence is an ordered list of values.
	KindSequence
	// KindMapping is a string-keyed map of values.
	KindMapping
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a tagged configuration value.
type Value struct {
	kind   Kind
	scalar any
	seq    []Value
	m      *Map
}

// Null returns an explicit null value.
func Null() Value {
	return Value{kind: KindNull}
}

// String returns a string scalar.
func String(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// Int returns an integer scalar.
func Int(i int64) Value {
	return Value{kind: KindScalar, scalar: i}
}

// Float returns a floating point scalar.
func Float(f float64) Value {
	return Value{kind: KindScalar, scalar: f}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{kind: KindScalar, scalar: b}
}

// Seq returns a sequence holding a copy of items.
func Seq(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindSequence, seq: out}
}

// Mapping wraps m. A nil map yields an absent value.
func Mapping(m *Map) Value {
	if m == nil {
		return Value{}
	}
	return Value{kind: KindMapping, m: m}
}

// FromAny converts plain Go data (as produced by yaml or json decoders) into
// a Value. Maps are always freshly allocated.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case *Map:
		return Mapping(x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return fromUint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case time.Time:
		return String(x.Format(time.RFC3339Nano))
	case time.Duration:
		return String(x.String())
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Value{kind: KindSequence, seq: items}
	case []string:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = String(item)
		}
		return Value{kind: KindSequence, seq: items}
	case map[string]any:
		return Mapping(MapFrom(x))
	case map[any]any:
		m := NewMap()
		for k, item := range x {
			m.Set(fmt.Sprint(k), FromAny(item))
		}
		return Mapping(m)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return Value{kind: KindSequence, seq: items}
	case reflect.Map:
		m := NewMap()
		iter := rv.MapRange()
		for iter.Next() {
			m.Set(fmt.Sprint(iter.Key().Interface()), FromAny(iter.Value().Interface()))
		}
		return Mapping(m)
	}
	return String(fmt.Sprint(v))
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsAbsent reports whether v is undefined.
func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

// IsNull reports whether v is an explicit null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Scalar returns the scalar payload, or nil for non-scalars.
func (v Value) Scalar() any {
	if v.kind != KindScalar {
		return nil
	}
	return v.scalar
}

// AsString returns the string payload if v is a string scalar.
func (v Value) AsString() (string, bool) {
	s, ok := v.Scalar().(string)
	return s, ok
}

// AsInt returns the integer payload if v is an integer scalar.
func (v Value) AsInt() (int64, bool) {
	i, ok := v.Scalar().(int64)
	return i, ok
}

// AsBool returns the boolean payload if v is a boolean scalar.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.Scalar().(bool)
	return b, ok
}

// Items returns a copy of the sequence items. Non-sequences return nil.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	out := make([]Value, len(v.seq))
	copy(out, v.seq)
	return out
}

// Len returns the number of items of a sequence or entries of a mapping.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return v.m.Len()
	default:
		return 0
	}
}

// Map returns the mapping payload, or nil for non-mappings.
func (v Value) Map() *Map {
	if v.kind != KindMapping {
		return nil
	}
	return v.m
}

// Clone returns a deep copy of v. Mappings reachable more than once inside v
// keep their sharing in the copy, so cyclic values are cloned safely.
func (v Value) Clone() Value {
	return cloneValue(v, make(map[*Map]*Map))
}

func cloneValue(v Value, seen map[*Map]*Map) Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = cloneValue(item, seen)
		}
		return Value{kind: KindSequence, seq: items}
	case KindMapping:
		return Mapping(cloneMap(v.m, seen))
	default:
		return v
	}
}

// ToAny converts v to plain Go data: map[string]any, []any, scalars and nil.
// Absent values convert to nil. A mapping nested inside itself is dropped at
// the point of recursion.
func (v Value) ToAny() any {
	return toAny(v, make(map[*Map]bool))
}

func toAny(v Value, onPath map[*Map]bool) any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindSequence:
		out := make([]any, 0, len(v.seq))
		for _, item := range v.seq {
			if item.kind == KindMapping && onPath[item.m] {
				continue
			}
			out = append(out, toAny(item, onPath))
		}
		return out
	case KindMapping:
		return mapToAny(v.m, onPath)
	default:
		return nil
	}
}

func mapToAny(m *Map, onPath map[*Map]bool) map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	onPath[m] = true
	defer delete(onPath, m)
	for key, item := range m.entries {
		if item.kind == KindAbsent {
			continue
		}
		if item.kind == KindMapping && onPath[item.m] {
			continue
		}
		out[key] = toAny(item, onPath)
	}
	return out
}

// Equal reports whether a and b hold the same data. Mappings compare by
// content; scalars compare numerically across int64 and float64.
func Equal(a, b Value) bool {
	return equal(a, b, make(map[[2]*Map]bool))
}

func equal(a, b Value, seen map[[2]*Map]bool) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindScalar:
		return scalarsEqual(a.scalar, b.scalar)
	case KindSequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !equal(a.seq[i], b.seq[i], seen) {
				return false
			}
		}
		return true
	case KindMapping:
		pair := [2]*Map{a.m, b.m}
		if a.m == b.m || seen[pair] {
			return true
		}
		seen[pair] = true
		if a.m.Len() != b.m.Len() {
			return false
		}
		for key, av := range a.m.entries {
			bv, ok := b.m.entries[key]
			if !ok || !equal(av, bv, seen) {
				return false
			}
		}
		return true
	}
	return false
}

func scalarsEqual(a, b any) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
	}
	return a == b
}

// String renders v for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindNull:
		return "null"
	default:
		return fmt.Sprint(v.ToAny())
	}
}
