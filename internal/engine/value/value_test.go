package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeYAMLNullVersusAbsent(t *testing.T) {
	m, err := DecodeYAML([]byte("region: eu-west-1\nreplicas: 3\ncleared: null\ntilde: ~\nratio: 0.5\nenabled: true\n"))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}

	if got := m.Get("cleared").Kind(); got != KindNull {
		t.Errorf("cleared kind = %v, want null", got)
	}
	if got := m.Get("tilde").Kind(); got != KindNull {
		t.Errorf("tilde kind = %v, want null", got)
	}
	if got := m.Get("missing").Kind(); got != KindAbsent {
		t.Errorf("missing kind = %v, want absent", got)
	}
	if i, ok := m.Get("replicas").AsInt(); !ok || i != 3 {
		t.Errorf("replicas = %v, want int 3", m.Get("replicas"))
	}
	if s, ok := m.Get("region").AsString(); !ok || s != "eu-west-1" {
		t.Errorf("region = %v, want eu-west-1", m.Get("region"))
	}
	if b, ok := m.Get("enabled").AsBool(); !ok || !b {
		t.Errorf("enabled = %v, want true", m.Get("enabled"))
	}
	if f, ok := m.Get("ratio").Scalar().(float64); !ok || f != 0.5 {
		t.Errorf("ratio = %v, want 0.5", m.Get("ratio"))
	}
}

func TestDecodeYAMLEmpty(t *testing.T) {
	m, err := DecodeYAML([]byte("  \n"))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestDecodeYAMLAliasesAreIndependentCopies(t *testing.T) {
	src := `
base: &base
  cpu: 500m
a: *base
b:
  <<: *base
  memory: 1Gi
`
	m, err := DecodeYAML([]byte(src))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if m.Get("a").Map() == m.Get("base").Map() {
		t.Error("alias decoded to the same *Map as its anchor")
	}

	want := map[string]any{"cpu": "500m", "memory": "1Gi"}
	if diff := cmp.Diff(want, m.Get("b").Map().ToAny()); diff != "" {
		t.Errorf("merge key mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeYAMLRejectsNonMapping(t *testing.T) {
	if _, err := DecodeYAML([]byte("- a\n- b\n")); err == nil {
		t.Error("DecodeYAML() of a sequence should fail")
	}
}

func TestEncodeYAMLRoundTrip(t *testing.T) {
	m := MapFrom(map[string]any{
		"name":         "api",
		"dependencies": []any{"db", "cache"},
		"scaling":      map[string]any{"min": 2, "max": 5},
		"cleared":      nil,
	})

	data, err := EncodeYAML(m)
	if err != nil {
		t.Fatalf("EncodeYAML() error = %v", err)
	}
	back, err := DecodeYAML(data)
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if !m.Equal(back) {
		t.Errorf("round trip mismatch:\n%s", data)
	}
}

func TestJSONKeepsIntegers(t *testing.T) {
	var v Value
	if err := v.UnmarshalJSON([]byte(`{"replicas": 3, "ratio": 1.5, "tags": ["a"], "gone": null}`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	m := v.Map()
	if i, ok := m.Get("replicas").AsInt(); !ok || i != 3 {
		t.Errorf("replicas = %v, want int 3", m.Get("replicas"))
	}
	if !m.Get("gone").IsNull() {
		t.Errorf("gone = %v, want null", m.Get("gone"))
	}
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"nil", nil, KindNull},
		{"string", "x", KindScalar},
		{"int", 3, KindScalar},
		{"uint8", uint8(3), KindScalar},
		{"float", 1.5, KindScalar},
		{"slice", []any{1, "a"}, KindSequence},
		{"string slice", []string{"a"}, KindSequence},
		{"typed slice", []int{1, 2}, KindSequence},
		{"map", map[string]any{"a": 1}, KindMapping},
		{"any map", map[any]any{"a": 1}, KindMapping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromAny(tt.in).Kind(); got != tt.kind {
				t.Errorf("FromAny(%v).Kind() = %v, want %v", tt.in, got, tt.kind)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := MapFrom(map[string]any{
		"nested": map[string]any{"a": 1},
		"list":   []any{map[string]any{"b": 2}},
	})
	c := orig.Clone()
	c.Get("nested").Map().Set("a", Int(99))
	c.Get("list").Items()[0].Map().Set("b", Int(99))

	if i, _ := orig.Get("nested").Map().Get("a").AsInt(); i != 1 {
		t.Errorf("nested.a = %d after mutating clone, want 1", i)
	}
	if i, _ := orig.Get("list").Items()[0].Map().Get("b").AsInt(); i != 2 {
		t.Errorf("list[0].b = %d after mutating clone, want 2", i)
	}
}

func TestCloneCyclic(t *testing.T) {
	m := NewMap()
	m.Set("self", Mapping(m))

	c := m.Clone()
	if c == m {
		t.Fatal("Clone() returned the receiver")
	}
	if c.Get("self").Map() != c {
		t.Error("cyclic reference not preserved inside the clone")
	}
	if got := m.ToAny(); len(got) != 0 {
		t.Errorf("ToAny() = %v, want the cyclic entry dropped", got)
	}
}

func TestGetPath(t *testing.T) {
	m := MapFrom(map[string]any{
		"scaling": map[string]any{"min": 2, "max": 4, "target": nil},
		"region":  "us-east-1",
	})

	tests := []struct {
		path string
		want Value
		ok   bool
	}{
		{"scaling.max", Int(4), true},
		{"region", String("us-east-1"), true},
		{"scaling.target", Null(), true},
		{"region.zone", Value{}, false},
		{"scaling.step", Value{}, false},
		{"nope", Value{}, false},
		{"", Value{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := m.GetPath(tt.path)
			if ok != tt.ok {
				t.Fatalf("GetPath(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if ok && !Equal(got, tt.want) {
				t.Errorf("GetPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	var empty *Map
	if _, ok := empty.GetPath("a"); ok {
		t.Error("GetPath on a nil map should fail")
	}
}

func TestWithout(t *testing.T) {
	m := MapFrom(map[string]any{"name": "api", "environments": map[string]any{}, "port": 8080})
	got := m.Without("environments", "missing")

	if got.Has("environments") {
		t.Error("Without() kept a removed key")
	}
	if !m.Has("environments") {
		t.Error("Without() mutated the receiver")
	}
	if diff := cmp.Diff([]string{"name", "port"}, got.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	if !Equal(Int(1), Float(1)) {
		t.Error("Int(1) should equal Float(1)")
	}
	if Equal(Null(), Value{}) {
		t.Error("null should not equal absent")
	}
	if Equal(Seq(Int(1)), Seq(Int(1), Int(2))) {
		t.Error("sequences of different length compared equal")
	}
	var nilMap *Map
	if !nilMap.Equal(NewMap()) {
		t.Error("nil map should equal an empty map")
	}
}
