package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/archctx/internal/engine/value"
)

func m(data map[string]any) *value.Map {
	return value.MapFrom(data)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		layers   []Layer
		expected map[string]any
	}{
		{
			name:     "no layers",
			layers:   nil,
			expected: map[string]any{},
		},
		{
			name:     "absent layer skipped",
			layers:   []Layer{{Source: "a", Partial: nil}, {Source: "b", Partial: m(map[string]any{"x": 1})}},
			expected: map[string]any{"x": int64(1)},
		},
		{
			name: "later layer wins",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"x": 1, "y": "keep"})},
				{Source: "b", Partial: m(map[string]any{"x": 2})},
			},
			expected: map[string]any{"x": int64(2), "y": "keep"},
		},
		{
			name: "null clears",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"x": 1})},
				{Source: "b", Partial: m(map[string]any{"x": nil})},
			},
			expected: map[string]any{"x": nil},
		},
		{
			name: "nested merge",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"scaling": map[string]any{"min": 1, "max": 3}})},
				{Source: "b", Partial: m(map[string]any{"scaling": map[string]any{"max": 10}})},
			},
			expected: map[string]any{"scaling": map[string]any{"min": int64(1), "max": int64(10)}},
		},
		{
			name: "arrays replace by default",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"xs": []any{1, 2}})},
				{Source: "b", Partial: m(map[string]any{"xs": []any{3}})},
			},
			expected: map[string]any{"xs": []any{int64(3)}},
		},
		{
			name: "object replaces scalar",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"v": "string"})},
				{Source: "b", Partial: m(map[string]any{"v": map[string]any{"a": 1}})},
			},
			expected: map[string]any{"v": map[string]any{"a": int64(1)}},
		},
		{
			name: "scalar replaces object",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"v": map[string]any{"a": 1}})},
				{Source: "b", Partial: m(map[string]any{"v": "string"})},
			},
			expected: map[string]any{"v": "string"},
		},
		{
			name: "object replaces null",
			layers: []Layer{
				{Source: "a", Partial: m(map[string]any{"v": nil})},
				{Source: "b", Partial: m(map[string]any{"v": map[string]any{"a": 1}})},
			},
			expected: map[string]any{"v": map[string]any{"a": int64(1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.layers).Merged.ToAny()
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeAbsentIgnored(t *testing.T) {
	override := value.NewMap()
	override.Set("x", value.Value{})

	got := Merge([]Layer{
		{Source: "a", Partial: m(map[string]any{"x": 1})},
		{Source: "b", Partial: override},
	}).Merged

	if i, ok := got.Get("x").AsInt(); !ok || i != 1 {
		t.Errorf("x = %v, want 1", got.Get("x"))
	}
}

func TestMergeArrayConcat(t *testing.T) {
	layers := []Layer{
		{Source: "a", Partial: m(map[string]any{"xs": []any{1, 2}})},
		{Source: "b", Partial: m(map[string]any{"xs": []any{3}})},
	}

	got := Merge(layers, WithArrayStrategy(ArrayConcat)).Merged.ToAny()
	want := map[string]any{"xs": []any{int64(1), int64(2), int64(3)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	base := m(map[string]any{
		"nested": map[string]any{"a": 1},
		"list":   []any{map[string]any{"b": 2}},
	})
	snapshot := base.Clone()

	got := Merge([]Layer{{Source: "a", Partial: base}}).Merged
	if got == base {
		t.Fatal("Merge() returned an input map")
	}

	got.Get("nested").Map().Set("a", value.Int(99))
	got.Get("list").Items()[0].Map().Set("b", value.Int(99))
	got.Set("new", value.String("x"))

	if !base.Equal(snapshot) {
		t.Errorf("mutating the result changed the input: %v", base.ToAny())
	}
}

func TestMergeIdempotentForRepeatedLayer(t *testing.T) {
	l := Layer{Source: "services/api.yaml", Partial: m(map[string]any{
		"region":  "us-east-1",
		"scaling": map[string]any{"min": 1, "policy": map[string]any{"cpu": 70}},
		"tags":    []any{"a", "b"},
		"gone":    nil,
	})}

	once := Merge([]Layer{l}).Merged
	twice := Merge([]Layer{l, l}).Merged
	if !once.Equal(twice) {
		t.Errorf("merge([L, L]) = %v, want %v", twice.ToAny(), once.ToAny())
	}
}

func TestMergeSharedSubObjectAcrossLayers(t *testing.T) {
	shared := m(map[string]any{"cpu": "500m"})
	base := value.NewMap()
	base.Set("resources", value.Mapping(shared))
	override := value.NewMap()
	override.Set("resources", value.Mapping(shared))

	got := Merge([]Layer{{Source: "a", Partial: base}, {Source: "b", Partial: override}}, WithSourceTracking(true))

	if v, _ := got.Merged.GetPath("resources.cpu"); !value.Equal(v, value.String("500m")) {
		t.Errorf("resources.cpu = %v, want 500m", v)
	}
	c, ok := got.ContributionFor("resources.cpu")
	if !ok || c.Source != "b" {
		t.Errorf("contribution = %+v, want source b", c)
	}
}

func TestMergeCyclicPartialDegrades(t *testing.T) {
	cyclic := m(map[string]any{"name": "api"})
	cyclic.Set("self", value.Mapping(cyclic))
	inner := m(map[string]any{"k": "v"})
	inner.Set("back", value.Mapping(inner))
	cyclic.Set("inner", value.Mapping(inner))
	cyclic.Set("list", value.Seq(value.Mapping(cyclic), value.String("x")))

	got := Merge([]Layer{{Source: "a", Partial: cyclic}}).Merged.ToAny()
	want := map[string]any{
		"name":  "api",
		"inner": map[string]any{"k": "v"},
		"list":  []any{"x"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeContributions(t *testing.T) {
	layers := []Layer{
		{Source: "system/defaults.yaml", Partial: m(map[string]any{
			"region":  "us-east-1",
			"scaling": map[string]any{"min": 1, "max": 2},
		})},
		{Source: "services/api.yaml", Partial: m(map[string]any{
			"scaling": map[string]any{"max": 5},
		})},
		{Source: "tenants/acme.yaml#services.api", Partial: m(map[string]any{
			"region": nil,
		})},
		{Source: "environments/prod.yaml", Partial: m(map[string]any{
			"scaling": "fixed",
		})},
	}

	got := Merge(layers, WithSourceTracking(true)).Contributions
	want := []Contribution{
		{Source: "tenants/acme.yaml#services.api", Path: "region", Level: LevelTenant},
		{Source: "environments/prod.yaml", Path: "scaling", Level: LevelEnvironment},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Contributions mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeContributionsOneRecordPerPath(t *testing.T) {
	layers := []Layer{
		{Source: "services/api.yaml", Partial: m(map[string]any{"port": 80, "limits": "none"})},
		{Source: "environments/prod.yaml", Partial: m(map[string]any{"port": 443, "limits": map[string]any{"cpu": 2}})},
	}

	got := Merge(layers, WithSourceTracking(true)).Contributions
	want := []Contribution{
		{Source: "environments/prod.yaml", Path: "limits.cpu", Level: LevelEnvironment},
		{Source: "environments/prod.yaml", Path: "port", Level: LevelEnvironment},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Contributions mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeContributionsEmptyMapping(t *testing.T) {
	tests := []struct {
		name   string
		layers []Layer
		want   []Contribution
	}{
		{
			name: "empty mapping replaces scalar",
			layers: []Layer{
				{Source: "services/api.yaml", Partial: m(map[string]any{"x": 1})},
				{Source: "environments/prod.yaml", Partial: m(map[string]any{"x": map[string]any{}})},
			},
			want: []Contribution{
				{Source: "environments/prod.yaml", Path: "x", Level: LevelEnvironment},
			},
		},
		{
			name: "empty mapping into existing mapping keeps leaves",
			layers: []Layer{
				{Source: "services/api.yaml", Partial: m(map[string]any{"x": map[string]any{"a": 1}})},
				{Source: "environments/prod.yaml", Partial: m(map[string]any{"x": map[string]any{}})},
			},
			want: []Contribution{
				{Source: "services/api.yaml", Path: "x.a", Level: LevelService},
			},
		},
		{
			name: "later child supersedes empty container",
			layers: []Layer{
				{Source: "services/api.yaml", Partial: m(map[string]any{"x": map[string]any{}})},
				{Source: "environments/prod.yaml", Partial: m(map[string]any{"x": map[string]any{"a": 1}})},
			},
			want: []Contribution{
				{Source: "environments/prod.yaml", Path: "x.a", Level: LevelEnvironment},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.layers, WithSourceTracking(true)).Contributions
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Contributions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeWithoutTracking(t *testing.T) {
	res := Merge([]Layer{{Source: "a", Partial: m(map[string]any{"x": 1})}})
	if res.Contributions != nil {
		t.Errorf("Contributions = %v, want nil", res.Contributions)
	}
}

func TestTwo(t *testing.T) {
	got := Two(m(map[string]any{"a": 1, "b": 1}), m(map[string]any{"b": 2})).ToAny()
	want := map[string]any{"a": int64(1), "b": int64(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Two() mismatch (-want +got):\n%s", diff)
	}
}
