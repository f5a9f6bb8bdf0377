package merge

import (
	"sort"
	"strings"

	"github.com/dshills/archctx/internal/engine/value"
)

// Result is the outcome of a merge.
type Result struct {
	// Merged is a freshly allocated map owned by the caller.
	Merged *value.Map

	// Contributions holds one record per written leaf path, sorted by path.
	// It is nil unless source tracking was enabled.
	Contributions []Contribution
}

// ContributionFor returns the contribution recorded for path.
func (r Result) ContributionFor(path string) (Contribution, bool) {
	i := sort.Search(len(r.Contributions), func(i int) bool {
		return r.Contributions[i].Path >= path
	})
	if i < len(r.Contributions) && r.Contributions[i].Path == path {
		return r.Contributions[i], true
	}
	return Contribution{}, false
}

type options struct {
	arrays ArrayStrategy
	track  bool
}

// Option configures a merge.
type Option func(*options)

// WithArrayStrategy selects how sequences combine. The default is ArrayReplace.
func WithArrayStrategy(s ArrayStrategy) Option {
	return func(o *options) {
		o.arrays = s
	}
}

// WithSourceTracking enables per-path contribution records.
func WithSourceTracking(enable bool) Option {
	return func(o *options) {
		o.track = enable
	}
}

// Merge combines layers in order into a new map. It never fails and never
// mutates a layer: a mapping that is reached twice while walking one layer is
// dropped at its second occurrence, and the visited set is reset for every
// layer so the same mapping may appear in several layers.
func Merge(layers []Layer, opts ...Option) Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &merger{opts: o}
	if o.track {
		m.contrib = make(map[string]Contribution)
	}

	out := value.NewMap()
	for _, l := range layers {
		if l.Partial == nil {
			continue
		}
		m.source = l.Source
		m.level = LevelOf(l.Source)

		visited := map[*value.Map]struct{}{l.Partial: {}}
		m.mergeMap(out, l.Partial, "", visited)
	}

	return Result{Merged: out, Contributions: m.contributions()}
}

// Two merges override onto base without provenance.
func Two(base, override *value.Map) *value.Map {
	return Merge([]Layer{{Source: "base", Partial: base}, {Source: "override", Partial: override}}).Merged
}

type merger struct {
	opts    options
	source  string
	level   Level
	contrib map[string]Contribution
}

func (m *merger) mergeMap(dst, src *value.Map, prefix string, visited map[*value.Map]struct{}) {
	for _, key := range src.Keys() {
		incoming := src.Get(key)
		path := value.JoinPath(prefix, key)
		existing := dst.Get(key)

		switch incoming.Kind() {
		case value.KindAbsent:
			continue

		case value.KindMapping:
			child := incoming.Map()
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}

			target := existing.Map()
			created := target == nil
			if created {
				// A scalar, sequence or null is replaced, not merged.
				target = value.NewMap()
				dst.Set(key, value.Mapping(target))
				m.forget(path)
			}
			m.mergeMap(target, child, path, visited)

			// An empty mapping is itself a leaf of the result.
			switch {
			case target.Len() > 0:
				m.forget(path)
			case created:
				m.record(path)
			}

		case value.KindSequence:
			items := cloneItems(incoming.Items(), visited)
			if m.opts.arrays == ArrayConcat && existing.Kind() == value.KindSequence {
				items = append(existing.Items(), items...)
			}
			m.write(dst, key, path, value.Seq(items...), existing)

		default:
			// Null and scalars are immutable and can be stored as-is.
			m.write(dst, key, path, incoming, existing)
		}
	}
}

func (m *merger) write(dst *value.Map, key, path string, v, existing value.Value) {
	dst.Set(key, v)
	if m.contrib == nil {
		return
	}
	if existing.Kind() == value.KindMapping {
		m.forgetBelow(path)
	}
	m.record(path)
}

func (m *merger) record(path string) {
	if m.contrib != nil {
		m.contrib[path] = Contribution{Source: m.source, Path: path, Level: m.level}
	}
}

// cloneItems deep-copies sequence items so the result never aliases a layer.
// Mappings already visited in the current layer are dropped.
func cloneItems(items []value.Value, visited map[*value.Map]struct{}) []value.Value {
	out := make([]value.Value, 0, len(items))
	for _, item := range items {
		switch item.Kind() {
		case value.KindAbsent:
		case value.KindSequence:
			out = append(out, value.Seq(cloneItems(item.Items(), visited)...))
		case value.KindMapping:
			if c := cloneGuarded(item.Map(), visited); c != nil {
				out = append(out, value.Mapping(c))
			}
		default:
			out = append(out, item)
		}
	}
	return out
}

func cloneGuarded(src *value.Map, visited map[*value.Map]struct{}) *value.Map {
	if _, seen := visited[src]; seen {
		return nil
	}
	visited[src] = struct{}{}

	out := value.NewMap()
	for _, key := range src.Keys() {
		item := src.Get(key)
		switch item.Kind() {
		case value.KindSequence:
			out.Set(key, value.Seq(cloneItems(item.Items(), visited)...))
		case value.KindMapping:
			if c := cloneGuarded(item.Map(), visited); c != nil {
				out.Set(key, value.Mapping(c))
			}
		default:
			out.Set(key, item)
		}
	}
	return out
}

// forget drops the record for path itself.
func (m *merger) forget(path string) {
	if m.contrib != nil {
		delete(m.contrib, path)
	}
}

// forgetBelow drops records for paths nested under path.
func (m *merger) forgetBelow(path string) {
	prefix := path + "."
	for p := range m.contrib {
		if strings.HasPrefix(p, prefix) {
			delete(m.contrib, p)
		}
	}
}

func (m *merger) contributions() []Contribution {
	if m.contrib == nil {
		return nil
	}
	out := make([]Contribution, 0, len(m.contrib))
	for _, c := range m.contrib {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}
