// Package depgraph builds the dependency graph between services and detects
// cycles in it.
//
// The graph is a derived view: it is rebuilt from the full service collection
// whenever it is needed and is never persisted or patched incrementally.
package depgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/archctx/internal/model"
)

// Graph maps an entity name to the names it depends on.
type Graph map[string][]string

// Lister lists every known service.
type Lister interface {
	ListServices(ctx context.Context) ([]*model.Service, error)
}

// Build reads every service from src and collects its declared dependencies.
// Duplicate dependency names are collapsed, keeping the first occurrence.
func Build(ctx context.Context, src Lister) (Graph, error) {
	services, err := src.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	g := make(Graph, len(services))
	for _, svc := range services {
		g[svc.Name] = dedupe(svc.Dependencies())
	}
	return g, nil
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Clone returns a copy of g that can be modified independently.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for name, deps := range g {
		out[name] = append([]string(nil), deps...)
	}
	return out
}

// AddEdge adds from -> to unless it already exists.
func (g Graph) AddEdge(from, to string) {
	for _, d := range g[from] {
		if d == to {
			return
		}
	}
	g[from] = append(g[from], to)
}

// RemoveEdge removes from -> to if present.
func (g Graph) RemoveEdge(from, to string) {
	deps := g[from]
	for i, d := range deps {
		if d == to {
			g[from] = append(deps[:i:i], deps[i+1:]...)
			return
		}
	}
}

// HasEdge reports whether from depends directly on to.
func (g Graph) HasEdge(from, to string) bool {
	for _, d := range g[from] {
		if d == to {
			return true
		}
	}
	return false
}

// Nodes returns every name in g, including names that only appear as
// dependencies, in sorted order.
func (g Graph) Nodes() []string {
	seen := make(map[string]bool, len(g))
	for name, deps := range g {
		seen[name] = true
		for _, d := range deps {
			seen[d] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EdgeCount returns the number of edges.
func (g Graph) EdgeCount() int {
	n := 0
	for _, deps := range g {
		n += len(deps)
	}
	return n
}

// Dependents returns the names that depend directly on name, sorted.
func (g Graph) Dependents(name string) []string {
	var out []string
	for from, deps := range g {
		for _, d := range deps {
			if d == name {
				out = append(out, from)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Missing returns dependency names that have no node of their own, sorted.
func (g Graph) Missing() []string {
	var out []string
	for _, name := range g.Nodes() {
		if _, ok := g[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
