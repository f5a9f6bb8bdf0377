package depgraph

import (
	"errors"
	"strings"
)

// ErrCycle matches every *CycleError.
var ErrCycle = errors.New("circular dependency")

// CycleError reports a dependency cycle. Cycle starts and ends with the same
// name.
type CycleError struct {
	Cycle []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return "circular dependency detected: " + FormatCycle(e.Cycle)
}

// Is implements error matching for CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// FormatCycle joins a cycle path with arrows.
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// Result is the outcome of a cycle check.
type Result struct {
	HasCycle bool     `json:"hasCycle" yaml:"hasCycle"`
	Cycle    []string `json:"cycle,omitempty" yaml:"cycle,omitempty"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Err returns a *CycleError when r holds a cycle, nil otherwise.
func (r Result) Err() error {
	if !r.HasCycle {
		return nil
	}
	return &CycleError{Cycle: r.Cycle}
}

func found(cycle []string) Result {
	return Result{
		HasCycle: true,
		Cycle:    cycle,
		Message:  (&CycleError{Cycle: cycle}).Error(),
	}
}

const (
	white = iota // unvisited
	gray         // on the current path
	black        // fully explored, no cycle below
)

// detector runs a colored depth-first search. Colors persist across starts
// so Validate never explores a node twice.
type detector struct {
	g     Graph
	color map[string]int
	stack []string
}

func newDetector(g Graph) *detector {
	return &detector{g: g, color: make(map[string]int)}
}

func (d *detector) visit(node string) []string {
	d.color[node] = gray
	d.stack = append(d.stack, node)

	for _, dep := range d.g[node] {
		switch d.color[dep] {
		case gray:
			return d.cycleTo(dep)
		case white:
			if cycle := d.visit(dep); cycle != nil {
				return cycle
			}
		}
	}

	d.stack = d.stack[:len(d.stack)-1]
	d.color[node] = black
	return nil
}

// cycleTo returns the stack from repeated back to itself.
func (d *detector) cycleTo(repeated string) []string {
	for i, n := range d.stack {
		if n == repeated {
			cycle := append([]string(nil), d.stack[i:]...)
			return append(cycle, repeated)
		}
	}
	return []string{repeated, repeated}
}

// DetectCycle looks for a cycle reachable from start. Parts of the graph not
// reachable from start are not examined.
func DetectCycle(start string, g Graph) Result {
	if len(g) == 0 {
		return Result{}
	}
	if cycle := newDetector(g).visit(start); cycle != nil {
		return found(cycle)
	}
	return Result{}
}

// Validate checks the whole graph, starting from each node in sorted order.
func Validate(g Graph) Result {
	d := newDetector(g)
	for _, node := range g.Nodes() {
		if d.color[node] != white {
			continue
		}
		if cycle := d.visit(node); cycle != nil {
			return found(cycle)
		}
	}
	return Result{}
}

// WouldCreateCycle reports whether adding from -> to would close a cycle.
// The edge is added to a working copy; g itself is left untouched.
func WouldCreateCycle(from, to string, g Graph) Result {
	if from == to {
		return found([]string{from, from})
	}

	work := g.Clone()
	work.AddEdge(from, to)

	if path := findPath(work, to, from); path != nil {
		return found(append([]string{from}, path...))
	}
	return Result{}
}

// findPath returns the first path from -> ... -> to found depth-first in
// adjacency order, or nil.
func findPath(g Graph, from, to string) []string {
	visited := make(map[string]bool)
	var path []string

	var walk func(node string) bool
	walk = func(node string) bool {
		visited[node] = true
		path = append(path, node)
		if node == to {
			return true
		}
		for _, dep := range g[node] {
			if !visited[dep] && walk(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if walk(from) {
		return path
	}
	return nil
}
