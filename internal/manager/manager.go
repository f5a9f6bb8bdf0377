// Package manager applies changes to the service dependency graph.
//
// Every write rebuilds the graph from the current service collection and
// refuses a change that would leave it inconsistent: an edge that closes a
// cycle, an edge to a service that does not exist, or the removal of a
// service that others still depend on. Writes are serialised.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"

	"github.com/dshills/archctx/internal/engine/depgraph"
	"github.com/dshills/archctx/internal/engine/resolve"
	"github.com/dshills/archctx/internal/model"
)

// Store is the storage the manager reads and writes services through.
type Store interface {
	Service(ctx context.Context, name string) (*model.Service, error)
	ListServices(ctx context.Context) ([]*model.Service, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	SaveService(ctx context.Context, svc *model.Service) error
	DeleteService(ctx context.Context, name string) error
}

// Reader is a read path that may serve stale data until invalidated.
type Reader interface {
	Service(ctx context.Context, name string) (*model.Service, error)
	ListServices(ctx context.Context) ([]*model.Service, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	Invalidate(kind model.Kind, name string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithReader routes reads through r, typically a store.Cache over the same
// store. Entries are invalidated after each write.
func WithReader(r Reader) Option {
	return func(m *Manager) {
		m.cache = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Manager performs validated writes to services.
type Manager struct {
	mu    sync.Mutex
	store Store
	cache Reader
	log   logr.Logger
}

// New creates a Manager writing to st.
func New(st Store, opts ...Option) *Manager {
	m := &Manager{
		store: st,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) reader() depgraph.Lister {
	if m.cache != nil {
		return m.cache
	}
	return m.store
}

func (m *Manager) service(ctx context.Context, name string) (*model.Service, error) {
	var (
		svc *model.Service
		err error
	)
	if m.cache != nil {
		svc, err = m.cache.Service(ctx, name)
	} else {
		svc, err = m.store.Service(ctx, name)
	}
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("loading service %q: %w", name, err)
	}

	available, listErr := m.names(ctx)
	if listErr != nil {
		m.log.Error(listErr, "listing alternatives failed")
	}
	return nil, &resolve.MissingEntityError{Kind: model.KindService, Name: name, Available: available}
}

func (m *Manager) names(ctx context.Context) ([]string, error) {
	list, err := m.reader().ListServices(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *Manager) graph(ctx context.Context) (depgraph.Graph, error) {
	g, err := depgraph.Build(ctx, m.reader())
	if err != nil {
		return nil, fmt.Errorf("building dependency graph: %w", err)
	}
	return g, nil
}

func (m *Manager) invalidate(name string) {
	if m.cache != nil {
		m.cache.Invalidate(model.KindService, name)
	}
}

// save writes deps as the dependency list of svc. The cached entity is
// shared, so the document is cloned before it is modified.
func (m *Manager) save(ctx context.Context, svc *model.Service, deps []string) error {
	updated := model.NewService(svc.Name, svc.Doc.Clone())
	updated.SetDependencies(deps)
	if err := m.store.SaveService(ctx, updated); err != nil {
		return fmt.Errorf("saving service %q: %w", svc.Name, err)
	}
	m.invalidate(svc.Name)
	return nil
}

// AddDependency records that from depends on to. Both services must exist.
// A change that would close a cycle is refused with a *depgraph.CycleError
// describing the cycle it would create. Adding an existing edge is a no-op.
func (m *Manager) AddDependency(ctx context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.service(ctx, from)
	if err != nil {
		return err
	}
	if _, err := m.service(ctx, to); err != nil {
		return err
	}

	g, err := m.graph(ctx)
	if err != nil {
		return err
	}
	if g.HasEdge(from, to) {
		m.log.V(1).Info("dependency already present", "from", from, "to", to)
		return nil
	}

	if res := depgraph.WouldCreateCycle(from, to, g); res.HasCycle {
		m.log.Info("dependency refused", "from", from, "to", to, "cycle", depgraph.FormatCycle(res.Cycle))
		return res.Err()
	}

	if err := m.save(ctx, src, append(src.Dependencies(), to)); err != nil {
		return err
	}
	m.log.Info("dependency added", "from", from, "to", to)
	return nil
}

// RemoveDependency removes the edge from -> to. It fails with
// ErrNoDependency when from does not declare to.
func (m *Manager) RemoveDependency(ctx context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.service(ctx, from)
	if err != nil {
		return err
	}

	deps := src.Dependencies()
	kept := slices.DeleteFunc(slices.Clone(deps), func(d string) bool { return d == to })
	if len(kept) == len(deps) {
		return &DependencyError{From: from, To: to}
	}

	if err := m.save(ctx, src, kept); err != nil {
		return err
	}
	m.log.Info("dependency removed", "from", from, "to", to)
	return nil
}

// DeleteService removes a service no other service depends on.
func (m *Manager) DeleteService(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.service(ctx, name); err != nil {
		return err
	}

	g, err := m.graph(ctx)
	if err != nil {
		return err
	}
	if dependents := slices.DeleteFunc(g.Dependents(name), func(d string) bool { return d == name }); len(dependents) > 0 {
		return &InUseError{Service: name, Dependents: dependents}
	}

	if err := m.store.DeleteService(ctx, name); err != nil {
		return fmt.Errorf("deleting service %q: %w", name, err)
	}
	m.invalidate(name)
	m.log.Info("service deleted", "service", name)
	return nil
}

// Dependents returns the services that depend directly on name.
func (m *Manager) Dependents(ctx context.Context, name string) ([]string, error) {
	if _, err := m.service(ctx, name); err != nil {
		return nil, err
	}
	g, err := m.graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.Dependents(name), nil
}

// TenantOverride names a tenant's override section for one service.
type TenantOverride struct {
	Tenant  string `json:"tenant" yaml:"tenant"`
	Service string `json:"service" yaml:"service"`
}

func (o TenantOverride) String() string {
	return o.Tenant + "/" + o.Service
}

// GraphReport summarises the dependency graph.
type GraphReport struct {
	Services int             `json:"services" yaml:"services"`
	Edges    int             `json:"edges" yaml:"edges"`
	Graph    depgraph.Graph  `json:"graph" yaml:"graph"`
	Missing  []string        `json:"missing,omitempty" yaml:"missing,omitempty"`
	Cycle    depgraph.Result `json:"cycle" yaml:"cycle"`

	// StaleOverrides are tenant overrides of services that do not exist.
	// Resolution never reads them.
	StaleOverrides []TenantOverride `json:"stale_overrides,omitempty" yaml:"stale_overrides,omitempty"`
}

// Healthy reports whether the graph has no cycle, no dangling edges and no
// stale tenant overrides.
func (r GraphReport) Healthy() bool {
	return !r.Cycle.HasCycle && len(r.Missing) == 0 && len(r.StaleOverrides) == 0
}

// CheckGraph validates the whole dependency graph. A cycle is reported in
// the result, not as an error.
func (m *Manager) CheckGraph(ctx context.Context) (GraphReport, error) {
	g, err := m.graph(ctx)
	if err != nil {
		return GraphReport{}, err
	}
	stale, err := m.staleOverrides(ctx, g)
	if err != nil {
		return GraphReport{}, err
	}
	return GraphReport{
		Services:       len(g),
		Edges:          g.EdgeCount(),
		Graph:          g,
		Missing:        g.Missing(),
		Cycle:          depgraph.Validate(g),
		StaleOverrides: stale,
	}, nil
}

// staleOverrides lists tenant service overrides whose service is not in g,
// ordered by tenant then service.
func (m *Manager) staleOverrides(ctx context.Context, g depgraph.Graph) ([]TenantOverride, error) {
	var (
		tenants []*model.Tenant
		err     error
	)
	if m.cache != nil {
		tenants, err = m.cache.ListTenants(ctx)
	} else {
		tenants, err = m.store.ListTenants(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}

	var stale []TenantOverride
	for _, t := range tenants {
		for _, svc := range t.OverriddenServices() {
			if _, ok := g[svc]; !ok {
				stale = append(stale, TenantOverride{Tenant: t.Name, Service: svc})
			}
		}
	}
	slices.SortFunc(stale, func(a, b TenantOverride) int {
		if c := cmp.Compare(a.Tenant, b.Tenant); c != 0 {
			return c
		}
		return cmp.Compare(a.Service, b.Service)
	})
	return stale, nil
}
