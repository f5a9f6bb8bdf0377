// Package resolve sequences configuration layers for services and
// environments and merges them into a resolved context.
//
// Service layers, lowest precedence first:
//
//  1. system defaults, reshaped into service fields
//  2. the service's base configuration
//  3. the service's override for the requested environment
//  4. the environment's cross-cutting configuration
//  5. the tenant's global overrides
//  6. the tenant's override for the requested environment
//  7. the tenant's override for the service
//
// Missing optional layers are skipped. A missing service or a missing
// requested tenant fails with the list of names that do exist.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/dshills/archctx/internal/engine/depgraph"
	"github.com/dshills/archctx/internal/engine/merge"
	"github.com/dshills/archctx/internal/model"
)

// Source is the storage the engine reads from. Lookups of missing entities
// must return an error matching model.ErrNotFound.
type Source interface {
	SystemDefaults(ctx context.Context) (*model.Defaults, error)
	Service(ctx context.Context, name string) (*model.Service, error)
	Environment(ctx context.Context, name string) (*model.Environment, error)
	Tenant(ctx context.Context, name string) (*model.Tenant, error)
	ListServices(ctx context.Context) ([]*model.Service, error)
	ListEnvironments(ctx context.Context) ([]*model.Environment, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
}

// Engine resolves services and environments. It holds no mutable state and
// is safe for concurrent use if its Source is.
type Engine struct {
	src       Source
	log       logr.Logger
	now       func() time.Time
	newID     func() string
	mergeOpts []merge.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logr.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithClock sets the time source used for ResolvedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets the generator for resolution IDs.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithMergeOptions sets options passed to every merge.
func WithMergeOptions(opts ...merge.Option) Option {
	return func(e *Engine) {
		e.mergeOpts = append(e.mergeOpts, opts...)
	}
}

// NewEngine creates an engine reading from src.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:   src,
		log:   logr.Discard(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveService merges every applicable layer for the named service.
func (e *Engine) ResolveService(ctx context.Context, name string, q Query) (*Context, error) {
	log := e.log.WithValues("service", name)
	if q.Environment != "" {
		log = log.WithValues("environment", q.Environment)
	}
	if q.Tenant != "" {
		log = log.WithValues("tenant", q.Tenant)
	}

	var layers []merge.Layer
	apply := func(l merge.Layer) {
		if l.Partial == nil {
			return
		}
		layers = append(layers, l)
		log.V(1).Info("layer applied", "source", l.Source)
	}

	// 1. System defaults.
	defaults, err := e.src.SystemDefaults(ctx)
	switch {
	case err == nil:
		apply(merge.NewLayer(defaults.SourceID(), defaults.ServiceDefaults()))
	case errors.Is(err, model.ErrNotFound):
		log.V(1).Info("no system defaults")
	default:
		return nil, fmt.Errorf("loading system defaults: %w", err)
	}

	// 2. Service base; required.
	svc, err := e.src.Service(ctx, name)
	if err != nil {
		return nil, e.missing(ctx, model.KindService, name, err)
	}
	apply(merge.NewLayer(svc.SourceID(), svc.Base()))

	// 3-4. Environment-specific layers; the environment itself is optional.
	var env *model.Environment
	if q.Environment != "" {
		apply(merge.NewLayer(svc.EnvironmentOverrideID(q.Environment), svc.EnvironmentOverride(q.Environment)))

		env, err = e.src.Environment(ctx, q.Environment)
		switch {
		case err == nil:
			apply(merge.NewLayer(env.SourceID(), env.ServiceLayer()))
		case errors.Is(err, model.ErrNotFound):
			env = nil
			log.V(1).Info("environment not defined, layer skipped")
		default:
			return nil, fmt.Errorf("loading environment %q: %w", q.Environment, err)
		}
	}

	// 5-7. Tenant layers, after the dependency graph is known to be sound.
	var tenant *model.Tenant
	if q.Tenant != "" {
		if err := e.checkCycles(ctx, name); err != nil {
			return nil, err
		}

		tenant, err = e.src.Tenant(ctx, q.Tenant)
		if err != nil {
			return nil, e.missing(ctx, model.KindTenant, q.Tenant, err)
		}
		apply(merge.NewLayer(tenant.SourceID(), tenant.Overrides()))
		if q.Environment != "" {
			apply(merge.NewLayer(tenant.EnvironmentOverrideID(q.Environment), tenant.EnvironmentOverride(q.Environment)))
		}
		apply(merge.NewLayer(tenant.ServiceOverrideID(name), tenant.ServiceOverride(name)))
	}

	rc := e.finish(model.KindService, name, layers)
	rc.Environment = env
	rc.Tenant = tenant
	log.Info("service resolved", "id", rc.ID, "layers", len(rc.Sources))
	return rc, nil
}

// ResolveEnvironment merges the named environment with the tenant's override
// for it. The environment is required; so is the tenant when named.
func (e *Engine) ResolveEnvironment(ctx context.Context, name, tenantName string) (*Context, error) {
	log := e.log.WithValues("environment", name)
	if tenantName != "" {
		log = log.WithValues("tenant", tenantName)
	}

	env, err := e.src.Environment(ctx, name)
	if err != nil {
		return nil, e.missing(ctx, model.KindEnvironment, name, err)
	}
	layers := []merge.Layer{merge.NewLayer(env.SourceID(), env.Doc)}

	var tenant *model.Tenant
	if tenantName != "" {
		tenant, err = e.src.Tenant(ctx, tenantName)
		if err != nil {
			return nil, e.missing(ctx, model.KindTenant, tenantName, err)
		}
		if ov := tenant.EnvironmentOverride(name); ov != nil {
			layers = append(layers, merge.NewLayer(tenant.EnvironmentOverrideID(name), ov))
		}
	}

	rc := e.finish(model.KindEnvironment, name, layers)
	rc.Environment = env
	rc.Tenant = tenant
	log.Info("environment resolved", "id", rc.ID, "layers", len(rc.Sources))
	return rc, nil
}

func (e *Engine) finish(kind model.Kind, name string, layers []merge.Layer) *Context {
	res := merge.Merge(layers, e.mergeOpts...)

	sources := make([]string, len(layers))
	for i, l := range layers {
		sources[i] = l.Source
	}

	return &Context{
		ID:            e.newID(),
		Kind:          kind,
		Entity:        name,
		Merged:        res.Merged,
		Sources:       sources,
		Contributions: res.Contributions,
		ResolvedAt:    e.now().UTC(),
	}
}

// checkCycles rebuilds the dependency graph and rejects a service that
// reaches a cycle.
func (e *Engine) checkCycles(ctx context.Context, name string) error {
	g, err := depgraph.Build(ctx, e.src)
	if err != nil {
		return fmt.Errorf("building dependency graph: %w", err)
	}

	res := depgraph.DetectCycle(name, g)
	if !res.HasCycle {
		return nil
	}
	e.log.Info("dependency cycle blocks resolution", "service", name, "cycle", depgraph.FormatCycle(res.Cycle))
	return &CircularDependencyError{Service: name, Cycle: res.Cycle, Message: res.Message}
}

// missing turns a not-found lookup into a MissingEntityError listing the
// alternatives. Other errors pass through.
func (e *Engine) missing(ctx context.Context, kind model.Kind, name string, err error) error {
	if !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("loading %s %q: %w", kind.Singular(), name, err)
	}

	available, listErr := e.names(ctx, kind)
	if listErr != nil {
		e.log.Error(listErr, "listing alternatives failed", "kind", kind.Singular())
	}
	return &MissingEntityError{Kind: kind, Name: name, Available: available}
}

func (e *Engine) names(ctx context.Context, kind model.Kind) ([]string, error) {
	var names []string
	switch kind {
	case model.KindService:
		list, err := e.src.ListServices(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			names = append(names, s.Name)
		}
	case model.KindEnvironment:
		list, err := e.src.ListEnvironments(ctx)
		if err != nil {
			return nil, err
		}
		for _, env := range list {
			names = append(names, env.Name)
		}
	case model.KindTenant:
		list, err := e.src.ListTenants(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range list {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
