package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/archctx/internal/engine/depgraph"
	"github.com/dshills/archctx/internal/engine/merge"
	"github.com/dshills/archctx/internal/engine/value"
	"github.com/dshills/archctx/internal/model"
)

// memSource is an in-memory Source.
type memSource struct {
	defaults     *model.Defaults
	services     map[string]*model.Service
	environments map[string]*model.Environment
	tenants      map[string]*model.Tenant
	fail         error
}

func newMemSource() *memSource {
	return &memSource{
		services:     map[string]*model.Service{},
		environments: map[string]*model.Environment{},
		tenants:      map[string]*model.Tenant{},
	}
}

func (m *memSource) SystemDefaults(context.Context) (*model.Defaults, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	if m.defaults == nil {
		return nil, &model.NotFoundError{Kind: model.KindDefaults, Name: model.DefaultsName}
	}
	return m.defaults, nil
}

func (m *memSource) Service(_ context.Context, name string) (*model.Service, error) {
	if s, ok := m.services[name]; ok {
		return s, nil
	}
	return nil, &model.NotFoundError{Kind: model.KindService, Name: name}
}

func (m *memSource) Environment(_ context.Context, name string) (*model.Environment, error) {
	if e, ok := m.environments[name]; ok {
		return e, nil
	}
	return nil, &model.NotFoundError{Kind: model.KindEnvironment, Name: name}
}

func (m *memSource) Tenant(_ context.Context, name string) (*model.Tenant, error) {
	if t, ok := m.tenants[name]; ok {
		return t, nil
	}
	return nil, &model.NotFoundError{Kind: model.KindTenant, Name: name}
}

func (m *memSource) ListServices(context.Context) ([]*model.Service, error) {
	var out []*model.Service
	for _, s := range m.services {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSource) ListEnvironments(context.Context) ([]*model.Environment, error) {
	var out []*model.Environment
	for _, e := range m.environments {
		out = append(out, e)
	}
	return out, nil
}

func (m *memSource) ListTenants(context.Context) ([]*model.Tenant, error) {
	var out []*model.Tenant
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func doc(t *testing.T, src string) *value.Map {
	t.Helper()
	m, err := value.DecodeYAML([]byte(src))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	return m
}

func fixture(t *testing.T) *memSource {
	t.Helper()
	src := newMemSource()
	src.defaults = model.NewDefaults(doc(t, `
name: acme platform
organization: acme
version: "3"
region: us-east-1
logging:
  level: info
  format: json
`))
	src.services["api"] = model.NewService("api", doc(t, `
name: api
replicas: 2
dependencies: [auth]
logging:
  level: debug
environments:
  prod:
    replicas: 6
`))
	src.services["auth"] = model.NewService("auth", doc(t, `
name: auth
dependencies: []
`))
	src.environments["prod"] = model.NewEnvironment("prod", doc(t, `
name: prod
description: production
region: eu-west-1
scaling:
  min: 3
`))
	src.tenants["acme"] = model.NewTenant("acme", doc(t, `
name: acme
description: big customer
region: ap-south-1
environments:
  prod:
    scaling:
      min: 5
services:
  api:
    replicas: 10
`))
	src.tenants["globex"] = model.NewTenant("globex", nil)
	return src
}

func fixedEngine(src Source, opts ...Option) *Engine {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	base := []Option{
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "res-1" }),
	}
	return NewEngine(src, append(base, opts...)...)
}

func TestResolveServicePrecedence(t *testing.T) {
	src := fixture(t)
	e := fixedEngine(src)
	ctx := context.Background()

	tests := []struct {
		name       string
		query      Query
		wantRegion string
		wantSource []string
	}{
		{
			name:       "service only",
			wantRegion: "us-east-1",
			wantSource: []string{"system/defaults.yaml", "services/api.yaml"},
		},
		{
			name:       "environment",
			query:      Query{Environment: "prod"},
			wantRegion: "eu-west-1",
			wantSource: []string{
				"system/defaults.yaml",
				"services/api.yaml",
				"services/api.yaml#environments.prod",
				"environments/prod.yaml",
			},
		},
		{
			name:       "environment and tenant",
			query:      Query{Environment: "prod", Tenant: "acme"},
			wantRegion: "ap-south-1",
			wantSource: []string{
				"system/defaults.yaml",
				"services/api.yaml",
				"services/api.yaml#environments.prod",
				"environments/prod.yaml",
				"tenants/acme.yaml",
				"tenants/acme.yaml#environments.prod",
				"tenants/acme.yaml#services.api",
			},
		},
		{
			name:       "tenant without overrides",
			query:      Query{Tenant: "globex"},
			wantRegion: "us-east-1",
			wantSource: []string{"system/defaults.yaml", "services/api.yaml", "tenants/globex.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := e.ResolveService(ctx, "api", tt.query)
			if err != nil {
				t.Fatalf("ResolveService() error = %v", err)
			}
			if got, _ := rc.Merged.Get("region").AsString(); got != tt.wantRegion {
				t.Errorf("region = %q, want %q", got, tt.wantRegion)
			}
			if diff := cmp.Diff(tt.wantSource, rc.Sources); diff != "" {
				t.Errorf("Sources mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveServiceMergedDocument(t *testing.T) {
	e := fixedEngine(fixture(t))

	rc, err := e.ResolveService(context.Background(), "api", Query{Environment: "prod", Tenant: "acme"})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}

	want := map[string]any{
		"name":         "api",
		"region":       "ap-south-1",
		"replicas":     int64(10),
		"dependencies": []any{"auth"},
		"logging":      map[string]any{"level": "debug", "format": "json"},
		"scaling":      map[string]any{"min": int64(5)},
	}
	if diff := cmp.Diff(want, rc.Merged.ToAny()); diff != "" {
		t.Errorf("Merged mismatch (-want +got):\n%s", diff)
	}

	if rc.ID != "res-1" || rc.Kind != model.KindService || rc.Entity != "api" {
		t.Errorf("identity = %q %v %q", rc.ID, rc.Kind, rc.Entity)
	}
	if rc.ResolvedAt.Location() != time.UTC {
		t.Errorf("ResolvedAt not UTC: %v", rc.ResolvedAt)
	}
	if rc.Environment == nil || rc.Environment.Name != "prod" {
		t.Errorf("Environment = %v", rc.Environment)
	}
	if rc.Tenant == nil || rc.Tenant.Name != "acme" {
		t.Errorf("Tenant = %v", rc.Tenant)
	}
}

func TestResolveServiceDoesNotMutateSource(t *testing.T) {
	src := fixture(t)
	before := src.services["api"].Doc.Clone()

	e := fixedEngine(src)
	rc, err := e.ResolveService(context.Background(), "api", Query{Environment: "prod", Tenant: "acme"})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}
	rc.Merged.Get("logging").Map().Set("level", value.String("trace"))

	if !before.Equal(src.services["api"].Doc) {
		t.Error("resolution mutated the service document")
	}
	if got, _ := src.defaults.Doc.Get("logging").Map().Get("level").AsString(); got != "info" {
		t.Errorf("defaults logging.level = %q, want info", got)
	}
}

func TestResolveServiceMissingEnvironmentIsOptional(t *testing.T) {
	e := fixedEngine(fixture(t))

	rc, err := e.ResolveService(context.Background(), "api", Query{Environment: "staging"})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}
	for _, s := range rc.Sources {
		if strings.HasPrefix(s, "environments/") {
			t.Errorf("missing environment appeared in sources: %v", rc.Sources)
		}
	}
	if rc.Environment != nil {
		t.Errorf("Environment = %v, want nil", rc.Environment)
	}
}

func TestResolveServiceWithoutDefaults(t *testing.T) {
	src := fixture(t)
	src.defaults = nil

	rc, err := fixedEngine(src).ResolveService(context.Background(), "auth", Query{})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}
	if diff := cmp.Diff([]string{"services/auth.yaml"}, rc.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveServiceMissingEntities(t *testing.T) {
	e := fixedEngine(fixture(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		service string
		query   Query
		wantMsg string
	}{
		{
			name:    "unknown service",
			service: "billing",
			wantMsg: "service 'billing' not found. Available services: api, auth",
		},
		{
			name:    "unknown tenant",
			service: "api",
			query:   Query{Tenant: "initech"},
			wantMsg: "tenant 'initech' not found. Available tenants: acme, globex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ResolveService(ctx, tt.service, tt.query)
			var me *MissingEntityError
			if !errors.As(err, &me) {
				t.Fatalf("ResolveService() error = %v, want *MissingEntityError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if !errors.Is(err, model.ErrNotFound) {
				t.Error("error does not match model.ErrNotFound")
			}
		})
	}
}

func TestResolveServiceCycleAbortsTenantResolution(t *testing.T) {
	src := fixture(t)
	src.services["auth"] = model.NewService("auth", doc(t, "dependencies: [api]"))
	e := fixedEngine(src)
	ctx := context.Background()

	_, err := e.ResolveService(ctx, "api", Query{Tenant: "acme"})
	var ce *CircularDependencyError
	if !errors.As(err, &ce) {
		t.Fatalf("ResolveService() error = %v, want *CircularDependencyError", err)
	}
	if !errors.Is(err, depgraph.ErrCycle) {
		t.Error("error does not match depgraph.ErrCycle")
	}
	if diff := cmp.Diff([]string{"api", "auth", "api"}, ce.Cycle); diff != "" {
		t.Errorf("Cycle mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "api -> auth -> api") {
		t.Errorf("message %q does not show the cycle", err.Error())
	}

	// Without a tenant the graph is not consulted.
	if _, err := e.ResolveService(ctx, "api", Query{}); err != nil {
		t.Errorf("ResolveService() without tenant error = %v", err)
	}
}

func TestResolveServiceSourceErrors(t *testing.T) {
	src := fixture(t)
	src.fail = errors.New("permission denied")

	_, err := fixedEngine(src).ResolveService(context.Background(), "api", Query{})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("ResolveService() error = %v, want wrapped source error", err)
	}
	if errors.Is(err, model.ErrNotFound) {
		t.Error("I/O failure reported as not found")
	}
}

func TestResolveServiceContributions(t *testing.T) {
	e := fixedEngine(fixture(t), WithMergeOptions(merge.WithSourceTracking(true)))

	rc, err := e.ResolveService(context.Background(), "api", Query{Environment: "prod", Tenant: "acme"})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}

	tests := []struct {
		path   string
		source string
		level  merge.Level
	}{
		{"region", "tenants/acme.yaml", merge.LevelTenant},
		{"logging.format", "system/defaults.yaml", merge.LevelSystem},
		{"logging.level", "services/api.yaml", merge.LevelService},
		{"scaling.min", "tenants/acme.yaml#environments.prod", merge.LevelTenant},
		{"replicas", "tenants/acme.yaml#services.api", merge.LevelTenant},
	}
	res := merge.Result{Contributions: rc.Contributions}
	for _, tt := range tests {
		c, ok := res.ContributionFor(tt.path)
		if !ok {
			t.Errorf("no contribution for %s", tt.path)
			continue
		}
		if c.Source != tt.source || c.Level != tt.level {
			t.Errorf("%s: got %s (%v), want %s (%v)", tt.path, c.Source, c.Level, tt.source, tt.level)
		}
	}
}

func TestResolveEnvironment(t *testing.T) {
	e := fixedEngine(fixture(t))
	ctx := context.Background()

	rc, err := e.ResolveEnvironment(ctx, "prod", "acme")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error = %v", err)
	}
	if diff := cmp.Diff([]string{"environments/prod.yaml", "tenants/acme.yaml#environments.prod"}, rc.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
	if got, _ := rc.Merged.Get("scaling").Map().Get("min").AsInt(); got != 5 {
		t.Errorf("scaling.min = %d, want 5", got)
	}
	if rc.Kind != model.KindEnvironment {
		t.Errorf("Kind = %v", rc.Kind)
	}

	rc, err = e.ResolveEnvironment(ctx, "prod", "globex")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error = %v", err)
	}
	if diff := cmp.Diff([]string{"environments/prod.yaml"}, rc.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}

	_, err = e.ResolveEnvironment(ctx, "qa", "")
	if err == nil || err.Error() != "environment 'qa' not found. Available environments: prod" {
		t.Errorf("ResolveEnvironment(qa) error = %v", err)
	}
}

func TestReport(t *testing.T) {
	e := fixedEngine(fixture(t))
	rc, err := e.ResolveService(context.Background(), "auth", Query{Environment: "prod", Tenant: "globex"})
	if err != nil {
		t.Fatalf("ResolveService() error = %v", err)
	}

	r := rc.Report()
	if r.ResolvedAt != "2024-03-01T11:00:00Z" {
		t.Errorf("ResolvedAt = %q", r.ResolvedAt)
	}
	if r.Kind != "service" || r.Entity != "auth" || r.Environment != "prod" || r.Tenant != "globex" {
		t.Errorf("Report() = %+v", r)
	}
	if r.Config["region"] != "eu-west-1" {
		t.Errorf("Config[region] = %v", r.Config["region"])
	}
}

func TestMissingEntityErrorWithoutAlternatives(t *testing.T) {
	err := &MissingEntityError{Kind: model.KindTenant, Name: "x"}
	if got := err.Error(); got != "tenant 'x' not found. Available tenants: (none)" {
		t.Errorf("Error() = %q", got)
	}
}
