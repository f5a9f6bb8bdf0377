// Package model defines the configuration entities: system defaults,
// services, environments and tenants.
//
// Entities are thin typed views over YAML documents held as *value.Map, so
// free-form configuration survives untouched while the fields the resolver
// needs (dependencies, per-environment overrides) have accessors.
package model

import (
	"github.com/dshills/archctx/internal/engine/value"
)

// Kind identifies an entity collection.
type Kind string

const (
	// KindDefaults is the single system-wide defaults document.
	KindDefaults Kind = "system"
	// KindService is the services collection.
	KindService Kind = "services"
	// KindEnvironment is the environments collection.
	KindEnvironment Kind = "environments"
	// KindTenant is the tenants collection.
	KindTenant Kind = "tenants"
)

// Kinds lists the collections in layer order.
var Kinds = []Kind{KindDefaults, KindService, KindEnvironment, KindTenant}

// Collection returns the directory name of the collection.
func (k Kind) Collection() string {
	return string(k)
}

// Singular returns the name of one entity of the collection.
func (k Kind) Singular() string {
	switch k {
	case KindDefaults:
		return "defaults"
	case KindService:
		return "service"
	case KindEnvironment:
		return "environment"
	case KindTenant:
		return "tenant"
	default:
		return string(k)
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return k.Singular()
}

// DefaultsName is the file name (without extension) of the defaults document.
const DefaultsName = "defaults"

// SourceID returns the stable identifier of an entity document,
// e.g. "services/api.yaml".
func SourceID(kind Kind, name string) string {
	return kind.Collection() + "/" + name + ".yaml"
}

// SubSourceID returns the identifier of a section inside an entity document,
// e.g. "services/api.yaml#environments.prod".
func SubSourceID(kind Kind, name, section, key string) string {
	return SourceID(kind, name) + "#" + section + "." + key
}

// Document keys with meaning to the resolver.
const (
	KeyName         = "name"
	KeyDescription  = "description"
	KeyMetadata     = "metadata"
	KeyOrganization = "organization"
	KeyVersion      = "version"
	KeyDependencies = "dependencies"
	KeyEnvironments = "environments"
	KeyServices     = "services"
)

func docOrEmpty(doc *value.Map) *value.Map {
	if doc == nil {
		return value.NewMap()
	}
	return doc
}

// section returns doc[section][key] when it is a mapping.
func section(doc *value.Map, sectionKey, key string) *value.Map {
	return doc.Get(sectionKey).Map().Get(key).Map()
}

func sectionKeys(doc *value.Map, sectionKey string) []string {
	return doc.Get(sectionKey).Map().Keys()
}

// Defaults is the system-wide defaults document.
type Defaults struct {
	Doc *value.Map
}

// NewDefaults wraps a defaults document.
func NewDefaults(doc *value.Map) *Defaults {
	return &Defaults{Doc: docOrEmpty(doc)}
}

// SourceID returns "system/defaults.yaml".
func (d *Defaults) SourceID() string {
	return SourceID(KindDefaults, DefaultsName)
}

// ServiceDefaults reshapes the defaults into service-compatible fields by
// dropping keys that only describe the system itself.
func (d *Defaults) ServiceDefaults() *value.Map {
	return d.Doc.Without(KeyName, KeyOrganization, KeyVersion, KeyMetadata)
}

// Service is a deployable unit with its own configuration.
type Service struct {
	Name string
	Doc  *value.Map
}

// NewService wraps a service document. The name argument wins over any name
// stored in the document.
func NewService(name string, doc *value.Map) *Service {
	return &Service{Name: name, Doc: docOrEmpty(doc)}
}

// SourceID returns "services/<name>.yaml".
func (s *Service) SourceID() string {
	return SourceID(KindService, s.Name)
}

// Dependencies returns the declared dependency names. Non-string entries are
// ignored.
func (s *Service) Dependencies() []string {
	var out []string
	for _, item := range s.Doc.Get(KeyDependencies).Items() {
		if name, ok := item.AsString(); ok {
			out = append(out, name)
		}
	}
	return out
}

// SetDependencies replaces the declared dependency list.
func (s *Service) SetDependencies(names []string) {
	items := make([]value.Value, len(names))
	for i, n := range names {
		items[i] = value.String(n)
	}
	s.Doc.Set(KeyDependencies, value.Seq(items...))
}

// Base returns the service configuration without per-environment overrides.
func (s *Service) Base() *value.Map {
	return s.Doc.Without(KeyEnvironments)
}

// EnvironmentOverride returns the service's override for env, or nil.
func (s *Service) EnvironmentOverride(env string) *value.Map {
	return section(s.Doc, KeyEnvironments, env)
}

// EnvironmentOverrideID returns "services/<name>.yaml#environments.<env>".
func (s *Service) EnvironmentOverrideID(env string) string {
	return SubSourceID(KindService, s.Name, KeyEnvironments, env)
}

// Environment is a deployment target with cross-cutting configuration
// (availability, scaling, security, resource constraints).
type Environment struct {
	Name string
	Doc  *value.Map
}

// NewEnvironment wraps an environment document.
func NewEnvironment(name string, doc *value.Map) *Environment {
	return &Environment{Name: name, Doc: docOrEmpty(doc)}
}

// SourceID returns "environments/<name>.yaml".
func (e *Environment) SourceID() string {
	return SourceID(KindEnvironment, e.Name)
}

// ServiceLayer returns the configuration the environment imposes on
// services, without its identity keys.
func (e *Environment) ServiceLayer() *value.Map {
	return e.Doc.Without(KeyName, KeyDescription, KeyMetadata)
}

// Tenant is a customer or organisational unit with its own overrides.
type Tenant struct {
	Name string
	Doc  *value.Map
}

// NewTenant wraps a tenant document.
func NewTenant(name string, doc *value.Map) *Tenant {
	return &Tenant{Name: name, Doc: docOrEmpty(doc)}
}

// SourceID returns "tenants/<name>.yaml".
func (t *Tenant) SourceID() string {
	return SourceID(KindTenant, t.Name)
}

// Overrides returns the tenant's global overrides.
func (t *Tenant) Overrides() *value.Map {
	return t.Doc.Without(KeyName, KeyDescription, KeyMetadata, KeyEnvironments, KeyServices)
}

// EnvironmentOverride returns the tenant's override for env, or nil.
func (t *Tenant) EnvironmentOverride(env string) *value.Map {
	return section(t.Doc, KeyEnvironments, env)
}

// EnvironmentOverrideID returns "tenants/<name>.yaml#environments.<env>".
func (t *Tenant) EnvironmentOverrideID(env string) string {
	return SubSourceID(KindTenant, t.Name, KeyEnvironments, env)
}

// ServiceOverride returns the tenant's override for service, or nil.
func (t *Tenant) ServiceOverride(service string) *value.Map {
	return section(t.Doc, KeyServices, service)
}

// ServiceOverrideID returns "tenants/<name>.yaml#services.<service>".
func (t *Tenant) ServiceOverrideID(service string) string {
	return SubSourceID(KindTenant, t.Name, KeyServices, service)
}

// OverriddenServices returns the names of services the tenant overrides.
func (t *Tenant) OverriddenServices() []string {
	return sectionKeys(t.Doc, KeyServices)
}
