package resolve

import (
	"time"

	"github.com/dshills/archctx/internal/engine/merge"
	"github.com/dshills/archctx/internal/engine/value"
	"github.com/dshills/archctx/internal/model"
)

// Query qualifies a service resolution. Empty fields are not requested.
type Query struct {
	Environment string
	Tenant      string
}

// Context is the result of one resolution. It is created fresh per call and
// owned by the caller.
type Context struct {
	// ID uniquely identifies this resolution (for logs and tracing).
	ID string

	// Kind is the kind of the resolved entity.
	Kind model.Kind

	// Entity is the name of the resolved entity.
	Entity string

	// Merged is the fully merged configuration.
	Merged *value.Map

	// Environment is the environment that took part, if any.
	Environment *model.Environment

	// Tenant is the tenant that took part, if any.
	Tenant *model.Tenant

	// Sources lists the identifiers of applied layers, lowest precedence first.
	Sources []string

	// Contributions maps merged paths to the layer that set them. It is only
	// populated when source tracking is enabled.
	Contributions []merge.Contribution

	// ResolvedAt is when the resolution completed, in UTC.
	ResolvedAt time.Time
}

// Report is the serialisable form of a Context.
type Report struct {
	ID            string               `json:"id" yaml:"id"`
	Kind          string               `json:"kind" yaml:"kind"`
	Entity        string               `json:"entity" yaml:"entity"`
	Environment   string               `json:"environment,omitempty" yaml:"environment,omitempty"`
	Tenant        string               `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	ResolvedAt    string               `json:"resolvedAt" yaml:"resolvedAt"`
	Sources       []string             `json:"sources" yaml:"sources"`
	Config        map[string]any       `json:"config" yaml:"config"`
	Contributions []merge.Contribution `json:"contributions,omitempty" yaml:"contributions,omitempty"`
}

// Report converts c into its serialisable form. ResolvedAt is ISO-8601.
func (c *Context) Report() Report {
	r := Report{
		ID:            c.ID,
		Kind:          c.Kind.Singular(),
		Entity:        c.Entity,
		ResolvedAt:    c.ResolvedAt.Format(time.RFC3339Nano),
		Sources:       append([]string(nil), c.Sources...),
		Config:        c.Merged.ToAny(),
		Contributions: c.Contributions,
	}
	if c.Environment != nil {
		r.Environment = c.Environment.Name
	}
	if c.Tenant != nil {
		r.Tenant = c.Tenant.Name
	}
	return r
}
