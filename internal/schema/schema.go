// Package schema validates entity documents against embedded JSON Schemas.
//
// Schemas only constrain the keys the resolver interprets (names,
// dependencies, override sections). Everything else is free-form.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dshills/archctx/internal/engine/value"
	"github.com/dshills/archctx/internal/model"
)

//go:embed schemas/*.json
var files embed.FS

const baseURL = "https://archctx.dev/schemas/"

var schemaFiles = map[model.Kind]string{
	model.KindDefaults:    "defaults.json",
	model.KindService:     "service.json",
	model.KindEnvironment: "environment.json",
	model.KindTenant:      "tenant.json",
}

// Validator checks documents of every entity kind.
type Validator struct {
	schemas map[model.Kind]*jsonschema.Schema
	printer *message.Printer
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)

	entries, err := files.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("reading embedded schemas: %w", err)
	}
	for _, e := range entries {
		data, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", e.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(baseURL+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", e.Name(), err)
		}
	}

	v := &Validator{
		schemas: make(map[model.Kind]*jsonschema.Schema, len(schemaFiles)),
		printer: message.NewPrinter(language.English),
	}
	for kind, file := range schemaFiles {
		sch, err := c.Compile(baseURL + file)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind.Singular(), err)
		}
		v.schemas[kind] = sch
	}
	return v, nil
}

// Validate checks doc as a document of the given kind. Failures are
// returned as *ValidationError.
func (v *Validator) Validate(kind model.Kind, name string, doc *value.Map) error {
	sch, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for %s documents", kind.Singular())
	}

	instance, err := toInstance(doc)
	if err != nil {
		return fmt.Errorf("preparing %s %q for validation: %w", kind.Singular(), name, err)
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validating %s %q: %w", kind.Singular(), name, err)
	}

	out := &ValidationError{Kind: kind, Name: name}
	v.collect(ve, out)
	return out
}

// collect flattens the leaves of a jsonschema error tree into field errors.
func (v *Validator) collect(ve *jsonschema.ValidationError, out *ValidationError) {
	if len(ve.Causes) == 0 {
		out.Fields = append(out.Fields, FieldError{
			Path:    pointer(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(v.printer),
		})
		return
	}
	for _, cause := range ve.Causes {
		v.collect(cause, out)
	}
}

// toInstance converts doc into the JSON data model the validator expects.
func toInstance(doc *value.Map) (any, error) {
	data, err := json.Marshal(doc.ToAny())
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func pointer(tokens []string) string {
	if len(tokens) == 0 {
		return "/"
	}
	var b bytes.Buffer
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(tok)
	}
	return b.String()
}
