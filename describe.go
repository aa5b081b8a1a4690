package api

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// JSONSchema is a JSON Schema object describing a route contract for the
// documentation-generation collaborator.
type JSONSchema struct {
	Type        string                `json:"type,omitempty" yaml:"type,omitempty"`
	Format      string                `json:"format,omitempty" yaml:"format,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty" yaml:"items,omitempty"`
	Required    []string              `json:"required,omitempty" yaml:"required,omitempty"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string              `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default     string                `json:"default,omitempty" yaml:"default,omitempty"`
	Minimum     *float64              `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64              `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	MinLength   *int                  `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int                  `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern     string                `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// AdditionalProperties can be a schema for map-valued fields.
	AdditionalProperties *JSONSchema `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

// RouteDescription is the machine-readable listing entry for one route.
type RouteDescription struct {
	Method      string      `json:"method" yaml:"method"`
	Path        string      `json:"path" yaml:"path"`
	Summary     string      `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Deprecated  bool        `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Status      int         `json:"status" yaml:"status"`
	Params      *JSONSchema `json:"params,omitempty" yaml:"params,omitempty"`
	Query       *JSONSchema `json:"query,omitempty" yaml:"query,omitempty"`
	Body        *JSONSchema `json:"body,omitempty" yaml:"body,omitempty"`
	Response    *JSONSchema `json:"response,omitempty" yaml:"response,omitempty"`
}

// List describes every registered route in registration order, for the
// documentation collaborator. The core never renders documentation itself.
func (r *Registry) List() []RouteDescription {
	routes := r.Routes()
	out := make([]RouteDescription, 0, len(routes))
	for _, rt := range routes {
		out = append(out, RouteDescription{
			Method:      rt.method,
			Path:        rt.path,
			Summary:     rt.summary,
			Description: rt.desc,
			Tags:        rt.tags,
			Deprecated:  rt.deprecated,
			Status:      rt.status,
			Params:      schemaDoc(rt.params),
			Query:       schemaDoc(rt.query),
			Body:        schemaDoc(rt.body),
			Response:    schemaDoc(rt.response),
		})
	}
	return out
}

func schemaDoc(s *Schema) *JSONSchema {
	if s == nil {
		return nil
	}
	doc := typeToSchema(s.typ)
	return &doc
}

// typeToSchema converts a reflect.Type to a JSONSchema.
func typeToSchema(t reflect.Type) JSONSchema {
	if t.Kind() == reflect.Pointer {
		return typeToSchema(t.Elem())
	}

	switch t {
	case reflect.TypeFor[time.Time]():
		return JSONSchema{Type: "string", Format: "date-time"}
	case reflect.TypeFor[time.Duration]():
		return JSONSchema{Type: "string", Format: "duration"}
	}

	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String:
		return JSONSchema{Type: "string"}
	case reflect.Bool:
		return JSONSchema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return JSONSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return JSONSchema{Type: "number"}
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return JSONSchema{Type: "string", Format: "byte"}
		}
		items := typeToSchema(t.Elem())
		return JSONSchema{Type: "array", Items: &items}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return JSONSchema{Type: "object"}
		}
		valSchema := typeToSchema(t.Elem())
		return JSONSchema{Type: "object", AdditionalProperties: &valSchema}
	case reflect.Struct:
		return structToSchema(t)
	default:
		return JSONSchema{}
	}
}

// structToSchema converts a struct type to a JSONSchema, folding the
// validation constraint tags into the rendered properties.
func structToSchema(t reflect.Type) JSONSchema {
	schema := JSONSchema{
		Type:       "object",
		Properties: make(map[string]JSONSchema),
	}

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		name := jsonFieldName(f)
		if name == "-" {
			continue
		}

		prop := typeToSchema(f.Type)

		if doc := f.Tag.Get("doc"); doc != "" {
			prop.Description = doc
		}
		if def := f.Tag.Get("default"); def != "" {
			prop.Default = def
		}
		if tag := f.Tag.Get("minimum"); tag != "" {
			if n, err := strconv.ParseFloat(tag, 64); err == nil {
				prop.Minimum = &n
			}
		}
		if tag := f.Tag.Get("maximum"); tag != "" {
			if n, err := strconv.ParseFloat(tag, 64); err == nil {
				prop.Maximum = &n
			}
		}
		if tag := f.Tag.Get("minLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil {
				prop.MinLength = &n
			}
		}
		if tag := f.Tag.Get("maxLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil {
				prop.MaxLength = &n
			}
		}
		if tag := f.Tag.Get("pattern"); tag != "" {
			prop.Pattern = tag
		}
		if tag := f.Tag.Get("enum"); tag != "" {
			prop.Enum = strings.Split(tag, ",")
		}

		schema.Properties[name] = prop

		if f.Tag.Get("required") == "true" {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

// ServeRoutes registers a GET handler at the given pattern that serves the
// route listing as JSON.
func (e *Engine) ServeRoutes(pattern string) {
	e.mux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
		json.NewEncoder(w).Encode(e.pipeline.Registry().List())
	})
}

// ServeRoutesYAML registers a GET handler at the given pattern that serves
// the route listing as YAML.
func (e *Engine) ServeRoutesYAML(pattern string) {
	e.mux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		//nolint:errcheck,gosec // best-effort after WriteHeader
		yaml.NewEncoder(w).Encode(e.pipeline.Registry().List())
	})
}

// WriteRoutes writes the route listing as indented JSON to w.
func (r *Registry) WriteRoutes(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.List())
}

// WriteRoutesYAML writes the route listing as YAML to w.
func (r *Registry) WriteRoutesYAML(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(r.List())
}
