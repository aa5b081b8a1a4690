package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Handler is the core handler signature. The framework owns decoding,
// validation, and serialization; handlers see only the request Context.
type Handler func(ctx *Context) (any, error)

// Route is an immutable description of one endpoint: method, path,
// validation schemas, handler, dependency specs, and response status.
type Route struct {
	method   string
	path     string
	params   *Schema
	query    *Schema
	body     *Schema
	response *Schema
	status   int
	handler  Handler
	deps     []DependencySpec

	summary    string
	desc       string
	tags       []string
	deprecated bool
}

// RouteOption configures a route at construction time.
type RouteOption func(*Route)

// WithParams sets the path-parameter schema.
func WithParams(s *Schema) RouteOption {
	return func(rt *Route) {
		rt.params = s
	}
}

// WithQuery sets the query-parameter schema.
func WithQuery(s *Schema) RouteOption {
	return func(rt *Route) {
		rt.query = s
	}
}

// WithBody sets the request-body schema.
func WithBody(s *Schema) RouteOption {
	return func(rt *Route) {
		rt.body = s
	}
}

// WithResponse sets the response schema. A handler return value that fails
// this schema is an internal error: the handler broke its own contract.
func WithResponse(s *Schema) RouteOption {
	return func(rt *Route) {
		rt.response = s
	}
}

// WithStatus sets the success status code for the response (default 200).
func WithStatus(code int) RouteOption {
	return func(rt *Route) {
		rt.status = code
	}
}

// WithDependency declares a named dependency resolved before the handler
// runs. Declaration order is acquisition order; cleanup runs in reverse.
func WithDependency(name string, dep Dependency) RouteOption {
	return func(rt *Route) {
		rt.deps = append(rt.deps, DependencySpec{Name: name, Dependency: dep})
	}
}

// WithSummary sets a short summary for the docs listing.
func WithSummary(s string) RouteOption {
	return func(rt *Route) {
		rt.summary = s
	}
}

// WithDescription sets a longer description for the docs listing.
func WithDescription(d string) RouteOption {
	return func(rt *Route) {
		rt.desc = d
	}
}

// WithTags adds docs tags to the route.
func WithTags(tags ...string) RouteOption {
	return func(rt *Route) {
		rt.tags = append(rt.tags, tags...)
	}
}

// WithDeprecated marks the route as deprecated in the docs listing.
func WithDeprecated() RouteOption {
	return func(rt *Route) {
		rt.deprecated = true
	}
}

// NewRoute constructs a Route. Construction fails immediately on a missing
// method, path, or handler, a path not starting with "/", a duplicate
// dependency name, or a dependency with no factory.
func NewRoute(method, path string, h Handler, opts ...RouteOption) (*Route, error) {
	if method == "" {
		return nil, fmt.Errorf("route: missing method")
	}
	if path == "" {
		return nil, fmt.Errorf("route: missing path")
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("route %s %s: path must start with /", method, path)
	}
	if h == nil {
		return nil, fmt.Errorf("route %s %s: missing handler", method, path)
	}

	rt := &Route{
		method:  strings.ToUpper(method),
		path:    path,
		handler: h,
	}
	for _, opt := range opts {
		opt(rt)
	}

	seen := make(map[string]bool, len(rt.deps))
	for _, spec := range rt.deps {
		if spec.Name == "" {
			return nil, fmt.Errorf("route %s %s: dependency with empty name", method, path)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("route %s %s: duplicate dependency %q", method, path, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Factory == nil {
			return nil, fmt.Errorf("route %s %s: dependency %q: %w", method, path, spec.Name, ErrNilFactory)
		}
	}

	if rt.status == 0 {
		rt.status = http.StatusOK
	}

	return rt, nil
}

// Method returns the HTTP method.
func (rt *Route) Method() string { return rt.method }

// Path returns the path template.
func (rt *Route) Path() string { return rt.path }

// ID returns the registry identity, method+":"+path.
func (rt *Route) ID() string { return rt.method + ":" + rt.path }

// Status returns the configured success status code.
func (rt *Route) Status() int { return rt.status }

// Tags returns the docs tags.
func (rt *Route) Tags() []string { return rt.tags }
