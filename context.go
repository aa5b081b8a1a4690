package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Request is the decoded request handed over by the HTTP engine
// collaborator: method, path, parsed path params, raw query, raw body,
// headers, and cookies. ID is an optional correlation id; when empty the
// pipeline generates one.
type Request struct {
	Method  string
	Path    string
	Params  map[string]string
	Query   url.Values
	Body    []byte
	Headers http.Header
	Cookies []*http.Cookie
	ID      string
}

// Context is the per-request value object. It carries the raw inputs, the
// correlation id and timestamp, the validated slices filled in by the
// pipeline, the resolved dependencies, and the background-task handle.
// A Context is created at the start of each request and discarded at the
// end; it is never shared across requests.
type Context struct {
	Method     string
	Path       string
	ID         string
	ReceivedAt time.Time

	RawParams map[string]string
	RawQuery  url.Values
	RawBody   []byte
	Headers   http.Header
	Cookies   []*http.Cookie

	// Params, Query, and Body hold the typed values produced by the
	// route's schemas; nil when the route declares no matching schema.
	Params any
	Query  any
	Body   any

	std    context.Context
	deps   map[string]any
	runner *Runner
}

func newContext(std context.Context, req Request, runner *Runner) *Context {
	if std == nil {
		std = context.Background()
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Context{
		Method:     req.Method,
		Path:       req.Path,
		ID:         id,
		ReceivedAt: time.Now(),
		RawParams:  req.Params,
		RawQuery:   req.Query,
		RawBody:    req.Body,
		Headers:    req.Headers,
		Cookies:    req.Cookies,
		std:        std,
		runner:     runner,
	}
}

// Context returns the underlying context.Context from the HTTP engine.
func (c *Context) Context() context.Context { return c.std }

// Dep returns a resolved dependency by name.
func (c *Context) Dep(name string) (any, bool) {
	v, ok := c.deps[name]
	return v, ok
}

// MustDep returns a resolved dependency by name, panicking if absent.
// The pipeline translates the panic into an internal error response.
func (c *Context) MustDep(name string) any {
	v, ok := c.deps[name]
	if !ok {
		panic("api: unresolved dependency " + name)
	}
	return v
}

// DepOf returns a resolved dependency by name, asserted to T.
func DepOf[T any](c *Context, name string) (T, bool) {
	v, ok := c.deps[name].(T)
	return v, ok
}

// Header returns a request header value.
func (c *Context) Header(name string) string {
	return c.Headers.Get(name)
}

// Cookie returns a request cookie by name.
func (c *Context) Cookie(name string) (*http.Cookie, bool) {
	for _, ck := range c.Cookies {
		if ck.Name == name {
			return ck, true
		}
	}
	return nil, false
}

// Background schedules a fire-and-forget task. The task starts running
// immediately and independently of the response; its failure can never
// affect the response for this request.
func (c *Context) Background(action Task, opts ...TaskOption) {
	if c.runner == nil {
		return
	}
	c.runner.Schedule(action, opts...)
}

type contextKey[T any] struct{}

// SetValue stores a typed value in a context. For use in engine middleware.
func SetValue[T any](ctx context.Context, val T) context.Context {
	return context.WithValue(ctx, contextKey[T]{}, val)
}

// GetValue retrieves a typed value stored with SetValue.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}
