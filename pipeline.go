package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"runtime/debug"
)

// Pipeline orchestrates one request: lookup, validation, dependency
// resolution, handler invocation, response validation, error dispatch,
// and cleanup. Handle never fails: every error becomes a formatted
// response, and the cleanup chain runs on every exit path.
type Pipeline struct {
	registry   *Registry
	resolver   *Resolver
	dispatcher *Dispatcher
	runner     *Runner
	validator  Validator
	logger     *slog.Logger
	production bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRegistry sets the route registry.
func WithRegistry(r *Registry) PipelineOption {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithResolver sets the dependency resolver.
func WithResolver(r *Resolver) PipelineOption {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithDispatcher sets the error dispatcher.
func WithDispatcher(d *Dispatcher) PipelineOption {
	return func(p *Pipeline) {
		p.dispatcher = d
	}
}

// WithRunner sets the background task runner.
func WithRunner(r *Runner) PipelineOption {
	return func(p *Pipeline) {
		p.runner = r
	}
}

// WithValidator layers a struct-level validator over schema validation,
// applied to the typed body after coercion.
func WithValidator(v Validator) PipelineOption {
	return func(p *Pipeline) {
		p.validator = v
	}
}

// WithLogger sets the pipeline logger, shared with default subsystems.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithProduction withholds internal error detail from responses.
func WithProduction(on bool) PipelineOption {
	return func(p *Pipeline) {
		p.production = on
	}
}

// NewPipeline creates a Pipeline, building default subsystems for any not
// supplied.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.resolver == nil {
		p.resolver = NewResolver(WithResolverLogger(p.logger))
	}
	if p.dispatcher == nil {
		p.dispatcher = NewDispatcher(
			WithDispatcherLogger(p.logger),
			WithProductionMode(p.production),
		)
	}
	if p.runner == nil {
		p.runner = NewRunner(WithRunnerLogger(p.logger))
	}

	return p
}

// Registry returns the pipeline's route registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Resolver returns the pipeline's dependency resolver.
func (p *Pipeline) Resolver() *Resolver { return p.resolver }

// Dispatcher returns the pipeline's error dispatcher.
func (p *Pipeline) Dispatcher() *Dispatcher { return p.dispatcher }

// Runner returns the pipeline's background task runner.
func (p *Pipeline) Runner() *Runner { return p.runner }

// Execute looks up the route for method+path and handles the request.
// The second return is false when no route exists; the HTTP engine
// collaborator owns the 404 in that case.
func (p *Pipeline) Execute(ctx context.Context, method, path string, req Request) (Response, bool) {
	rt, ok := p.registry.Lookup(method, path)
	if !ok {
		return Response{}, false
	}
	return p.Handle(ctx, rt, req), true
}

// Handle runs the full pipeline for one request against a route. It never
// panics and always returns a response; the cleanup chain runs on success
// and failure alike, after the response is decided.
func (p *Pipeline) Handle(ctx context.Context, rt *Route, req Request) (resp Response) {
	rc := newContext(ctx, req, p.runner)

	// The cleanup chain runs from a defer so it survives a panic that
	// escapes run, not only the normal return paths.
	var cleanup CleanupFunc
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("pipeline panic",
				slog.Any("panic", rec),
				slog.String("method", rc.Method),
				slog.String("path", rc.Path),
				slog.String("request_id", rc.ID),
				slog.String("stack", string(debug.Stack())),
			)
			resp = Response{
				Status: http.StatusInternalServerError,
				Body:   map[string]any{"error": http.StatusText(http.StatusInternalServerError)},
			}
		}

		if cleanup != nil {
			// Cleanup outlives the request context: the response may
			// already be written and the engine context cancelled.
			if err := cleanup(context.WithoutCancel(rc.std)); err != nil {
				p.logger.Error("cleanup chain failed",
					slog.String("request_id", rc.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	resp, cleanup = p.run(rc, rt)
	return resp
}

// run drives the states in order. The returned cleanup may be non-nil even
// when the response is an error: dependencies acquired before the failure
// still need releasing.
func (p *Pipeline) run(rc *Context, rt *Route) (Response, CleanupFunc) {
	// Validating: params, then query, then body. First failure short-circuits.
	if rt.params != nil {
		v, err := rt.params.ValidateOrError(paramsMap(rc.RawParams))
		if err != nil {
			return p.dispatcher.Dispatch(rc, err), nil
		}
		rc.Params = v
	}

	if rt.query != nil {
		v, err := rt.query.ValidateOrError(queryMap(rc.RawQuery))
		if err != nil {
			return p.dispatcher.Dispatch(rc, err), nil
		}
		rc.Query = v
	}

	if rt.body != nil {
		raw, err := decodeJSONBody(rc.RawBody)
		if err != nil {
			return p.dispatcher.Dispatch(rc, Error(http.StatusBadRequest, "invalid JSON body")), nil
		}

		v, err := rt.body.ValidateOrError(raw)
		if err != nil {
			return p.dispatcher.Dispatch(rc, err), nil
		}
		rc.Body = v

		if sv, ok := v.(SelfValidator); ok {
			if err := sv.Validate(); err != nil {
				return p.dispatcher.Dispatch(rc, err), nil
			}
		}
		if p.validator != nil {
			if err := p.validator.Validate(v); err != nil {
				return p.dispatcher.Dispatch(rc, err), nil
			}
		}
	}

	// ResolvingDependencies: a factory failure still releases what was
	// already acquired.
	deps, cleanup, err := p.resolver.Resolve(rt.deps, rc)
	if err != nil {
		return p.dispatcher.Dispatch(rc, err), cleanup
	}
	rc.deps = deps

	// Invoking.
	out, err := p.invoke(rt, rc)
	if err != nil {
		return p.dispatcher.Dispatch(rc, err), cleanup
	}

	// ValidatingResponse: a violation means the handler broke its own
	// declared contract, which is an internal error, not a client error.
	if rt.response != nil {
		validated, verrs := rt.response.Validate(serializable(out, rt.response))
		if len(verrs) > 0 {
			p.logger.Error("handler response violates response schema",
				slog.String("method", rc.Method),
				slog.String("path", rc.Path),
				slog.String("request_id", rc.ID),
				slog.Any("violations", verrs),
			)
			return p.dispatcher.Dispatch(rc, fmt.Errorf("response schema violation on %s %s", rc.Method, rc.Path)), cleanup
		}
		out = validated
	}

	// Responding.
	return Response{Status: rt.status, Body: out}, cleanup
}

// invoke runs the handler with a recover barrier so a panicking handler
// becomes an internal error instead of a crashed serving process.
func (p *Pipeline) invoke(rt *Route, rc *Context) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("handler panic",
				slog.Any("panic", rec),
				slog.String("method", rc.Method),
				slog.String("path", rc.Path),
				slog.String("request_id", rc.ID),
				slog.String("stack", string(debug.Stack())),
			)
			out = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return rt.handler(rc)
}

// paramsMap widens path parameters for schema validation.
func paramsMap(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// queryMap widens query values: single values stay scalar so they can
// coerce, repeated keys become arrays.
func queryMap(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k, vs := range q {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			items := make([]any, len(vs))
			for i, v := range vs {
				items[i] = v
			}
			out[k] = items
		}
	}
	return out
}

// decodeJSONBody decodes a raw JSON body into a map. An empty body is an
// empty object, letting required-field errors name what is missing.
func decodeJSONBody(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeBody, err)
	}
	return m, nil
}

// serializable prepares a handler return value for response validation.
// Values already in the schema's shape pass through; anything else is
// serialized to a map first.
func serializable(out any, s *Schema) any {
	if out == nil {
		return nil
	}
	if _, ok := out.(map[string]any); ok {
		return out
	}

	rv := reflect.ValueOf(out)
	if rv.Type() == s.typ {
		return out
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type() == s.typ {
		return out
	}

	b, err := json.Marshal(out)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return out
	}
	return m
}
