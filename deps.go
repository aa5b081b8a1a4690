package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Scope is the lifecycle policy for a dependency's created value.
type Scope int

const (
	// ScopeRequest creates a fresh value for every request.
	ScopeRequest Scope = iota
	// ScopeSingleton creates the value once, lazily, for the process lifetime.
	ScopeSingleton
)

// String returns the scope name.
func (s Scope) String() string {
	if s == ScopeSingleton {
		return "singleton"
	}
	return "request"
}

// Dependency describes how a named value is produced and released.
type Dependency struct {
	Scope   Scope
	Factory func(ctx *Context) (any, error)
	Cleanup func(ctx context.Context, value any) error
}

// DependencySpec binds a Dependency to its name within a route.
type DependencySpec struct {
	Name string
	Dependency
}

// CleanupFunc releases every resolved dependency that declared a cleanup,
// in reverse acquisition order.
type CleanupFunc func(ctx context.Context) error

// NoopCleanup is the cleanup returned when nothing needs releasing.
func NoopCleanup(context.Context) error { return nil }

// Resolver resolves named dependencies per request and owns the
// process-wide singleton cache. Tests instantiate a fresh Resolver
// instead of clearing shared state.
type Resolver struct {
	mu         sync.Mutex
	singletons map[string]*singletonEntry
	logger     *slog.Logger
}

// singletonEntry guards one named singleton. The per-name lock closes the
// race between concurrent first requests: one factory call runs, the rest
// wait and reuse. A failed factory is not cached; the next request retries.
type singletonEntry struct {
	mu    sync.Mutex
	done  bool
	value any
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for cleanup failures.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a Resolver with an empty singleton cache.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		singletons: make(map[string]*singletonEntry),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a value for each spec in order. Singletons come from the
// cache when already created. The returned cleanup runs the accumulated
// cleanup chain in reverse acquisition order and is non-nil even on error,
// so callers can release dependencies acquired before a factory failed.
func (r *Resolver) Resolve(specs []DependencySpec, ctx *Context) (map[string]any, CleanupFunc, error) {
	if len(specs) == 0 {
		return map[string]any{}, NoopCleanup, nil
	}

	resolved := make(map[string]any, len(specs))
	var chain []chainEntry

	cleanup := func(cctx context.Context) error {
		var first error
		// Reverse order: later dependencies may use earlier ones.
		for i := len(chain) - 1; i >= 0; i-- {
			e := chain[i]
			if err := e.release(cctx, e.value); err != nil {
				r.logger.Error("dependency cleanup failed",
					slog.String("dependency", e.name),
					slog.String("error", err.Error()),
				)
				if first == nil {
					first = fmt.Errorf("cleanup %q: %w", e.name, err)
				}
			}
		}
		return first
	}

	for _, spec := range specs {
		if spec.Factory == nil {
			return nil, cleanup, fmt.Errorf("dependency %q: %w", spec.Name, ErrNilFactory)
		}

		var (
			value any
			err   error
		)
		if spec.Scope == ScopeSingleton {
			value, err = r.singleton(spec, ctx)
		} else {
			value, err = callFactory(spec.Factory, ctx)
		}
		if err != nil {
			return nil, cleanup, fmt.Errorf("dependency %q: %w", spec.Name, err)
		}

		resolved[spec.Name] = value
		if spec.Cleanup != nil {
			chain = append(chain, chainEntry{name: spec.Name, value: value, release: spec.Cleanup})
		}
	}

	return resolved, cleanup, nil
}

type chainEntry struct {
	name    string
	value   any
	release func(context.Context, any) error
}

// callFactory invokes a factory behind a recover barrier. A panicking
// factory fails its dependency instead of unwinding past the cleanup chain
// with earlier dependencies still held.
func callFactory(factory func(*Context) (any, error), ctx *Context) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("factory panic: %v", rec)
		}
	}()
	return factory(ctx)
}

// singleton returns the cached value for the spec's name, invoking the
// factory at most once across concurrent requests.
func (r *Resolver) singleton(spec DependencySpec, ctx *Context) (any, error) {
	r.mu.Lock()
	entry, ok := r.singletons[spec.Name]
	if !ok {
		entry = &singletonEntry{}
		r.singletons[spec.Name] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.done {
		return entry.value, nil
	}

	value, err := callFactory(spec.Factory, ctx)
	if err != nil {
		return nil, err
	}

	entry.value = value
	entry.done = true
	return value, nil
}

// Reset clears the singleton cache. Test-only; not for serving paths.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singletons = make(map[string]*singletonEntry)
}
