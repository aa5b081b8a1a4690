package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Engine adapts the pipeline to net/http: it mounts registered routes onto
// an http.ServeMux, applies middleware, and serves. The mux owns transport
// and path matching; the pipeline owns everything after the match.
type Engine struct {
	pipeline   *Pipeline
	mux        *http.ServeMux
	middleware []Middleware

	mountOnce sync.Once

	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReadHeaderTimeout sets the server's read-header timeout (default 10s).
func WithReadHeaderTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.readHeaderTimeout = d
	}
}

// WithShutdownTimeout bounds graceful shutdown, including draining
// background tasks (default 30s).
func WithShutdownTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.shutdownTimeout = d
	}
}

// NewEngine creates an Engine serving the pipeline's registered routes.
func NewEngine(p *Pipeline, opts ...EngineOption) *Engine {
	e := &Engine{
		pipeline:          p,
		mux:               http.NewServeMux(),
		readHeaderTimeout: 10 * time.Second,
		shutdownTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Use adds middleware, applied in the order added.
func (e *Engine) Use(mw ...Middleware) {
	e.middleware = append(e.middleware, mw...)
}

// ServeHTTP implements http.Handler. Routes are mounted on first use, so
// registration must be complete before serving begins.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mountOnce.Do(e.mount)

	handler := http.Handler(e.mux)
	for i := len(e.middleware) - 1; i >= 0; i-- {
		handler = e.middleware[i](handler)
	}
	handler.ServeHTTP(w, r)
}

// mount wires every registered route into the mux using method+pattern
// keys. Unmatched requests get the mux's own 404.
func (e *Engine) mount() {
	for _, rt := range e.pipeline.Registry().Routes() {
		names := templateParams(rt.Path())
		e.mux.HandleFunc(rt.Method()+" "+rt.Path(), func(w http.ResponseWriter, r *http.Request) {
			req, err := buildRequest(r, names)
			if err != nil {
				Response{
					Status: http.StatusBadRequest,
					Body:   map[string]any{"error": "unable to read request body"},
				}.Write(w)
				return
			}
			resp := e.pipeline.Handle(r.Context(), rt, req)
			resp.Write(w)
		})
	}
}

// ListenAndServe starts an HTTP server on the given address. It blocks
// until the context is cancelled, then shuts down gracefully and drains
// background tasks.
func (e *Engine) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: e.readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return e.pipeline.Runner().Wait(shutdownCtx)
	}
}

// templateParams extracts the {name} segments from a path template.
func templateParams(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if len(seg) > 1 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			name := seg[1 : len(seg)-1]
			name = strings.TrimSuffix(name, "...")
			names = append(names, name)
		}
	}
	return names
}

// buildRequest converts an *http.Request into the pipeline's decoded form.
// A body read failure is reported rather than validated as a short body.
func buildRequest(r *http.Request, paramNames []string) (Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return Request{}, fmt.Errorf("read body: %w", err)
		}
	}

	params := make(map[string]string, len(paramNames))
	for _, name := range paramNames {
		params[name] = r.PathValue(name)
	}

	return Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Params:  params,
		Query:   r.URL.Query(),
		Body:    body,
		Headers: r.Header,
		Cookies: r.Cookies(),
		ID:      RequestIDFrom(r.Context()),
	}, nil
}
