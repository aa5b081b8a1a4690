package api

import (
	"fmt"
	"net/http"
	"sync"
)

// Registry is the keyed store of routes. Entries are added at startup and
// read concurrently during serving; no two entries share a method+path.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*Route
	order  []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]*Route),
	}
}

// Register adds a route. Registering a second route with the same method
// and path fails.
func (r *Registry) Register(rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := rt.ID()
	if _, exists := r.routes[id]; exists {
		return fmt.Errorf("registry: route %s %s already registered", rt.method, rt.path)
	}

	r.routes[id] = rt
	r.order = append(r.order, id)
	return nil
}

// Lookup returns the route for method+path, if registered.
func (r *Registry) Lookup(method, path string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[method+":"+path]
	return rt, ok
}

// Routes returns all routes in registration order.
func (r *Registry) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Route, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.routes[id])
	}
	return out
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Remove deletes the route for method+path. Test-only.
func (r *Registry) Remove(method, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := method + ":" + path
	if _, ok := r.routes[id]; !ok {
		return false
	}

	delete(r.routes, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every route. Test-only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = make(map[string]*Route)
	r.order = nil
}

// Get builds and registers a GET route.
func Get(r *Registry, path string, h Handler, opts ...RouteOption) error {
	return add(r, http.MethodGet, path, h, opts...)
}

// Post builds and registers a POST route.
func Post(r *Registry, path string, h Handler, opts ...RouteOption) error {
	return add(r, http.MethodPost, path, h, opts...)
}

// Put builds and registers a PUT route.
func Put(r *Registry, path string, h Handler, opts ...RouteOption) error {
	return add(r, http.MethodPut, path, h, opts...)
}

// Patch builds and registers a PATCH route.
func Patch(r *Registry, path string, h Handler, opts ...RouteOption) error {
	return add(r, http.MethodPatch, path, h, opts...)
}

// Delete builds and registers a DELETE route.
func Delete(r *Registry, path string, h Handler, opts ...RouteOption) error {
	return add(r, http.MethodDelete, path, h, opts...)
}

func add(r *Registry, method, path string, h Handler, opts ...RouteOption) error {
	rt, err := NewRoute(method, path, h, opts...)
	if err != nil {
		return err
	}
	return r.Register(rt)
}
