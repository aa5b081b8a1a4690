// Command sample demonstrates the github.com/fabriq/api framework with a
// small user service covering every major feature.
//
// Run:
//
//	go run ./cmd/sample
//
// Print the route listing:
//
//	go run ./cmd/sample -routes
//
// Then explore:
//
//	GET    http://localhost:8080/routes.json       — route listing
//	GET    http://localhost:8080/v1/health         — health check
//	GET    http://localhost:8080/v1/users          — list users (paging via query)
//	POST   http://localhost:8080/v1/users          — create user
//	GET    http://localhost:8080/v1/users/{id}     — get user
//	PATCH  http://localhost:8080/v1/users/{id}     — partial update
//	DELETE http://localhost:8080/v1/users/{id}     — delete user (requires token)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/fabriq/api"
)

func main() {
	routesFlag := flag.Bool("routes", false, "Print the route listing to stdout and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	p, err := newPipeline()
	if err != nil {
		slog.Error("route registration failed", "err", err)
		os.Exit(1)
	}

	if *routesFlag {
		if err := p.Registry().WriteRoutes(os.Stdout); err != nil {
			slog.Error("route listing failed", "err", err)
			os.Exit(1)
		}
		return
	}

	e := api.NewEngine(p)
	e.Use(
		api.RequestID(),
		api.Logger(slog.Default()),
		api.Recovery(),
		api.RateLimit(api.RateLimitConfig{Rate: 50, Burst: 100}),
	)
	e.ServeRoutes("/routes.json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting server", "addr", ":8080", "routes", "http://localhost:8080/routes.json")

	if err := e.ListenAndServe(ctx, ":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}

	slog.Info("server stopped")
}

// User is the stored record and response shape.
type User struct {
	ID    string `json:"id" required:"true"`
	Name  string `json:"name" required:"true" minLength:"1"`
	Email string `json:"email" required:"true" pattern:".+@.+"`
	Age   int    `json:"age" minimum:"18"`
	Plan  string `json:"plan" enum:"free,pro" default:"free"`
}

// CreateUser is the POST body schema.
type CreateUser struct {
	Name  string `json:"name" required:"true" minLength:"1"`
	Email string `json:"email" required:"true" pattern:".+@.+"`
	Age   int    `json:"age" minimum:"18"`
	Plan  string `json:"plan" enum:"free,pro" default:"free"`
}

// UserID is the path-parameter schema shared by the item routes.
type UserID struct {
	ID string `json:"id" required:"true"`
}

// ListQuery pages the user listing.
type ListQuery struct {
	Limit  int `json:"limit" default:"20" minimum:"1" maximum:"100"`
	Offset int `json:"offset" default:"0" minimum:"0"`
}

// store is an in-memory user store standing in for a database.
type store struct {
	mu    sync.RWMutex
	users map[string]*User
	next  int
}

func newPipeline() (*api.Pipeline, error) {
	reg := api.NewRegistry()

	db := api.Dependency{
		Scope: api.ScopeSingleton,
		Factory: func(_ *api.Context) (any, error) {
			slog.Info("opening store")
			return &store{users: make(map[string]*User)}, nil
		},
		Cleanup: func(_ context.Context, _ any) error {
			return nil
		},
	}

	token := api.Dependency{
		Scope: api.ScopeRequest,
		Factory: func(ctx *api.Context) (any, error) {
			tok := ctx.Header("Authorization")
			if tok == "" {
				return nil, api.Unauthorized(`Bearer realm="sample"`)
			}
			return tok, nil
		},
	}

	register := []func() error{
		func() error {
			return api.Get(reg, "/v1/health", func(_ *api.Context) (any, error) {
				return map[string]any{"status": "ok", "time": time.Now().UTC()}, nil
			}, api.WithTags("ops"))
		},
		func() error {
			return api.Get(reg, "/v1/users", listUsers,
				api.WithQuery(api.SchemaOf[ListQuery]()),
				api.WithDependency("db", db),
				api.WithTags("users"),
			)
		},
		func() error {
			return api.Post(reg, "/v1/users", createUser,
				api.WithBody(api.SchemaOf[CreateUser]()),
				api.WithResponse(api.SchemaOf[User]()),
				api.WithStatus(http.StatusCreated),
				api.WithDependency("db", db),
				api.WithTags("users"),
			)
		},
		func() error {
			return api.Get(reg, "/v1/users/{id}", getUser,
				api.WithParams(api.SchemaOf[UserID]()),
				api.WithResponse(api.SchemaOf[User]()),
				api.WithDependency("db", db),
				api.WithTags("users"),
			)
		},
		func() error {
			return api.Patch(reg, "/v1/users/{id}", patchUser,
				api.WithParams(api.SchemaOf[UserID]()),
				api.WithBody(api.SchemaOf[CreateUser]().Partial()),
				api.WithResponse(api.SchemaOf[User]()),
				api.WithDependency("db", db),
				api.WithTags("users"),
			)
		},
		func() error {
			return api.Delete(reg, "/v1/users/{id}", deleteUser,
				api.WithParams(api.SchemaOf[UserID]()),
				api.WithStatus(http.StatusNoContent),
				api.WithDependency("db", db),
				api.WithDependency("token", token),
				api.WithTags("users"),
			)
		},
	}
	for _, fn := range register {
		if err := fn(); err != nil {
			return nil, err
		}
	}

	return api.NewPipeline(api.WithRegistry(reg)), nil
}

func listUsers(ctx *api.Context) (any, error) {
	q := ctx.Query.(*ListQuery)
	db := ctx.MustDep("db").(*store)

	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*User, 0, q.Limit)
	skipped := 0
	for _, u := range db.users {
		if skipped < q.Offset {
			skipped++
			continue
		}
		if len(out) == q.Limit {
			break
		}
		out = append(out, u)
	}
	return map[string]any{"users": out, "total": len(db.users)}, nil
}

func createUser(ctx *api.Context) (any, error) {
	in := ctx.Body.(*CreateUser)
	db := ctx.MustDep("db").(*store)

	db.mu.Lock()
	db.next++
	u := &User{
		ID:    fmt.Sprintf("u%d", db.next),
		Name:  in.Name,
		Email: in.Email,
		Age:   in.Age,
		Plan:  in.Plan,
	}
	db.users[u.ID] = u
	db.mu.Unlock()

	ctx.Background(func(_ context.Context) error {
		slog.Info("welcome email queued", "user", u.ID, "email", u.Email)
		return nil
	}, api.TaskName("welcome-email"))

	return u, nil
}

func getUser(ctx *api.Context) (any, error) {
	id := ctx.Params.(*UserID).ID
	db := ctx.MustDep("db").(*store)

	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, api.Errorf(http.StatusNotFound, "user %s not found", id)
	}
	return u, nil
}

func patchUser(ctx *api.Context) (any, error) {
	id := ctx.Params.(*UserID).ID
	in := ctx.Body.(*CreateUser)
	db := ctx.MustDep("db").(*store)

	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return nil, api.Errorf(http.StatusNotFound, "user %s not found", id)
	}
	if in.Name != "" {
		u.Name = in.Name
	}
	if in.Email != "" {
		u.Email = in.Email
	}
	if in.Age != 0 {
		u.Age = in.Age
	}
	if in.Plan != "" {
		u.Plan = in.Plan
	}
	return u, nil
}

func deleteUser(ctx *api.Context) (any, error) {
	id := ctx.Params.(*UserID).ID
	db := ctx.MustDep("db").(*store)

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[id]; !ok {
		return nil, api.Errorf(http.StatusNotFound, "user %s not found", id)
	}
	delete(db.users, id)
	return nil, nil
}
