// Package api is a declarative HTTP API framework core for Go. Routes are
// registered with input/output schemas, a handler, and named dependencies;
// the framework performs validation, dependency resolution, handler
// invocation, response shaping, background work, and error translation.
// Transport and path matching belong to the HTTP engine (net/http); the
// core begins where the route match ends.
//
// Routes are declared against a Registry and validated at construction:
//
//	reg := api.NewRegistry()
//	api.Post(reg, "/users", createUser,
//	    api.WithBody(api.SchemaOf[CreateUser]()),
//	    api.WithStatus(http.StatusCreated),
//	    api.WithDependency("db", api.Dependency{
//	        Scope:   api.ScopeSingleton,
//	        Factory: openDatabase,
//	        Cleanup: closeDatabase,
//	    }),
//	)
//
// Schema types use json tags for field names and constraint tags for
// validation; input is coerced and defaulted transparently:
//
//	type CreateUser struct {
//	    Name  string `json:"name" required:"true" minLength:"1"`
//	    Email string `json:"email" required:"true" pattern:".+@.+"`
//	    Age   int    `json:"age" minimum:"18"`
//	    Plan  string `json:"plan" enum:"free,pro" default:"free"`
//	}
//
// A Pipeline executes requests: validation, dependency resolution with
// LIFO cleanup, handler invocation, response validation, and error
// dispatch with most-specific-type matching. Handlers schedule
// fire-and-forget work through the request Context:
//
//	func createUser(ctx *api.Context) (any, error) {
//	    user := ctx.Body.(*CreateUser)
//	    ctx.Background(sendWelcomeEmail(user), api.TaskName("welcome-email"))
//	    return user, nil
//	}
//
// The Engine adapts the pipeline to net/http with standard
// func(http.Handler) http.Handler middleware:
//
//	p := api.NewPipeline(api.WithRegistry(reg))
//	e := api.NewEngine(p)
//	e.Use(api.RequestID(), api.Logger(slog.Default()), api.Recovery())
//	e.ListenAndServe(ctx, ":8080")
package api
