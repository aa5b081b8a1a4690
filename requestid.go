package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDConfig configures the RequestID middleware.
type RequestIDConfig struct {
	Header    string        // default: "X-Request-ID"
	Generator func() string // default: UUIDv4
}

// RequestID returns middleware that assigns a correlation id to each
// request. The id is read from the request header when present, generated
// otherwise, stored in the context, echoed on the response header, and
// picked up by the pipeline as the request Context's ID.
func RequestID(cfg ...RequestIDConfig) Middleware {
	c := RequestIDConfig{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}
	if len(cfg) > 0 {
		if cfg[0].Header != "" {
			c.Header = cfg[0].Header
		}
		if cfg[0].Generator != nil {
			c.Generator = cfg[0].Generator
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(c.Header)
			if id == "" {
				id = c.Generator()
			}

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			w.Header().Set(c.Header, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFrom extracts the correlation id from a context, if set.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
