package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriq/api"
)

func noopHandler(_ *api.Context) (any, error) { return nil, nil }

func TestRegistry_route_identity(t *testing.T) {
	t.Parallel()

	reg := api.NewRegistry()

	require.NoError(t, api.Get(reg, "/items", noopHandler))

	// Same method and path: rejected.
	err := api.Get(reg, "/items", noopHandler)
	require.ErrorContains(t, err, "already registered")

	// Differing method or path: both fine.
	require.NoError(t, api.Post(reg, "/items", noopHandler))
	require.NoError(t, api.Get(reg, "/items/{id}", noopHandler))

	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_lookup(t *testing.T) {
	t.Parallel()

	reg := api.NewRegistry()
	require.NoError(t, api.Get(reg, "/items", noopHandler))

	rt, ok := reg.Lookup(http.MethodGet, "/items")
	require.True(t, ok)
	assert.Equal(t, "GET:/items", rt.ID())

	_, ok = reg.Lookup(http.MethodPost, "/items")
	assert.False(t, ok)
}

func TestRegistry_routes_in_registration_order(t *testing.T) {
	t.Parallel()

	reg := api.NewRegistry()
	require.NoError(t, api.Get(reg, "/b", noopHandler))
	require.NoError(t, api.Get(reg, "/a", noopHandler))
	require.NoError(t, api.Post(reg, "/b", noopHandler))

	var ids []string
	for _, rt := range reg.Routes() {
		ids = append(ids, rt.ID())
	}
	assert.Equal(t, []string{"GET:/b", "GET:/a", "POST:/b"}, ids)
}

func TestRegistry_remove_and_clear(t *testing.T) {
	t.Parallel()

	reg := api.NewRegistry()
	require.NoError(t, api.Get(reg, "/a", noopHandler))
	require.NoError(t, api.Get(reg, "/b", noopHandler))

	assert.True(t, reg.Remove(http.MethodGet, "/a"))
	assert.False(t, reg.Remove(http.MethodGet, "/a"))
	assert.Equal(t, 1, reg.Len())

	// Removed identity can be reused.
	require.NoError(t, api.Get(reg, "/a", noopHandler))

	reg.Clear()
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Routes())
}

func TestRegistry_list_describes_contracts(t *testing.T) {
	t.Parallel()

	type body struct {
		Name string `json:"name" required:"true" minLength:"2"`
		Plan string `json:"plan" enum:"free,pro" default:"free"`
	}

	reg := api.NewRegistry()
	require.NoError(t, api.Post(reg, "/users", noopHandler,
		api.WithBody(api.SchemaOf[body]()),
		api.WithStatus(http.StatusCreated),
		api.WithSummary("create a user"),
		api.WithTags("users"),
	))

	list := reg.List()
	require.Len(t, list, 1)

	d := list[0]
	assert.Equal(t, http.MethodPost, d.Method)
	assert.Equal(t, "/users", d.Path)
	assert.Equal(t, http.StatusCreated, d.Status)
	assert.Equal(t, "create a user", d.Summary)
	assert.Equal(t, []string{"users"}, d.Tags)

	require.NotNil(t, d.Body)
	assert.Equal(t, "object", d.Body.Type)
	assert.Equal(t, []string{"name"}, d.Body.Required)

	name := d.Body.Properties["name"]
	assert.Equal(t, "string", name.Type)
	require.NotNil(t, name.MinLength)
	assert.Equal(t, 2, *name.MinLength)

	plan := d.Body.Properties["plan"]
	assert.Equal(t, []string{"free", "pro"}, plan.Enum)
	assert.Equal(t, "free", plan.Default)
}
