package api_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fabriq/api"
	"github.com/fabriq/api/apitest"
)

type petID struct {
	ID string `json:"id" required:"true"`
}

type petBody struct {
	Pet   *petOut               `json:"pet,omitempty"`
	Error string                `json:"error,omitempty"`
	Errs  []api.ValidationError `json:"errors,omitempty"`
}

func newPetEngine(t *testing.T) *api.Engine {
	t.Helper()

	p := quietPipeline()
	reg := p.Registry()

	require.NoError(t, api.Get(reg, "/pets/{id}",
		func(ctx *api.Context) (any, error) {
			params := ctx.Params.(*petID)
			if params.ID == "missing" {
				return nil, api.Error(http.StatusNotFound, "pet not found")
			}
			return map[string]any{"pet": map[string]any{"id": params.ID, "name": "rex"}}, nil
		},
		api.WithParams(api.SchemaOf[petID]()),
	))

	require.NoError(t, api.Post(reg, "/pets",
		func(ctx *api.Context) (any, error) {
			in := ctx.Body.(*petIn)
			return map[string]any{"pet": map[string]any{"id": "p-1", "name": in.Name}}, nil
		},
		api.WithBody(api.SchemaOf[petIn]()),
		api.WithStatus(http.StatusCreated),
		api.WithSummary("Create a pet"),
		api.WithTags("pets"),
	))

	return api.NewEngine(p)
}

func TestEngine_path_params(t *testing.T) {
	t.Parallel()

	c := apitest.NewClient(t, newPetEngine(t))

	resp := apitest.Get[petBody](t, c, "/pets/p-7")
	require.Equal(t, http.StatusOK, resp.Status)
	require.NotNil(t, resp.Body)
	require.NotNil(t, resp.Body.Pet)
	assert.Equal(t, "p-7", resp.Body.Pet.ID)
	assert.Equal(t, "rex", resp.Body.Pet.Name)
}

func TestEngine_handler_error_status(t *testing.T) {
	t.Parallel()

	c := apitest.NewClient(t, newPetEngine(t))

	resp := apitest.Get[petBody](t, c, "/pets/missing")
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.NotNil(t, resp.Body)
	assert.Equal(t, "pet not found", resp.Body.Error)
}

func TestEngine_post_validation(t *testing.T) {
	t.Parallel()

	c := apitest.NewClient(t, newPetEngine(t))

	resp := apitest.Post[petIn, petBody](t, c, "/pets", &petIn{Name: "rex", Kind: "dog"})
	require.Equal(t, http.StatusCreated, resp.Status)
	require.NotNil(t, resp.Body)
	require.NotNil(t, resp.Body.Pet)
	assert.Equal(t, "rex", resp.Body.Pet.Name)

	bad := apitest.Post[petIn, petBody](t, c, "/pets", &petIn{Kind: "dog"})
	require.Equal(t, http.StatusUnprocessableEntity, bad.Status)
	require.NotNil(t, bad.Body)
	assert.Equal(t, "validation failed", bad.Body.Error)
	require.Len(t, bad.Body.Errs, 1)
	assert.Equal(t, "name", bad.Body.Errs[0].Field)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestEngine_body_read_failure_is_400(t *testing.T) {
	t.Parallel()

	e := newPetEngine(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pets", brokenBody{})
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unable to read request body")
}

func TestEngine_unknown_route_is_mux_404(t *testing.T) {
	t.Parallel()

	c := apitest.NewClient(t, newPetEngine(t))

	resp := apitest.Get[map[string]any](t, c, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestEngine_request_id_middleware(t *testing.T) {
	t.Parallel()

	e := newPetEngine(t)
	e.Use(api.RequestID())
	c := apitest.NewClient(t, e)

	resp := apitest.Get[petBody](t, c, "/pets/p-1")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Headers.Get("X-Request-ID"), "generated id echoes on the response")

	req, err := http.NewRequest(http.MethodGet, c.Server.URL+"/pets/p-1", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")

	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()

	assert.Equal(t, "req-42", raw.Header.Get("X-Request-ID"), "caller-supplied id round-trips")
}

func TestEngine_middleware_order(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		order []string
	)
	mw := func(name string) api.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next.ServeHTTP(w, r)
			})
		}
	}

	e := newPetEngine(t)
	e.Use(mw("outer"), mw("inner"))
	c := apitest.NewClient(t, e)

	resp := apitest.Get[petBody](t, c, "/pets/p-1")
	require.Equal(t, http.StatusOK, resp.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestEngine_recovery_middleware(t *testing.T) {
	t.Parallel()

	p := quietPipeline()
	require.NoError(t, api.Get(p.Registry(), "/ok", func(_ *api.Context) (any, error) {
		return map[string]any{"ok": true}, nil
	}))

	e := api.NewEngine(p)
	e.Use(api.Recovery(), api.Logger(slog.New(slog.DiscardHandler)))
	c := apitest.NewClient(t, e)

	resp := apitest.Get[map[string]any](t, c, "/ok")
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestEngine_serve_routes_listing(t *testing.T) {
	t.Parallel()

	e := newPetEngine(t)
	e.ServeRoutes("/routes.json")
	e.ServeRoutesYAML("/routes.yaml")
	c := apitest.NewClient(t, e)

	resp := apitest.Get[[]api.RouteDescription](t, c, "/routes.json")
	require.Equal(t, http.StatusOK, resp.Status)
	require.NotNil(t, resp.Body)

	listing := *resp.Body
	require.Len(t, listing, 2)
	assert.Equal(t, http.MethodGet, listing[0].Method)
	assert.Equal(t, "/pets/{id}", listing[0].Path)
	require.NotNil(t, listing[0].Params)
	assert.Contains(t, listing[0].Params.Required, "id")

	assert.Equal(t, http.MethodPost, listing[1].Method)
	assert.Equal(t, "Create a pet", listing[1].Summary)
	assert.Equal(t, []string{"pets"}, listing[1].Tags)
	assert.Equal(t, http.StatusCreated, listing[1].Status)

	rawResp, err := http.Get(c.Server.URL + "/routes.yaml")
	require.NoError(t, err)
	defer rawResp.Body.Close()
	require.Equal(t, http.StatusOK, rawResp.StatusCode)

	raw, err := io.ReadAll(rawResp.Body)
	require.NoError(t, err)

	var fromYAML []api.RouteDescription
	require.NoError(t, yaml.Unmarshal(raw, &fromYAML))
	require.Len(t, fromYAML, 2)
	assert.Equal(t, "/pets", fromYAML[1].Path)
}
