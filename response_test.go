package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriq/api"
)

func TestResponse_write_json_body(t *testing.T) {
	t.Parallel()

	resp := api.Response{
		Status: http.StatusCreated,
		Body:   map[string]any{"id": "u-1"},
	}
	resp.Header("Location", "/users/u-1")

	rec := httptest.NewRecorder()
	resp.Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/users/u-1", rec.Header().Get("Location"))
	assert.JSONEq(t, `{"id":"u-1"}`, rec.Body.String())
}

func TestResponse_write_nil_body(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	api.Response{Status: http.StatusNoContent}.Write(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestResponse_write_zero_status_defaults_to_200(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	api.Response{Body: map[string]any{"ok": true}}.Write(rec)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
