package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriq/api"
)

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"http error":          {api.Error(http.StatusConflict, "exists"), http.StatusConflict},
		"wrapped http error":  {fmt.Errorf("save: %w", api.Error(http.StatusConflict, "exists")), http.StatusConflict},
		"validation failure":  {&api.ValidationFailure{}, http.StatusUnprocessableEntity},
		"plain error":         {errors.New("boom"), http.StatusInternalServerError},
		"unauthorized helper": {api.Unauthorized(""), http.StatusUnauthorized},
		"forbidden helper":    {api.Forbidden(""), http.StatusForbidden},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, api.ErrorStatus(tc.err))
		})
	}
}

func TestErrorHeaders(t *testing.T) {
	t.Parallel()

	err := api.Unauthorized(`Bearer realm="api"`)
	h := api.ErrorHeaders(err)
	require.NotNil(t, h)
	assert.Equal(t, `Bearer realm="api"`, h.Get("WWW-Authenticate"))

	assert.Nil(t, api.ErrorHeaders(errors.New("boom")))
	assert.Nil(t, api.ErrorHeaders(api.Unauthorized("")))
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := api.Errorf(http.StatusNotFound, "user %q not found", "u-1")
	assert.Equal(t, `user "u-1" not found`, err.Error())
	assert.Equal(t, http.StatusNotFound, api.ErrorStatus(err))
}

func TestForbidden_default_message(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "forbidden", api.Forbidden("").Error())
	assert.Equal(t, "members only", api.Forbidden("members only").Error())
}

func TestValidationFailure_error_counts(t *testing.T) {
	t.Parallel()

	vf := &api.ValidationFailure{Errors: []api.ValidationError{
		{Field: "name", Message: "is required"},
		{Field: "age", Message: "must be at least 0"},
	}}
	assert.Equal(t, "2 validation error(s)", vf.Error())
}
