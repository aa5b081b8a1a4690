package api_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fabriq/api"
)

func ExampleSchemaOf() {
	type CreateUser struct {
		Name string `json:"name" required:"true" minLength:"2"`
		Plan string `json:"plan" enum:"free,pro" default:"free"`
	}

	s := api.SchemaOf[CreateUser]()

	v, errs := s.Validate(map[string]any{"name": "alice"})
	fmt.Println(len(errs), v.(*CreateUser).Plan)

	_, errs = s.Validate(map[string]any{"plan": "gold"})
	for _, e := range errs {
		fmt.Printf("%s %s\n", e.Field, e.Message)
	}
	// Output:
	// 0 free
	// name is required
	// plan must be one of [free,pro]
}

func ExamplePipeline_Handle() {
	type Greeting struct {
		Name string `json:"name" required:"true"`
	}

	reg := api.NewRegistry()
	_ = api.Post(reg, "/greetings", func(ctx *api.Context) (any, error) {
		in := ctx.Body.(*Greeting)
		return map[string]any{"message": "hello " + in.Name}, nil
	}, api.WithBody(api.SchemaOf[Greeting]()))

	p := api.NewPipeline(api.WithRegistry(reg))

	resp, _ := p.Execute(context.Background(), http.MethodPost, "/greetings", api.Request{
		Method: http.MethodPost,
		Path:   "/greetings",
		Body:   []byte(`{"name":"alice"}`),
	})
	fmt.Println(resp.Status, resp.Body.(map[string]any)["message"])
	// Output:
	// 200 hello alice
}

func ExampleOn() {
	type conflictErr struct{ error }

	d := api.NewDispatcher()
	api.On[*conflictErr](d, func(_ *api.Context, err error) api.Response {
		return api.Response{
			Status: http.StatusConflict,
			Body:   map[string]any{"error": err.Error()},
		}
	})

	resp := d.Dispatch(nil, &conflictErr{fmt.Errorf("name taken")})
	fmt.Println(resp.Status)
	// Output:
	// 409
}
