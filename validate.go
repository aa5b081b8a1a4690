package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SelfValidator is implemented by schema types that validate themselves
// beyond what constraint tags express.
type SelfValidator interface {
	Validate() error
}

// Validator validates a typed value produced by schema validation.
type Validator interface {
	Validate(v any) error
}

// playgroundValidator adapts go-playground/validator struct tags
// (`validate:"..."`) into the framework's field-error shape.
type playgroundValidator struct {
	v *validator.Validate
}

// Playground returns a Validator backed by go-playground/validator,
// reporting json field names in dot-path form.
func Playground() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &playgroundValidator{v: v}
}

func (p *playgroundValidator) Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := p.v.Struct(rv.Interface())
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: constraintMessage(fe),
			Value:   fe.Value(),
		})
	}
	return &ValidationFailure{Errors: out}
}

// fieldPath strips the root struct name from a namespace like
// "CreateUser.profile.email".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
