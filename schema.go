package api

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Schema validates and coerces untyped input against a struct prototype.
// Field names come from json tags; constraints come from struct tags
// (required, default, minimum, maximum, minLength, maxLength, pattern,
// enum, minItems, maxItems). Validation is a pure function of schema+data.
type Schema struct {
	typ     reflect.Type
	partial bool
}

// SchemaOf builds a Schema from a struct prototype. Non-struct prototypes
// and non-compiling pattern tags are definition-time misuse and panic,
// like malformed mux patterns.
func SchemaOf[T any]() *Schema {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("api: schema prototype must be a struct, got %s", t))
	}
	compileFieldPatterns(t)
	return &Schema{typ: t}
}

// compileFieldPatterns compiles every pattern tag in the prototype up
// front, so a bad pattern fails at definition time instead of silently
// passing during validation.
func compileFieldPatterns(t reflect.Type) {
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeFor[time.Time]() {
			compileFieldPatterns(f.Type)
			continue
		}
		if tag := f.Tag.Get("pattern"); tag != "" {
			compiledPattern(tag)
		}
	}
}

var patternCache sync.Map // pattern tag -> *regexp.Regexp

func compiledPattern(tag string) *regexp.Regexp {
	if re, ok := patternCache.Load(tag); ok {
		return re.(*regexp.Regexp)
	}
	re, err := regexp.Compile(tag)
	if err != nil {
		panic(fmt.Sprintf("api: invalid pattern %q: %v", tag, err))
	}
	patternCache.Store(tag, re)
	return re
}

// Partial returns a view of the schema that validates only fields present
// in the input, skipping required checks and defaults. Useful for
// PATCH-style updates.
func (s *Schema) Partial() *Schema {
	return &Schema{typ: s.typ, partial: true}
}

// Type returns the prototype struct type.
func (s *Schema) Type() reflect.Type { return s.typ }

// Validate checks data against the schema and returns the typed value on
// success, or the field errors in order of first detection. data is either
// a map of raw values (decoded JSON, query parameters) or an already-typed
// value from a previous Validate call; re-validation is idempotent and
// never re-coerces. Malformed data never panics; a nil Schema does.
func (s *Schema) Validate(data any) (any, []ValidationError) {
	if s == nil || s.typ == nil {
		panic(ErrNilSchema)
	}
	if data == nil {
		data = map[string]any{}
	}

	// Already-typed data: constraints only, value passes through untouched.
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type() == s.typ {
		var errs []ValidationError
		s.checkStruct(rv.Elem(), "", &errs)
		if len(errs) > 0 {
			return nil, errs
		}
		return data, nil
	}
	if rv.IsValid() && rv.Type() == s.typ {
		var errs []ValidationError
		s.checkStruct(rv, "", &errs)
		if len(errs) > 0 {
			return nil, errs
		}
		return data, nil
	}

	m, ok := data.(map[string]any)
	if !ok {
		return nil, []ValidationError{{Field: "", Message: "must be an object", Value: data}}
	}

	out := reflect.New(s.typ)
	var errs []ValidationError
	s.bindStruct(out.Elem(), m, "", &errs)
	if len(errs) > 0 {
		return nil, errs
	}
	return out.Interface(), nil
}

// ValidateOrError wraps Validate, converting field errors into a
// *ValidationFailure (HTTP 422).
func (s *Schema) ValidateOrError(data any) (any, error) {
	v, errs := s.Validate(data)
	if len(errs) > 0 {
		return nil, &ValidationFailure{Errors: errs}
	}
	return v, nil
}

// bindStruct populates rv from data field by field, in declaration order.
func (s *Schema) bindStruct(rv reflect.Value, data map[string]any, prefix string, errs *[]ValidationError) {
	t := rv.Type()

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		name := jsonFieldName(f)
		if name == "-" {
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		field := rv.Field(i)
		raw, present := data[name]

		if !present || raw == nil {
			// Partial mode leaves absent fields untouched: injecting a
			// default would overwrite the caller's stored value.
			if def := f.Tag.Get("default"); def != "" && !s.partial {
				if err := coerceString(field, def); err != nil {
					*errs = append(*errs, ValidationError{Field: path, Message: err.Error(), Value: def})
					continue
				}
				checkFieldConstraints(f, field, path, errs)
				continue
			}
			if f.Tag.Get("required") == "true" && !s.partial {
				*errs = append(*errs, ValidationError{Field: path, Message: "is required"})
			}
			continue
		}

		// Nested objects recurse with a dotted path.
		if field.Kind() == reflect.Struct && f.Type != reflect.TypeFor[time.Time]() {
			sub, ok := raw.(map[string]any)
			if !ok {
				*errs = append(*errs, ValidationError{Field: path, Message: "must be an object", Value: raw})
				continue
			}
			s.bindStruct(field, sub, path, errs)
			continue
		}

		if err := coerceValue(field, raw); err != nil {
			*errs = append(*errs, ValidationError{Field: path, Message: err.Error(), Value: raw})
			continue
		}

		checkFieldConstraints(f, field, path, errs)
	}
}

// checkStruct re-checks constraints on an already-typed value.
func (s *Schema) checkStruct(rv reflect.Value, prefix string, errs *[]ValidationError) {
	t := rv.Type()

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		name := jsonFieldName(f)
		if name == "-" {
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		field := rv.Field(i)

		if field.Kind() == reflect.Struct && f.Type != reflect.TypeFor[time.Time]() {
			s.checkStruct(field, path, errs)
			continue
		}

		checkFieldConstraints(f, field, path, errs)
	}
}

// coerceValue assigns a raw decoded value to a field, coercing where the
// wire representation differs from the schema type. Numeric strings from
// query parameters and JSON numbers into integer fields both coerce.
func coerceValue(field reflect.Value, raw any) error {
	if str, ok := raw.(string); ok && field.Kind() != reflect.String && field.Kind() != reflect.Interface {
		return coerceString(field, str)
	}

	//exhaustive:ignore
	switch field.Kind() {
	case reflect.String:
		str, ok := raw.(string)
		if !ok {
			return errors.New("must be a string")
		}
		field.SetString(str)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return errors.New("must be a boolean")
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := raw.(type) {
		case float64:
			if n != math.Trunc(n) {
				return errors.New("must be an integer")
			}
			field.SetInt(int64(n))
		case int:
			field.SetInt(int64(n))
		case int64:
			field.SetInt(n)
		default:
			return errors.New("must be an integer")
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch n := raw.(type) {
		case float64:
			if n != math.Trunc(n) || n < 0 {
				return errors.New("must be a non-negative integer")
			}
			field.SetUint(uint64(n))
		case int:
			if n < 0 {
				return errors.New("must be a non-negative integer")
			}
			field.SetUint(uint64(n))
		default:
			return errors.New("must be a non-negative integer")
		}
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			field.SetFloat(n)
		case int:
			field.SetFloat(float64(n))
		default:
			return errors.New("must be a number")
		}
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok {
			return errors.New("must be an array")
		}
		out := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			if err := coerceValue(out.Index(i), item); err != nil {
				return fmt.Errorf("element %d %s", i, err)
			}
		}
		field.Set(out)
	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", field.Type().Key())
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return errors.New("must be an object")
		}
		out := reflect.MakeMapWithSize(field.Type(), len(m))
		for k, item := range m {
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := coerceValue(elem, item); err != nil {
				return fmt.Errorf("key %q %s", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k), elem)
		}
		field.Set(out)
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if err := coerceValue(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
	case reflect.Interface:
		field.Set(reflect.ValueOf(raw))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// coerceString sets a field from its string form: numeric strings, bools,
// durations, and RFC 3339 timestamps all coerce transparently.
func coerceString(field reflect.Value, value string) error {
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := coerceString(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if field.Type() == reflect.TypeFor[time.Duration]() {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.New("must be a duration")
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}
	if field.Type() == reflect.TypeFor[time.Time]() {
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return errors.New("must be an RFC 3339 timestamp")
		}
		field.Set(reflect.ValueOf(ts))
		return nil
	}

	//exhaustive:ignore
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.New("must be an integer")
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.New("must be a non-negative integer")
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.New("must be a number")
		}
		field.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.New("must be a boolean")
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("cannot coerce %q into %s", value, field.Type())
	}
	return nil
}

// checkFieldConstraints checks all constraint tags on a single field.
func checkFieldConstraints(f reflect.StructField, fv reflect.Value, path string, errs *[]ValidationError) {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return
		}
		fv = fv.Elem()
	}

	// minLength / maxLength / pattern / enum apply to strings.
	if fv.Kind() == reflect.String {
		val := fv.String()
		if tag := f.Tag.Get("minLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(val) < n {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must be at least %d characters", n),
					Value:   val,
				})
			}
		}
		if tag := f.Tag.Get("maxLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(val) > n {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must be at most %d characters", n),
					Value:   val,
				})
			}
		}
		if tag := f.Tag.Get("pattern"); tag != "" {
			if !compiledPattern(tag).MatchString(val) {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must match pattern %s", tag),
					Value:   val,
				})
			}
		}
		if tag := f.Tag.Get("enum"); tag != "" {
			allowed := strings.Split(tag, ",")
			found := false
			for _, a := range allowed {
				if a == val {
					found = true
					break
				}
			}
			if !found {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must be one of [%s]", tag),
					Value:   val,
				})
			}
		}
	}

	// minimum / maximum apply to numeric types.
	if isNumericKind(fv.Kind()) {
		floatVal := toFloat64(fv)
		if tag := f.Tag.Get("minimum"); tag != "" {
			if lower, err := strconv.ParseFloat(tag, 64); err == nil && floatVal < lower {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must be at least %s", tag),
					Value:   floatVal,
				})
			}
		}
		if tag := f.Tag.Get("maximum"); tag != "" {
			if upper, err := strconv.ParseFloat(tag, 64); err == nil && floatVal > upper {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must be at most %s", tag),
					Value:   floatVal,
				})
			}
		}
	}

	// minItems / maxItems apply to slices.
	if fv.Kind() == reflect.Slice {
		length := fv.Len()
		if tag := f.Tag.Get("minItems"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && length < n {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must have at least %d items", n),
					Value:   length,
				})
			}
		}
		if tag := f.Tag.Get("maxItems"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && length > n {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("must have at most %d items", n),
					Value:   length,
				})
			}
		}
	}
}

func isNumericKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toFloat64(v reflect.Value) float64 {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default: // float32, float64
		return v.Float()
	}
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}
