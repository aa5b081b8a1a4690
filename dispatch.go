package api

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
)

// ErrorFormatter turns a failure into the response actually sent.
type ErrorFormatter func(ctx *Context, err error) Response

// Dispatcher maps a raised failure to a structured response using
// most-specific-type matching. Rules are registered per concrete error
// type; hierarchies are declared with Extends at registration so
// specificity is computed once, not introspected per dispatch.
//
// Lookup runs in two phases: an exact match on the error's concrete type
// wins outright; otherwise every rule matching through the error's wrap
// chain competes and the one with the deepest declared ancestry wins.
// Unmatched errors fall back to the generic 500 formatter.
type Dispatcher struct {
	mu         sync.RWMutex
	rules      []*errorRule
	byType     map[reflect.Type]*errorRule
	generic    ErrorFormatter
	logger     *slog.Logger
	production bool
}

type errorRule struct {
	typ     reflect.Type
	matches func(error) bool
	depth   int
	format  ErrorFormatter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used by the generic fallback.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithProductionMode withholds internal error detail from responses.
func WithProductionMode(on bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.production = on
	}
}

// WithGenericFormatter replaces the fallback formatter for unmatched errors.
func WithGenericFormatter(f ErrorFormatter) DispatcherOption {
	return func(d *Dispatcher) {
		d.generic = f
	}
}

// NewDispatcher creates a Dispatcher with the built-in rules for
// *HTTPError and *ValidationFailure installed.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		byType: make(map[reflect.Type]*errorRule),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	On[*HTTPError](d, formatHTTPError)
	On[*ValidationFailure](d, formatValidationFailure)

	return d
}

// RuleOption configures a single error rule.
type RuleOption func(*ruleConfig)

type ruleConfig struct {
	parent reflect.Type
}

// Extends declares that the rule's error type derives from Parent, making
// it more specific than Parent's rule during dispatch. Derived error types
// are expected to expose the ancestor through their Unwrap chain.
func Extends[Parent error]() RuleOption {
	return func(c *ruleConfig) {
		c.parent = reflect.TypeFor[Parent]()
	}
}

// On registers a formatter for the error type E. Registering E again
// replaces the previous rule. Extensible by application code at startup;
// rules are never removed outside tests (use a fresh Dispatcher there).
func On[E error](d *Dispatcher, format ErrorFormatter, opts ...RuleOption) {
	var cfg ruleConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeFor[E]()

	d.mu.Lock()
	defer d.mu.Unlock()

	depth := 0
	if cfg.parent != nil {
		depth = 1
		if parent, ok := d.byType[cfg.parent]; ok {
			depth = parent.depth + 1
		}
	}

	rule := &errorRule{
		typ: t,
		matches: func(err error) bool {
			var target E
			return errors.As(err, &target)
		},
		depth:  depth,
		format: format,
	}

	// Dispatch snapshots the slice header outside the lock, so mutations
	// must replace the slice rather than write into the shared array.
	rules := make([]*errorRule, len(d.rules), len(d.rules)+1)
	copy(rules, d.rules)
	if prev, ok := d.byType[t]; ok {
		for i, r := range rules {
			if r == prev {
				rules[i] = rule
				break
			}
		}
	} else {
		rules = append(rules, rule)
	}
	d.rules = rules
	d.byType[t] = rule
}

// Dispatch maps err to a response. It never fails: a panicking formatter
// is a framework bug and degrades to the generic response.
func (d *Dispatcher) Dispatch(ctx *Context, err error) (resp Response) {
	if err == nil {
		err = errors.New("unknown error")
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("error formatter panicked",
				slog.Any("panic", rec),
				slog.String("request_id", requestID(ctx)),
			)
			resp = d.fallback(ctx, err)
		}
	}()

	d.mu.RLock()
	exact, hasExact := d.byType[reflect.TypeOf(err)]
	rules := d.rules
	d.mu.RUnlock()

	if hasExact {
		return exact.format(ctx, err)
	}

	var best *errorRule
	for _, rule := range rules {
		if !rule.matches(err) {
			continue
		}
		if best == nil || rule.depth > best.depth {
			best = rule
		}
	}
	if best != nil {
		return best.format(ctx, err)
	}

	return d.fallback(ctx, err)
}

// fallback is the generic handler: 500, logged for operators, message
// withheld in production mode.
func (d *Dispatcher) fallback(ctx *Context, err error) Response {
	d.logger.Error("unhandled error",
		slog.String("error", err.Error()),
		slog.String("method", method(ctx)),
		slog.String("path", path(ctx)),
		slog.String("request_id", requestID(ctx)),
	)

	if d.generic != nil {
		return d.generic(ctx, err)
	}

	message := err.Error()
	if d.production {
		message = http.StatusText(http.StatusInternalServerError)
	}
	return Response{
		Status: http.StatusInternalServerError,
		Body:   map[string]any{"error": message},
	}
}

func formatHTTPError(_ *Context, err error) Response {
	var he *HTTPError
	if !errors.As(err, &he) {
		return Response{
			Status: http.StatusInternalServerError,
			Body:   map[string]any{"error": http.StatusText(http.StatusInternalServerError)},
		}
	}
	return Response{
		Status:  he.Status,
		Headers: he.Headers.Clone(),
		Body:    map[string]any{"error": he.Message},
	}
}

func formatValidationFailure(_ *Context, err error) Response {
	var vf *ValidationFailure
	if !errors.As(err, &vf) {
		return Response{
			Status: http.StatusInternalServerError,
			Body:   map[string]any{"error": http.StatusText(http.StatusInternalServerError)},
		}
	}
	return Response{
		Status: vf.StatusCode(),
		Body: map[string]any{
			"error":  "validation failed",
			"errors": vf.Errors,
		},
	}
}

func method(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.Method
}

func path(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.Path
}

func requestID(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.ID
}
