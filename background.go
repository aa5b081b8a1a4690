package api

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Defaults for background task execution. The warn threshold exists to
// surface CPU-bound work smuggled into a mechanism meant for light I/O.
const (
	DefaultTaskTimeout   = 30 * time.Second
	DefaultWarnThreshold = 100 * time.Millisecond
	DefaultMaxConcurrent = 64
)

// Task is a fire-and-forget action. The context carries the task's
// deadline; cooperative tasks should honor it.
type Task func(ctx context.Context) error

// Runner executes background tasks isolated from the response path. Tasks
// race a timeout, run concurrently up to a bound, and settle exactly once.
// A task failure is terminal for that task only and can never reach an
// HTTP response.
type Runner struct {
	logger  *slog.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	warn    time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger for task failures and slow-task warnings.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithTaskDefaults overrides the default timeout and warn threshold.
func WithTaskDefaults(timeout, warn time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
		if warn > 0 {
			r.warn = warn
		}
	}
}

// WithMaxConcurrent bounds how many tasks run at once.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = make(chan struct{}, n)
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:  slog.Default(),
		sem:     make(chan struct{}, DefaultMaxConcurrent),
		timeout: DefaultTaskTimeout,
		warn:    DefaultWarnThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TaskOption configures a single scheduled task.
type TaskOption func(*taskConfig)

type taskConfig struct {
	name       string
	timeout    time.Duration
	onComplete func()
	onError    func(error)
}

// TaskName names the task in logs.
func TaskName(name string) TaskOption {
	return func(c *taskConfig) {
		c.name = name
	}
}

// TaskTimeout overrides the runner's default timeout for this task.
func TaskTimeout(d time.Duration) TaskOption {
	return func(c *taskConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// OnComplete is invoked after the task succeeds.
func OnComplete(f func()) TaskOption {
	return func(c *taskConfig) {
		c.onComplete = f
	}
}

// OnError is invoked after the task fails or times out.
func OnError(f func(error)) TaskOption {
	return func(c *taskConfig) {
		c.onError = f
	}
}

// Schedule submits a task and returns immediately. The task is never
// awaited by the caller. Tasks scheduled within one request run
// concurrently with each other with no ordering guarantee.
func (r *Runner) Schedule(action Task, opts ...TaskOption) {
	cfg := taskConfig{
		name:    "anonymous",
		timeout: r.timeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task callback panicked",
					slog.String("task", cfg.name),
					slog.Any("panic", rec),
				)
			}
		}()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		r.execute(action, cfg)
	}()
}

// execute runs one task against its timeout and settles it.
func (r *Runner) execute(action Task, cfg taskConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
			}
		}()
		done <- action(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// Abandoned, not killed: the goroutine may still settle later but
		// its result is ignored.
		err = fmt.Errorf("timed out after %s", cfg.timeout)
	}

	elapsed := time.Since(start)

	if err != nil {
		r.logger.Error("background task failed",
			slog.String("task", cfg.name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		if cfg.onError != nil {
			cfg.onError(err)
		}
		return
	}

	if elapsed > r.warn {
		r.logger.Warn("slow background task",
			slog.String("task", cfg.name),
			slog.Duration("elapsed", elapsed),
			slog.Duration("threshold", r.warn),
		)
	}

	if cfg.onComplete != nil {
		cfg.onComplete()
	}
}

// Wait blocks until all scheduled tasks settle or ctx expires. For
// graceful shutdown; serving paths never call it.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
