package api_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriq/api"
)

func quietRunner(opts ...api.RunnerOption) *api.Runner {
	opts = append([]api.RunnerOption{api.WithRunnerLogger(slog.New(slog.DiscardHandler))}, opts...)
	return api.NewRunner(opts...)
}

func TestRunner_success_invokes_on_complete(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	done := make(chan struct{})

	r.Schedule(func(_ context.Context) error {
		return nil
	}, api.TaskName("ok"), api.OnComplete(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestRunner_failure_invokes_on_error(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	errCh := make(chan error, 1)

	r.Schedule(func(_ context.Context) error {
		return errors.New("boom")
	}, api.OnError(func(err error) { errCh <- err }))

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("onError never invoked")
	}
}

func TestRunner_panic_is_a_task_error(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	errCh := make(chan error, 1)

	r.Schedule(func(_ context.Context) error {
		panic("task bug")
	}, api.OnError(func(err error) { errCh <- err }))

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "panic")
	case <-time.After(2 * time.Second):
		t.Fatal("panic not surfaced as task error")
	}
}

func TestRunner_timeout_abandons_task(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	errCh := make(chan error, 1)

	r.Schedule(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	}, api.TaskTimeout(20*time.Millisecond), api.OnError(func(err error) { errCh <- err }))

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestRunner_slow_task_warning(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := api.NewRunner(
		api.WithRunnerLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		api.WithTaskDefaults(time.Second, time.Millisecond),
	)
	done := make(chan struct{})

	r.Schedule(func(_ context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}, api.TaskName("sleepy"), api.OnComplete(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}

	// The warn log is written before onComplete fires.
	assert.Contains(t, buf.String(), "slow background task")
	assert.Contains(t, buf.String(), "sleepy")
}

func TestRunner_tasks_run_concurrently(t *testing.T) {
	t.Parallel()

	r := quietRunner()

	const n = 8
	gate := make(chan struct{})
	var arrived atomic.Int64
	done := make(chan struct{}, n)

	// Each task blocks on the gate; the gate opens only once all have
	// started, so completion requires genuine concurrency.
	for range n {
		r.Schedule(func(_ context.Context) error {
			if arrived.Add(1) == n {
				close(gate)
			}
			<-gate
			return nil
		}, api.OnComplete(func() { done <- struct{}{} }))
	}

	for range n {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks deadlocked waiting on each other")
		}
	}
}

func TestRunner_wait_drains(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	var finished atomic.Bool

	r.Schedule(func(_ context.Context) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, r.Wait(ctx))
	assert.True(t, finished.Load())
}

func TestRunner_wait_respects_context(t *testing.T) {
	t.Parallel()

	r := quietRunner()
	release := make(chan struct{})
	defer close(release)

	r.Schedule(func(_ context.Context) error {
		<-release
		return nil
	}, api.TaskTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}
