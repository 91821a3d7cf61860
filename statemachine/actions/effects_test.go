package actions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var errTemporary = errors.New("temporary error")

func TestAfter(t *testing.T) {
	t.Parallel()

	c := NewCapture("timeout")
	c.Start(t, After(5*time.Millisecond, "timeout", "late"))

	require.True(t, c.WaitFor(1, time.Second))
	assert.Equal(t, []statemachine.Event{{Type: "timeout", Payload: "late", HasPayload: true}}, c.Events())
}

func TestAfterStoppedEarly(t *testing.T) {
	t.Parallel()

	c := NewCapture("timeout")
	stop := c.Start(t, After(50*time.Millisecond, "timeout"))
	stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, c.Len())
}

func TestEvery(t *testing.T) {
	t.Parallel()

	c := NewCapture("tick")
	stop := c.Start(t, Every(2*time.Millisecond, "tick"))

	require.True(t, c.WaitFor(3, time.Second))
	stop()

	time.Sleep(10 * time.Millisecond)
	settled := c.Len()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, c.Len(), "no ticks after stop")
}

func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		c := NewCapture("done", "failed")
		c.Start(t, Go(func(context.Context) (any, error) { return 42, nil }, "done", "failed"))

		require.True(t, c.WaitFor(1, time.Second))
		assert.Equal(t, []statemachine.Event{{Type: "done", Payload: 42, HasPayload: true}}, c.Events())
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		c := NewCapture("done", "failed")
		c.Start(t, Go(func(context.Context) (any, error) { return nil, errTemporary }, "done", "failed"))

		require.True(t, c.WaitFor(1, time.Second))
		assert.Equal(t, []string{"failed"}, c.Names())
		assert.Equal(t, errTemporary, c.Events()[0].Payload)
	})

	t.Run("nil result has no payload", func(t *testing.T) {
		t.Parallel()

		c := NewCapture("done")
		c.Start(t, Go(func(context.Context) (any, error) { return nil, nil }, "done", ""))

		require.True(t, c.WaitFor(1, time.Second))
		assert.False(t, c.Events()[0].HasPayload)
	})

	t.Run("stopped", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{})
		finished := make(chan struct{})

		c := NewCapture("done", "failed")
		stop := c.Start(t, Go(func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			defer close(finished)

			return nil, ctx.Err()
		}, "done", "failed"))

		<-started
		stop()
		<-finished

		time.Sleep(5 * time.Millisecond)
		assert.Zero(t, c.Len())
	})
}

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("eventually succeeds", func(t *testing.T) {
		t.Parallel()

		calls := atomic.NewInt32(0)

		c := NewCapture("done", "failed")
		c.Start(t, Retry(func(context.Context) (any, error) {
			if calls.Inc() < 3 {
				return nil, errTemporary
			}

			return "ok", nil
		}, Backoff{MaxAttempts: 5, InitialDelay: time.Millisecond}, "done", "failed"))

		require.True(t, c.WaitFor(1, time.Second))
		assert.Equal(t, []string{"done"}, c.Names())
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		t.Parallel()

		calls := atomic.NewInt32(0)

		c := NewCapture("done", "failed")
		c.Start(t, Retry(func(context.Context) (any, error) {
			calls.Inc()

			return nil, errTemporary
		}, Backoff{MaxAttempts: 2, InitialDelay: time.Millisecond}, "done", "failed"))

		require.True(t, c.WaitFor(1, time.Second))

		err, ok := c.Events()[0].Payload.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, ErrActionFailedAfterRetries)
		require.ErrorIs(t, err, errTemporary)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("not retryable", func(t *testing.T) {
		t.Parallel()

		calls := atomic.NewInt32(0)

		c := NewCapture("failed")
		c.Start(t, Retry(func(context.Context) (any, error) {
			calls.Inc()

			return nil, errTemporary
		}, Backoff{
			MaxAttempts:  5,
			InitialDelay: time.Millisecond,
			RetryIf:      func(error) bool { return false },
		}, "", "failed"))

		require.True(t, c.WaitFor(1, time.Second))
		assert.Equal(t, errTemporary, c.Events()[0].Payload)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	b := Backoff{}.withDefaults()
	assert.Equal(t, 3, b.MaxAttempts)
	assert.Equal(t, time.Second, b.InitialDelay)
	assert.Equal(t, 30*time.Second, b.MaxDelay)
	assert.InDelta(t, 2.0, b.BackoffMultiplier, 0)
}

type order struct {
	mu    sync.Mutex
	steps []string
}

func (o *order) effect(name string) statemachine.Effect {
	return func(context.Context, *statemachine.Dispatcher) statemachine.Cleanup {
		o.add(name)

		return func() { o.add(name + " cleanup") }
	}
}

func (o *order) add(step string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.steps = append(o.steps, step)
}

func (o *order) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.steps...)
}

func TestSequence(t *testing.T) {
	t.Parallel()

	var o order

	c := NewCapture()
	stop := c.Start(t, Sequence(o.effect("a"), nil, o.effect("b")))
	assert.Equal(t, []string{"a", "b"}, o.list())

	stop()
	assert.Equal(t, []string{"a", "b", "b cleanup", "a cleanup"}, o.list())
}

func TestParallel(t *testing.T) {
	t.Parallel()

	var o order

	c := NewCapture()
	stop := c.Start(t, Parallel(o.effect("a"), o.effect("b"), o.effect("c")))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, o.list())

	stop()
	assert.Equal(t, []string{"c cleanup", "b cleanup", "a cleanup"}, o.list()[3:])

	assert.Nil(t, Parallel()(context.Background(), c.Dispatcher()))
}

func TestLog(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	stop := c.Start(t, Log(slogt.New(t), slog.LevelInfo, "polling", "interval", "5s"))

	assert.NotPanics(t, stop)
}

func TestEnteringAndLeaving(t *testing.T) {
	t.Parallel()

	var o order

	def, err := statemachine.NewBuilder("hooks").
		State("idle", func(s *statemachine.StateBuilder) {
			s.On("start", "running")
		}).
		State("running", func(s *statemachine.StateBuilder) {
			s.OnEntry(Entering(o.effect("enter")))
			s.OnExit(Leaving(o.effect("leave")))
			s.On("stop", "idle")
		}).
		Build()
	require.NoError(t, err)

	m, err := def.New(context.Background(), "idle")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	m.Send("start")
	m.Send("stop")

	assert.Equal(t, []string{"enter", "enter cleanup", "leave", "leave cleanup"}, o.list())
}

func TestAfterDrivesMachine(t *testing.T) {
	t.Parallel()

	def, err := statemachine.NewBuilder("timer").
		State("waiting", func(s *statemachine.StateBuilder) {
			s.OnEntry(Entering(After(2*time.Millisecond, "timeout")))
			s.On("timeout", "expired")
		}).
		State("expired").
		Build()
	require.NoError(t, err)

	m, err := def.New(context.Background(), "waiting")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	require.Eventually(t, func() bool { return m.State() == "expired" }, time.Second, time.Millisecond)
	assert.Zero(t, m.Effects())
}
