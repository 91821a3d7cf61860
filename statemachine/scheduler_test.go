package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingTask(rec *recorder, name string) Task {
	return func(context.Context) Cleanup {
		rec.add(name)

		return func() { rec.add(name + " cleanup") }
	}
}

func TestQueueRunsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var rec recorder

	q := NewQueue()
	first := q.Schedule("first", recordingTask(&rec, "first"))
	q.Schedule("second", recordingTask(&rec, "second"))
	q.Stop(first)

	assert.Empty(t, rec.list())

	q.Flush(context.Background())
	assert.Equal(t, []string{"first", "second", "first cleanup"}, rec.list())
	assert.Equal(t, 1, q.Live())
}

func TestQueueStopSemantics(t *testing.T) {
	t.Parallel()

	t.Run("stop twice cleans up once", func(t *testing.T) {
		t.Parallel()

		var rec recorder

		q := NewQueue()
		id := q.Schedule("fx", recordingTask(&rec, "fx"))
		q.Flush(context.Background())
		q.Stop(id)
		q.Stop(id)
		q.Flush(context.Background())

		assert.Equal(t, []string{"fx", "fx cleanup"}, rec.list())
	})

	t.Run("cancel pending never runs", func(t *testing.T) {
		t.Parallel()

		var rec recorder

		q := NewQueue()
		id := q.Schedule("fx", recordingTask(&rec, "fx"))
		q.Cancel(id)
		q.Flush(context.Background())

		assert.Empty(t, rec.list())
		assert.Equal(t, 0, q.Live())
	})

	t.Run("cancel after run cleans up", func(t *testing.T) {
		t.Parallel()

		var rec recorder

		q := NewQueue()
		id := q.Schedule("fx", recordingTask(&rec, "fx"))
		q.Flush(context.Background())
		q.Cancel(id)
		q.Flush(context.Background())

		assert.Equal(t, []string{"fx", "fx cleanup"}, rec.list())
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		q := NewQueue()
		q.Stop(EffectID(99))
		q.Cancel(EffectID(99))
		q.Flush(context.Background())

		assert.Equal(t, 0, q.Live())
	})

	t.Run("nil cleanup", func(t *testing.T) {
		t.Parallel()

		q := NewQueue()
		id := q.Schedule("fx", func(context.Context) Cleanup { return nil })
		q.Flush(context.Background())
		q.Stop(id)

		assert.NotPanics(t, func() { q.Flush(context.Background()) })
	})
}

func TestQueueStopQueuedAfterSchedule(t *testing.T) {
	t.Parallel()

	var rec recorder

	q := NewQueue()
	id := q.Schedule("exit", recordingTask(&rec, "exit"))
	q.Stop(id)
	q.Flush(context.Background())

	assert.Equal(t, []string{"exit", "exit cleanup"}, rec.list())
	assert.Equal(t, 0, q.Live())
}

func TestQueueEffectContextCancelledOnStop(t *testing.T) {
	t.Parallel()

	var effectCtx context.Context

	parent, cancel := context.WithCancel(context.Background())

	q := NewQueue()
	id := q.Schedule("fx", func(ctx context.Context) Cleanup {
		effectCtx = ctx

		return nil
	})
	q.Flush(parent)

	cancel()
	require.NoError(t, effectCtx.Err(), "flush cancellation must not reach effects")

	q.Stop(id)
	q.Flush(context.Background())
	assert.ErrorIs(t, effectCtx.Err(), context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	var rec recorder

	q := NewQueue()
	q.Schedule("a", recordingTask(&rec, "a"))
	q.Schedule("b", recordingTask(&rec, "b"))
	q.Flush(context.Background())
	q.Schedule("c", recordingTask(&rec, "c"))

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, []string{"a", "b", "a cleanup", "b cleanup"}, rec.list())

	assert.Equal(t, EffectID(0), q.Schedule("late", recordingTask(&rec, "late")))
	q.Flush(context.Background())
	assert.Equal(t, 0, q.Live())
}

func TestPoolSchedulerKeepsOrder(t *testing.T) {
	t.Parallel()

	var rec recorder

	p := NewPoolScheduler()

	first := p.Schedule("first", func(context.Context) Cleanup {
		time.Sleep(10 * time.Millisecond)
		rec.add("first")

		return func() { rec.add("first cleanup") }
	})
	p.Flush(context.Background())

	p.Schedule("second", recordingTask(&rec, "second"))
	p.Stop(first)
	p.Flush(context.Background())

	require.Eventually(t, func() bool {
		return rec.count("first cleanup") == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, []string{"first", "second", "first cleanup", "second cleanup"}, rec.list())

	require.NoError(t, p.Close(context.Background()))
	p.Flush(context.Background())
}

func TestPoolSchedulerCloseWithdrawsPending(t *testing.T) {
	t.Parallel()

	var rec recorder

	p := NewPoolScheduler()
	p.Schedule("never", recordingTask(&rec, "never"))

	require.NoError(t, p.Close(context.Background()))
	assert.Empty(t, rec.list())
	assert.Equal(t, 0, p.Live())
}
