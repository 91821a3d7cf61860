package statemachine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each test uses its own machine name, so label sets never overlap and the
// global metrics need no reset.
func TestDispatchMetrics(t *testing.T) {
	t.Parallel()

	const name = "metrics-dispatch"

	m := newMachine(t, counterSchema(name), Initial{State: "counting", Context: Context{"count": 6}})

	m.Send("increment")
	m.Send("increment")
	m.Send("reset")
	m.Send("increment")
	m.Send("decrement")

	assert.InDelta(t, 2, testutil.ToFloat64(eventsTotal.WithLabelValues(name, "counting", "increment", "updated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(name, "counting", "increment", "transitioned")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(name, "maxedOut", "reset", "transitioned")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(name, "counting", "decrement", "updated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(name, "counting", "maxedOut")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(transitionsTotal.WithLabelValues(name, "maxedOut", "counting")), 0)
}

func TestUnhandledMetrics(t *testing.T) {
	t.Parallel()

	const name = "metrics-unhandled"

	m := newMachine(t, counterSchema(name), Initial{State: "counting"})

	m.Send("reset")

	assert.InDelta(t, 1, testutil.ToFloat64(eventsTotal.WithLabelValues(name, "counting", "reset", "unhandled")), 0)
}

func TestEffectMetrics(t *testing.T) {
	t.Parallel()

	const name = "metrics-effects"

	schema := &Schema{
		Name: name,
		States: map[string]State{
			"a": {
				On: map[string]Handler{"next": func(*Scope) Transition { return Goto("b") }},
				Entry: func(context.Context, Entry) Cleanup {
					return nil
				},
			},
			"b": {
				On: map[string]Handler{"back": func(*Scope) Transition { return Goto("a") }},
				Exit: func(context.Context, Exit) Cleanup {
					return nil
				},
			},
		},
	}

	def, err := Define(schema)
	require.NoError(t, err)

	m, err := def.New(context.Background(), "a")
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(instancesActive.WithLabelValues(name, def.Fingerprint())), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(runningEffects.WithLabelValues(name)), 0)

	m.Send("next")
	assert.InDelta(t, 0, testutil.ToFloat64(runningEffects.WithLabelValues(name)), 0)

	m.Send("back")
	assert.InDelta(t, 2, testutil.ToFloat64(effectsStartedTotal.WithLabelValues(name, kindEntry)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(effectsStartedTotal.WithLabelValues(name, kindExit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(effectsStoppedTotal.WithLabelValues(name, kindExit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(runningEffects.WithLabelValues(name)), 0)

	require.NoError(t, m.Close(context.Background()))
	assert.InDelta(t, 0, testutil.ToFloat64(runningEffects.WithLabelValues(name)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(instancesActive.WithLabelValues(name, def.Fingerprint())), 0)
}

func TestSanitization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
		fn       func(string) string
	}{
		{"empty machine", "", "unnamed", sanitizeMachine},
		{"machine", "counter", "counter", sanitizeMachine},
		{"empty event", "", "none", sanitizeEvent},
		{"event", "increment", "increment", sanitizeEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.fn(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := fingerprint(counterSchema("one"))
	b := fingerprint(counterSchema("two"))
	assert.Len(t, a, 8)
	assert.Equal(t, a, b, "fingerprint depends on shape, not name")

	other := counterSchema("one")
	delete(other.States["counting"].On, "decrement")
	assert.NotEqual(t, a, fingerprint(other))
}
