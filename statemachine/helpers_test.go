package statemachine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder collects labels from effects and cleanups, possibly running on
// other goroutines.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, label)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	copy(out, r.events)

	return out
}

func (r *recorder) count(label string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, e := range r.events {
		if e == label {
			n++
		}
	}

	return n
}

// spyLogger records the diagnostics a machine reports.
type spyLogger struct {
	NopLogger

	mu         sync.Mutex
	unhandled  []string
	violations []error
	committed  []string
}

func (l *spyLogger) EventUnhandled(_ context.Context, _, _, event string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unhandled = append(l.unhandled, event)
}

func (l *spyLogger) SchemaViolation(_ context.Context, _, _, _ string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.violations = append(l.violations, err)
}

func (l *spyLogger) TransitionCommitted(_ context.Context, _, from, to, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.committed = append(l.committed, from+"->"+to)
}

func (l *spyLogger) Unhandled() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.unhandled...)
}

func (l *spyLogger) Violations() []error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]error(nil), l.violations...)
}

func (l *spyLogger) Committed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.committed...)
}

// counterSchema is the capped counter: increment below 7, otherwise move to
// maxedOut, whose reset starts over from zero.
func counterSchema(name string) *Schema {
	reset, err := Literal(map[string]any{
		"state":   "counting",
		"context": map[string]any{"count": 0},
	})
	if err != nil {
		panic(err)
	}

	return &Schema{
		Name: name,
		States: map[string]State{
			"counting": {
				On: map[string]Handler{
					"increment": Dynamic(func(s *Scope) any {
						count, _ := s.Context.GetInt("count")
						if count < 7 {
							return Context{"count": count + 1}
						}

						return "maxedOut"
					}),
					"decrement": func(s *Scope) Transition {
						count, _ := s.Context.GetInt("count")

						return Update(s.Context.With("count", count-1))
					},
				},
			},
			"maxedOut": {
				On: map[string]Handler{
					"reset": reset,
				},
			},
		},
	}
}

func newMachine(t *testing.T, schema *Schema, initial any, opts ...Option) *Machine {
	t.Helper()

	m, err := New(context.Background(), schema, initial, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})

	return m
}
