// Package testing provides testing utilities for state machines: a machine
// wrapper that records every event it reduces, matchers over that record,
// ready-made fixtures and scenario tables.
//
//nolint:varnamelen // short names idiomatic
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/stretchr/testify/require"
)

// TestMachine wraps a Machine with an execution trace and assertions.
type TestMachine struct {
	*statemachine.Machine

	t          *testing.T
	mu         sync.Mutex
	trace      []TraceEntry
	assertions []Assertion
}

// TraceEntry records one reduced event. The first entry of every trace is
// the start of the machine, with an empty Event.
type TraceEntry struct {
	Timestamp time.Time
	Event     string
	From      string
	To        string
	Outcome   statemachine.Outcome
	Error     error
	Context   statemachine.Context // snapshot after the event
}

// Assertion represents a test assertion.
type Assertion struct {
	Name   string
	Passed bool
	Error  error
}

// NewTestMachine starts a machine from def and records everything it does.
// The machine is closed when the test ends.
func NewTestMachine(
	t *testing.T, def *statemachine.Definition, initial any, opts ...statemachine.Option,
) *TestMachine {
	t.Helper()

	init, err := statemachine.ParseInitial(initial)
	require.NoError(t, err, "invalid initial state")

	tm := &TestMachine{t: t}
	tm.trace = append(tm.trace, TraceEntry{
		Timestamp: time.Now(),
		To:        init.State,
		Outcome:   statemachine.OutcomeTransitioned,
		Context:   init.Context.Clone(),
	})

	opts = append(opts, statemachine.WithHooks(tm.hooks()))

	m, err := def.New(context.Background(), init, opts...)
	require.NoError(t, err, "failed to start machine")

	tm.Machine = m

	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})

	return tm
}

// NewTestMachineFromConfig compiles config with reg (nil for the default
// registry) and starts it in its configured initial state.
func NewTestMachineFromConfig(
	t *testing.T, config *statemachine.Config, reg *statemachine.Registry, opts ...statemachine.Option,
) *TestMachine {
	t.Helper()

	def, err := config.Define(reg)
	require.NoError(t, err, "failed to define machine")

	return NewTestMachine(t, def, config.InitialState(), opts...)
}

func (tm *TestMachine) hooks() statemachine.Hooks {
	return statemachine.Hooks{
		OnCommit: func(_ context.Context, change statemachine.Change) {
			tm.record(TraceEntry{
				Event:   change.Event,
				From:    change.From,
				To:      change.To,
				Outcome: change.Outcome,
				Context: change.Context,
			})
		},
		OnUnhandled: func(_ context.Context, state, event string) {
			tm.record(TraceEntry{Event: event, From: state, To: state, Outcome: statemachine.OutcomeUnhandled})
		},
		OnRejected: func(_ context.Context, state, event string, err error) {
			tm.record(TraceEntry{
				Event:   event,
				From:    state,
				To:      state,
				Outcome: statemachine.OutcomeRejected,
				Error:   err,
			})
		},
	}
}

// record appends entry, carrying the last known context over when the entry
// has none of its own.
func (tm *TestMachine) record(entry TraceEntry) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	entry.Timestamp = time.Now()

	if entry.Context == nil && len(tm.trace) > 0 {
		entry.Context = tm.trace[len(tm.trace)-1].Context
	}

	tm.trace = append(tm.trace, entry)
}

// SendAll sends each event in order, without payload.
func (tm *TestMachine) SendAll(events ...string) {
	for _, event := range events {
		tm.Send(event)
	}
}

// Trace returns a copy of the execution trace.
func (tm *TestMachine) Trace() []TraceEntry {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]TraceEntry, len(tm.trace))
	copy(out, tm.trace)

	return out
}

// Path returns the states the machine entered, in order, starting with the initial one.
func (tm *TestMachine) Path() []string {
	var path []string

	for _, entry := range tm.Trace() {
		if entry.Outcome == statemachine.OutcomeTransitioned {
			path = append(path, entry.To)
		}
	}

	return path
}

// Assertions returns all assertions made.
func (tm *TestMachine) Assertions() []Assertion {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	out := make([]Assertion, len(tm.assertions))
	copy(out, tm.assertions)

	return out
}

func (tm *TestMachine) assert(m Matcher) {
	tm.t.Helper()

	passed, err := m.Match(tm)

	tm.mu.Lock()
	tm.assertions = append(tm.assertions, Assertion{Name: m.Description(), Passed: passed, Error: err})
	tm.mu.Unlock()

	require.True(tm.t, passed, "%s: %v", m.Description(), err)
}

// Expect asserts every matcher against the machine.
func (tm *TestMachine) Expect(matchers ...Matcher) {
	tm.t.Helper()

	for _, m := range matchers {
		tm.assert(m)
	}
}

// AssertStateVisited checks if a state was entered at any point.
func (tm *TestMachine) AssertStateVisited(stateName string) {
	tm.t.Helper()
	tm.assert(StateWasVisited(stateName))
}

// AssertTransitionTaken checks if a specific transition occurred.
func (tm *TestMachine) AssertTransitionTaken(from, to string) {
	tm.t.Helper()
	tm.assert(TransitionWasTaken(from, to))
}

// AssertState checks the current state.
func (tm *TestMachine) AssertState(expected string) {
	tm.t.Helper()
	tm.assert(InState(expected))
}

// AssertContextValue checks a value of the current context.
func (tm *TestMachine) AssertContextValue(key string, expected any) {
	tm.t.Helper()
	tm.assert(ContextContains(key, expected))
}

// AssertEffects checks how many effects belong to the current state.
func (tm *TestMachine) AssertEffects(expected int) {
	tm.t.Helper()

	actual := tm.Effects()
	require.Equal(tm.t, expected, actual, "live effects")

	tm.mu.Lock()
	tm.assertions = append(tm.assertions, Assertion{
		Name:   fmt.Sprintf("%d live effects", expected),
		Passed: true,
	})
	tm.mu.Unlock()
}
