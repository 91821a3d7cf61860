package testing

import (
	"testing"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/stretchr/testify/require"
)

// Step sends one event and then checks the machine.
type Step struct {
	Event   string
	Payload []any
	Expect  []Matcher
}

// TestScenario represents a complete test scenario for a state machine.
type TestScenario struct {
	Name    string
	Schema  *statemachine.Schema
	Options []statemachine.Option
	Initial any
	Steps   []Step
	// Final matchers are checked once every step has run.
	Final []Matcher
}

// RunScenario executes a test scenario and validates results.
func RunScenario(t *testing.T, scenario TestScenario) {
	t.Helper()

	t.Run(scenario.Name, func(t *testing.T) {
		t.Parallel()

		def, err := statemachine.Define(scenario.Schema, scenario.Options...)
		require.NoError(t, err)

		tm := NewTestMachine(t, def, scenario.Initial)

		for _, step := range scenario.Steps {
			tm.Send(step.Event, step.Payload...)
			tm.Expect(step.Expect...)
		}

		tm.Expect(scenario.Final...)
	})
}

// CounterScenario counts to the ceiling and resets.
func CounterScenario() TestScenario {
	steps := []Step{{Event: "increment", Expect: []Matcher{ContextContains("count", 1)}}}

	for range 6 {
		steps = append(steps, Step{Event: "increment"})
	}

	steps = append(steps,
		Step{Event: "increment", Expect: []Matcher{InState("maxedOut"), ContextContains("count", 7)}},
		Step{Event: "increment", Expect: []Matcher{EventWasUnhandled("increment")}},
		Step{Event: "reset", Expect: []Matcher{InState("counting"), ContextContains("count", 0)}},
	)

	return TestScenario{
		Name:    "Counter",
		Schema:  CommonTestSchemas.Counter(),
		Initial: "counting",
		Steps:   steps,
		Final:   []Matcher{TransitionWasTaken("maxedOut", "counting")},
	}
}

// ToggleScenario flips a toggle twice.
func ToggleScenario() TestScenario {
	return TestScenario{
		Name:    "Toggle",
		Schema:  CommonTestSchemas.Toggle(),
		Initial: "inactive",
		Steps: []Step{
			{Event: "toggle", Expect: []Matcher{InState("active")}},
			{Event: "toggle", Expect: []Matcher{InState("inactive")}},
			{Event: "toggle", Expect: []Matcher{ContextContains("activations", 2)}},
		},
	}
}

// LoginScenario fails until the machine locks, then logs in.
func LoginScenario() TestScenario {
	return TestScenario{
		Name:    "Login",
		Schema:  CommonTestSchemas.Login(),
		Initial: "anonymous",
		Steps: []Step{
			{Event: "login", Expect: []Matcher{ContextContains("attempts", 1)}},
			{Event: "login", Payload: []any{""}, Expect: []Matcher{ContextContains("attempts", 2)}},
			{Event: "login", Expect: []Matcher{InState("locked")}},
			{Event: "unlock", Expect: []Matcher{ContextContains("attempts", 0)}},
			{Event: "login", Payload: []any{"ada"}, Expect: []Matcher{
				InState("authenticated"),
				ContextContains("user", "ada"),
			}},
			{Event: "logout"},
		},
		Final: []Matcher{
			All(StateWasVisited("locked"), TransitionWasTaken("authenticated", "anonymous")),
		},
	}
}
