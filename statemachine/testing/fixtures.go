package testing

import (
	"path/filepath"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/amp-labs/typestate/statemachine/actions"
)

// MaxLoginAttempts is how many failed logins lock the Login fixture.
const MaxLoginAttempts = 3

// LoadTestConfig loads a config from the testdata directory.
func LoadTestConfig(name string) (*statemachine.Config, error) {
	return statemachine.LoadConfig(filepath.Join("testdata", name))
}

// CommonTestSchemas provides frequently used schemas. Every call returns a
// fresh schema.
var CommonTestSchemas = struct {
	// Counter counts up to 7 and then refuses to count until reset.
	Counter func() *statemachine.Schema
	// Toggle flips between inactive and active, counting activations.
	Toggle func() *statemachine.Schema
	// Fetch loads data with work, and can be cancelled or retried.
	Fetch func(work actions.Work) *statemachine.Schema
	// Login authenticates a user name sent as payload and locks after MaxLoginAttempts failures.
	Login func() *statemachine.Schema
}{
	Counter: counter,
	Toggle:  toggle,
	Fetch:   fetch,
	Login:   login,
}

func counter() *statemachine.Schema {
	reset := func(*statemachine.Scope) statemachine.Transition {
		return statemachine.Enter("counting", statemachine.Context{"count": 0})
	}

	return &statemachine.Schema{
		Name:    "counter",
		Context: statemachine.Context{"count": 0},
		States: map[string]statemachine.State{
			"counting": {
				On: map[string]statemachine.Handler{
					"increment": statemachine.Dynamic(func(s *statemachine.Scope) any {
						count, _ := s.Context.GetInt("count")
						if count < 7 { //nolint:mnd // counter ceiling
							return statemachine.Context{"count": count + 1}
						}

						return "maxedOut"
					}),
					"decrement": func(s *statemachine.Scope) statemachine.Transition {
						count, _ := s.Context.GetInt("count")

						return statemachine.Update(s.Context.With("count", count-1))
					},
				},
			},
			"maxedOut": {
				On: map[string]statemachine.Handler{"reset": reset},
			},
		},
	}
}

func toggle() *statemachine.Schema {
	return &statemachine.Schema{
		Name: "toggle",
		States: map[string]statemachine.State{
			"inactive": {
				On: map[string]statemachine.Handler{
					"toggle": func(s *statemachine.Scope) statemachine.Transition {
						activations, _ := s.Context.GetInt("activations")

						return statemachine.Enter("active", s.Context.With("activations", activations+1))
					},
				},
			},
			"active": {
				On: map[string]statemachine.Handler{
					"toggle": func(*statemachine.Scope) statemachine.Transition { return statemachine.Goto("inactive") },
				},
			},
		},
	}
}

func fetch(work actions.Work) *statemachine.Schema {
	load := func(*statemachine.Scope) statemachine.Transition {
		return statemachine.Goto("loading")
	}

	return &statemachine.Schema{
		Name: "fetch",
		States: map[string]statemachine.State{
			"idle": {
				On: map[string]statemachine.Handler{"fetch": load},
			},
			"loading": {
				Entry: actions.Entering(actions.Go(work, "resolve", "reject")),
				On: map[string]statemachine.Handler{
					"resolve": func(s *statemachine.Scope) statemachine.Transition {
						return statemachine.Enter("success", statemachine.Context{"data": s.Payload})
					},
					"reject": func(s *statemachine.Scope) statemachine.Transition {
						retries, _ := s.Context.GetInt("retries")
						next := s.Context.With("retries", retries)

						if err, ok := s.Payload.(error); ok {
							next = next.With("error", err.Error())
						}

						return statemachine.Enter("failure", next)
					},
					"cancel": func(*statemachine.Scope) statemachine.Transition {
						return statemachine.Enter("idle", statemachine.Context{})
					},
				},
			},
			"success": {
				Requires: []string{"data"},
				On:       map[string]statemachine.Handler{"fetch": load},
			},
			"failure": {
				Requires: []string{"error"},
				On: map[string]statemachine.Handler{
					"retry": func(s *statemachine.Scope) statemachine.Transition {
						retries, _ := s.Context.GetInt("retries")

						return statemachine.Enter("loading", statemachine.Context{"retries": retries + 1})
					},
				},
			},
		},
	}
}

func login() *statemachine.Schema {
	return &statemachine.Schema{
		Name:    "login",
		Context: statemachine.Context{"attempts": 0},
		States: map[string]statemachine.State{
			"anonymous": {
				On: map[string]statemachine.Handler{
					"login": statemachine.Dynamic(func(s *statemachine.Scope) any {
						if user, ok := s.Payload.(string); ok && user != "" {
							return map[string]any{"state": "authenticated", "context": map[string]any{"user": user}}
						}

						attempts, _ := s.Context.GetInt("attempts")
						if attempts+1 >= MaxLoginAttempts {
							return map[string]any{"state": "locked", "context": map[string]any{"attempts": attempts + 1}}
						}

						return s.Context.With("attempts", attempts+1)
					}),
				},
			},
			"authenticated": {
				Requires: []string{"user"},
				On: map[string]statemachine.Handler{
					"logout": func(*statemachine.Scope) statemachine.Transition {
						return statemachine.Enter("anonymous", nil)
					},
				},
			},
			"locked": {
				On: map[string]statemachine.Handler{
					"unlock": func(*statemachine.Scope) statemachine.Transition {
						return statemachine.Enter("anonymous", nil)
					},
				},
			},
		},
	}
}
