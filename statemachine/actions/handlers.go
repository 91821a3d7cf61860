package actions

import (
	"fmt"

	"github.com/amp-labs/typestate/statemachine"
)

// Branch represents a condition-handler pair.
type Branch struct {
	Condition func(s *statemachine.Scope) bool
	// Then is any handler shape accepted by statemachine.HandlerFor.
	Then any
}

// Choose builds a handler that evaluates branches in order and delegates to
// the first one whose condition holds. When none does, otherwise handles the
// event; a nil otherwise leaves the machine as it is.
//
// Example:
//
//	handler, err := actions.Choose([]actions.Branch{
//	    {
//	        Condition: func(s *statemachine.Scope) bool {
//	            retries, _ := s.Context.GetInt("retries")
//	            return retries >= 3
//	        },
//	        Then: "failed",
//	    },
//	}, func(s *statemachine.Scope) statemachine.Transition {
//	    retries, _ := s.Context.GetInt("retries")
//	    return statemachine.Enter("loading", s.Context.With("retries", retries+1))
//	})
func Choose(branches []Branch, otherwise any) (statemachine.Handler, error) {
	handlers := make([]statemachine.Handler, len(branches))

	for i, branch := range branches {
		if branch.Condition == nil {
			return nil, fmt.Errorf("branch %d: %w", i, ErrConditionNotMet)
		}

		h, err := statemachine.HandlerFor(branch.Then)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}

		handlers[i] = h
	}

	fallback := statemachine.Handler(func(*statemachine.Scope) statemachine.Transition {
		return statemachine.Stay()
	})

	if otherwise != nil {
		h, err := statemachine.HandlerFor(otherwise)
		if err != nil {
			return nil, fmt.Errorf("otherwise: %w", err)
		}

		fallback = h
	}

	return func(s *statemachine.Scope) statemachine.Transition {
		for i, branch := range branches {
			if branch.Condition(s) {
				return handlers[i](s)
			}
		}

		return fallback(s)
	}, nil
}

// When is Choose with a single branch.
func When(condition func(s *statemachine.Scope) bool, then, otherwise any) (statemachine.Handler, error) {
	return Choose([]Branch{{Condition: condition, Then: then}}, otherwise)
}

// ContextEquals is a condition that holds when the context value at key equals value.
func ContextEquals(key string, value any) func(s *statemachine.Scope) bool {
	return func(s *statemachine.Scope) bool {
		got, ok := s.Context.Get(key)

		return ok && fmt.Sprint(got) == fmt.Sprint(value)
	}
}

// HasPayload is a condition that holds when the event carries a payload.
func HasPayload(s *statemachine.Scope) bool {
	return s.HasPayload
}

// Also wraps a handler so that effect is scheduled whenever it runs.
func Also(handler statemachine.Handler, effect statemachine.Effect) statemachine.Handler {
	return func(s *statemachine.Scope) statemachine.Transition {
		return statemachine.WithEffect(effect, handler(s))
	}
}
