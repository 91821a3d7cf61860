package statemachine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"facette.io/natsort"
)

// Handler resolves one event in one state.
type Handler func(s *Scope) Transition

// Scope is what a handler sees: the current state and context, the event
// payload, and the capability to schedule effects and dispatch events.
type Scope struct {
	State      string
	Event      string
	Context    Context
	Payload    any
	HasPayload bool

	dispatcher *Dispatcher
	schedule   func(name string, effect Effect) EffectID
}

// Schedule registers an effect that runs after the current commit. The effect
// belongs to whichever state the machine is in once the event is committed.
func (s *Scope) Schedule(effect Effect) EffectID {
	if s.schedule == nil || effect == nil {
		return 0
	}

	return s.schedule(s.State+"."+s.Event, effect)
}

// Dispatcher returns the machine's dispatcher.
func (s *Scope) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Dispatch queues another event. It is processed after the current one commits.
func (s *Scope) Dispatch(event string, payload ...any) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(event, payload...)
	}
}

// Entry describes a state being entered.
type Entry struct {
	Context       Context
	PreviousState string
	State         string
	Dispatcher    *Dispatcher
}

// Exit describes a state being left.
type Exit struct {
	Context    Context
	NextState  string
	State      string
	Dispatcher *Dispatcher
}

// EntryHook runs after a state is entered. Its cleanup runs when the state is
// left again.
type EntryHook func(ctx context.Context, e Entry) Cleanup

// ExitHook runs after a state is left. Its cleanup runs right after it.
type ExitHook func(ctx context.Context, e Exit) Cleanup

// State declares the events a state accepts and its hooks.
type State struct {
	On       map[string]Handler
	Entry    EntryHook
	Exit     ExitHook
	Context  Context
	Requires []string
}

// Schema maps state names to their declarations. Context holds defaults
// shared by every state. A Schema is never mutated by the runtime and may be
// shared across machines.
type Schema struct {
	Name    string
	Context Context
	States  map[string]State
}

// StateNames returns the declared states in natural order.
func (s *Schema) StateNames() []string {
	names := make([]string, 0, len(s.States))
	for name := range s.States {
		names = append(names, name)
	}

	sortNatural(names)

	return names
}

// Events returns every distinct event name across all states in natural order.
func (s *Schema) Events() []string {
	seen := make(map[string]struct{})

	var events []string

	for _, state := range s.States {
		for event := range state.On {
			if isReserved(event) {
				continue
			}

			if _, ok := seen[event]; !ok {
				seen[event] = struct{}{}
				events = append(events, event)
			}
		}
	}

	sortNatural(events)

	return events
}

// Has reports whether the schema declares state.
func (s *Schema) Has(state string) bool {
	_, ok := s.States[state]

	return ok
}

// Effective returns the effective context of state for the resolved values.
func (s *Schema) Effective(state string, resolved Context) Context {
	return overlay(s.Context, s.States[state].Context, resolved)
}

// Validate checks the schema for integrity errors. All problems are
// reported together.
func (s *Schema) Validate() error {
	if len(s.States) == 0 {
		return ErrNoStates
	}

	var errs []error

	for _, name := range s.StateNames() {
		state := s.States[name]

		if name == "" {
			errs = append(errs, ErrStateNameRequired)

			continue
		}

		if state.Exit != nil && len(state.On) == 0 {
			errs = append(errs, WrapStateError(name, ErrExitWithoutHandlers))
		}

		for event, handler := range state.On {
			if isReserved(event) || event == "" {
				errs = append(errs, WrapStateError(name, fmt.Errorf("%w: %q", ErrReservedEventName, event)))
			}

			if handler == nil {
				errs = append(errs, WrapStateError(name, fmt.Errorf("%w: %s", ErrNilHandler, event)))
			}
		}
	}

	return errors.Join(errs...)
}

// clone copies the state map so later edits by the caller do not leak into
// a definition.
func (s *Schema) clone() *Schema {
	out := &Schema{
		Name:    s.Name,
		Context: s.Context.Clone(),
		States:  make(map[string]State, len(s.States)),
	}

	for name, state := range s.States {
		on := make(map[string]Handler, len(state.On))
		for event, handler := range state.On {
			on[event] = handler
		}

		state.On = on
		state.Context = state.Context.Clone()
		state.Requires = slices.Clone(state.Requires)
		out.States[name] = state
	}

	return out
}

// HandlerFor turns any accepted handler shape into a Handler:
// a Handler or func(*Scope) Transition is used as-is, a func(*Scope) any has
// its result parsed on every call, a func(*Scope) always stays put, and any
// other value is parsed once as a literal transition.
func HandlerFor(value any) (Handler, error) {
	switch v := value.(type) {
	case nil:
		return nil, ErrNilHandler
	case Handler:
		return v, nil
	case func(*Scope) Transition:
		return v, nil
	case func(*Scope) any:
		return Dynamic(v), nil
	case func(*Scope):
		return func(s *Scope) Transition {
			v(s)

			return NoOp{}
		}, nil
	default:
		return Literal(value)
	}
}

// Literal returns a handler that always yields the parsed value.
func Literal(value any) (Handler, error) {
	transition := Parse(value)
	if m, ok := transition.(malformed); ok {
		return nil, m.err()
	}

	return func(*Scope) Transition {
		return transition
	}, nil
}

// Dynamic returns a handler whose loosely shaped result is parsed on every
// call. Malformed results are rejected by the engine at dispatch time.
func Dynamic(fn func(s *Scope) any) Handler {
	return func(s *Scope) Transition {
		return Parse(fn(s))
	}
}

func isReserved(event string) bool {
	return event == EntryKey || event == ExitKey
}

func sortNatural(values []string) {
	slices.SortFunc(values, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case natsort.Compare(a, b):
			return -1
		default:
			return 1
		}
	})
}
