package statemachine

import (
	"context"
	"fmt"
)

// Transition is the result of handling an event. It is a closed set of
// variants: NoOp, ContextUpdate, StateTransition, StateName and EffectTuple.
// Use Parse to turn loosely shaped values into one of them.
type Transition interface {
	isTransition()
}

// NoOp keeps state and context unchanged.
type NoOp struct{}

// ContextUpdate stays in the current state with a new context. Whether the
// new context replaces or is merged into the old one depends on the
// machine's ContextPolicy.
type ContextUpdate struct {
	Context Context
}

// StateTransition moves to State. A nil Context resets the context to the
// target state's defaults.
type StateTransition struct {
	State   string
	Context Context
}

// StateName moves to the named state and keeps the context unchanged.
type StateName string

// EffectTuple schedules Effect and then applies Next. A nil Next is a NoOp.
type EffectTuple struct {
	Effect Effect
	Next   Transition
}

// malformed carries a value Parse could not interpret. The engine rejects it.
type malformed struct {
	value any
}

func (NoOp) isTransition()            {}
func (ContextUpdate) isTransition()   {}
func (StateTransition) isTransition() {}
func (StateName) isTransition()       {}
func (EffectTuple) isTransition()     {}
func (malformed) isTransition()       {}

func (m malformed) err() error {
	return fmt.Errorf("%w: unsupported value of type %T", ErrMalformedTransition, m.value)
}

// Stay returns a NoOp.
func Stay() Transition {
	return NoOp{}
}

// Update returns a context-only update.
func Update(ctx Context) Transition {
	return ContextUpdate{Context: ctx}
}

// Enter returns a transition to state with the given context.
func Enter(state string, ctx Context) Transition {
	return StateTransition{State: state, Context: ctx}
}

// Goto returns a shorthand transition that keeps the current context.
func Goto(state string) Transition {
	return StateName(state)
}

// WithEffect schedules effect and then applies next, if any.
func WithEffect(effect Effect, next ...Transition) Transition {
	tuple := EffectTuple{Effect: effect, Next: NoOp{}}
	if len(next) > 0 && next[0] != nil {
		tuple.Next = next[0]
	}

	return tuple
}

// Parse normalises a loosely shaped handler result into a Transition:
//
//	nil                         -> NoOp
//	"name"                      -> StateName
//	{"state": s, "context": c}  -> StateTransition
//	{...} without "state"       -> ContextUpdate
//	Effect                      -> EffectTuple with NoOp
//	[]any{Effect, next}         -> EffectTuple with Parse(next)
//
// Transition values pass through unchanged. Anything else yields a value
// the engine rejects as malformed.
func Parse(value any) Transition {
	switch v := value.(type) {
	case nil:
		return NoOp{}
	case Transition:
		return v
	case string:
		return StateName(v)
	case Context:
		return parseObject(v)
	case map[string]any:
		return parseObject(v)
	case Effect:
		return EffectTuple{Effect: v, Next: NoOp{}}
	case func(context.Context, *Dispatcher) Cleanup:
		return EffectTuple{Effect: v, Next: NoOp{}}
	case []any:
		return parseTuple(v)
	default:
		return malformed{value: value}
	}
}

func parseObject(obj map[string]any) Transition {
	raw, hasState := obj["state"]
	if !hasState {
		return ContextUpdate{Context: Context(obj)}
	}

	state, ok := raw.(string)
	if !ok || state == "" {
		return malformed{value: obj}
	}

	switch ctx := obj["context"].(type) {
	case nil:
		return StateTransition{State: state}
	case Context:
		return StateTransition{State: state, Context: ctx}
	case map[string]any:
		return StateTransition{State: state, Context: Context(ctx)}
	default:
		return malformed{value: obj}
	}
}

func parseTuple(tuple []any) Transition {
	if len(tuple) == 0 || len(tuple) > 2 {
		return malformed{value: tuple}
	}

	var effect Effect

	switch fx := tuple[0].(type) {
	case Effect:
		effect = fx
	case func(context.Context, *Dispatcher) Cleanup:
		effect = fx
	default:
		return malformed{value: tuple}
	}

	if len(tuple) == 1 {
		return EffectTuple{Effect: effect, Next: NoOp{}}
	}

	return EffectTuple{Effect: effect, Next: Parse(tuple[1])}
}
