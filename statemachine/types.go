package statemachine

import "context"

// Reserved keys for the entry and exit hooks of a state. They are never
// event names.
const (
	EntryKey = "$entry"
	ExitKey  = "$exit"
)

// Cleanup undoes the work of an effect. A nil Cleanup means there is nothing
// to undo.
type Cleanup func()

// Effect is a side effect that runs after the commit that scheduled it.
// ctx is cancelled when the effect is stopped.
type Effect func(ctx context.Context, d *Dispatcher) Cleanup

// Task is the unit a Scheduler runs. The engine turns effects and hooks into
// tasks before handing them over.
type Task func(ctx context.Context) Cleanup

// EffectID identifies a scheduled effect inside a Scheduler. The zero value
// never identifies a live effect.
type EffectID uint64

// Event is a dispatched event. Payload is only meaningful when HasPayload is set.
type Event struct {
	Type       string
	Payload    any
	HasPayload bool
}

// NewEvent builds an event. One payload argument is carried as-is, several are
// carried as a []any.
func NewEvent(name string, payload ...any) Event {
	switch len(payload) {
	case 0:
		return Event{Type: name}
	case 1:
		return Event{Type: name, Payload: payload[0], HasPayload: true}
	default:
		return Event{Type: name, Payload: payload, HasPayload: true}
	}
}

// Triple is the mutable core of a machine instance: the current state, its
// context and the effects that belong to that state.
type Triple struct {
	State   string
	Context Context
	Effects []EffectID
}

// Outcome classifies what a dispatched event did to the triple.
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeUpdated      Outcome = "updated"
	OutcomeNoop         Outcome = "noop"
	OutcomeUnhandled    Outcome = "unhandled"
	OutcomeRejected     Outcome = "rejected"
)
