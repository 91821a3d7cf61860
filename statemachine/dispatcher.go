package statemachine

import (
	"context"
)

// DispatchFunc sends one event. Calling it with no arguments sends the event
// without a payload.
type DispatchFunc func(payload ...any)

// Dispatcher holds one dispatch function per event name of a schema. Every
// function is shared by all states: dispatching an event the current state
// does not handle is a no-op, not an error.
type Dispatcher struct {
	events []string
	funcs  map[string]DispatchFunc
	send   func(Event)
	logger Logger
	name   string
}

// NewDispatcher derives the event set of schema and binds every event to
// send. Entry and exit keys are never events.
func NewDispatcher(schema *Schema, send func(Event), logger Logger) *Dispatcher {
	if logger == nil {
		logger = NopLogger{}
	}

	d := &Dispatcher{
		events: schema.Events(),
		send:   send,
		logger: logger,
		name:   sanitizeMachine(schema.Name),
	}

	d.funcs = make(map[string]DispatchFunc, len(d.events))

	for _, event := range d.events {
		d.funcs[event] = func(payload ...any) {
			d.send(NewEvent(event, payload...))
		}
	}

	return d
}

// Events returns the event names of the schema in natural order.
func (d *Dispatcher) Events() []string {
	out := make([]string, len(d.events))
	copy(out, d.events)

	return out
}

// Func returns the dispatch function bound to event.
func (d *Dispatcher) Func(event string) (DispatchFunc, bool) {
	fn, ok := d.funcs[event]

	return fn, ok
}

// Dispatch sends event with an optional payload. An event no state declares
// is reported as a schema violation and dropped.
func (d *Dispatcher) Dispatch(event string, payload ...any) {
	fn, ok := d.funcs[event]
	if !ok {
		d.logger.SchemaViolation(context.Background(), d.name, "", event, ErrUnknownEvent)

		return
	}

	fn(payload...)
}
