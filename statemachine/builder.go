package statemachine

import (
	"errors"
	"fmt"
)

// Builder provides a fluent API for constructing schemas in code.
// Handler shapes accepted by HandlerFor can be passed to On directly;
// conversion errors are collected and reported by Build.
type Builder struct {
	schema *Schema
	errs   []error
}

// NewBuilder creates a new schema builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		schema: &Schema{
			Name:   name,
			States: make(map[string]State),
		},
	}
}

// WithContext sets the shared context defaults.
func (b *Builder) WithContext(ctx Context) *Builder {
	b.schema.Context = ctx

	return b
}

// State declares a state and lets configure populate it.
func (b *Builder) State(name string, configure ...func(*StateBuilder)) *Builder {
	sb := &StateBuilder{
		name:  name,
		state: b.schema.States[name],
	}

	if sb.state.On == nil {
		sb.state.On = make(map[string]Handler)
	}

	for _, fn := range configure {
		fn(sb)
	}

	b.schema.States[name] = sb.state
	b.errs = append(b.errs, sb.errs...)

	return b
}

// Schema returns the schema built so far, or the first conversion errors.
func (b *Builder) Schema() (*Schema, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	return b.schema.clone(), nil
}

// Build validates the schema and defines a machine from it.
func (b *Builder) Build(opts ...Option) (*Definition, error) {
	schema, err := b.Schema()
	if err != nil {
		return nil, err
	}

	return Define(schema, opts...)
}

// StateBuilder populates one state of a Builder.
type StateBuilder struct {
	name  string
	state State
	errs  []error
}

// On binds event to handler, which may be any shape accepted by HandlerFor.
func (s *StateBuilder) On(event string, handler any) *StateBuilder {
	h, err := HandlerFor(handler)
	if err != nil {
		s.errs = append(s.errs, WrapStateError(s.name, fmt.Errorf("event %s: %w", event, err)))

		return s
	}

	s.state.On[event] = h

	return s
}

// OnEntry sets the entry hook.
func (s *StateBuilder) OnEntry(hook EntryHook) *StateBuilder {
	s.state.Entry = hook

	return s
}

// OnExit sets the exit hook.
func (s *StateBuilder) OnExit(hook ExitHook) *StateBuilder {
	s.state.Exit = hook

	return s
}

// WithContext sets the state's context defaults.
func (s *StateBuilder) WithContext(ctx Context) *StateBuilder {
	s.state.Context = ctx

	return s
}

// Requires declares keys the state's effective context must hold.
func (s *StateBuilder) Requires(keys ...string) *StateBuilder {
	s.state.Requires = append(s.state.Requires, keys...)

	return s
}
