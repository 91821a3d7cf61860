package statemachine

import (
	"context"
	"fmt"
)

// HandlerBuilder creates a handler from configuration parameters.
// The registry parameter allows builders to compose other registered builders.
type HandlerBuilder func(reg *Registry, params Params) (Handler, error)

// EffectBuilder creates an effect from configuration parameters.
type EffectBuilder func(reg *Registry, params Params) (Effect, error)

// Registry resolves the handler and effect names used in YAML configurations.
// Applications can register custom builders to extend it.
type Registry struct {
	handlers map[string]HandlerBuilder
	effects  map[string]EffectBuilder
}

// NewRegistry creates a registry with the built-in handlers and effects.
func NewRegistry() *Registry {
	reg := &Registry{
		handlers: make(map[string]HandlerBuilder),
		effects:  make(map[string]EffectBuilder),
	}

	reg.RegisterHandler("noop", noopHandlerBuilder)
	reg.RegisterHandler("goto", gotoHandlerBuilder)
	reg.RegisterHandler("set", setHandlerBuilder)
	reg.RegisterHandler("increment", incrementHandlerBuilder)
	reg.RegisterHandler("payload", payloadHandlerBuilder)

	reg.RegisterEffect("noop", noopEffectBuilder)
	reg.RegisterEffect("dispatch", dispatchEffectBuilder)

	return reg
}

// RegisterHandler registers a handler builder under name, replacing any previous one.
func (r *Registry) RegisterHandler(name string, builder HandlerBuilder) {
	r.handlers[name] = builder
}

// RegisterEffect registers an effect builder under name, replacing any previous one.
func (r *Registry) RegisterEffect(name string, builder EffectBuilder) {
	r.effects[name] = builder
}

// HasHandler reports whether a handler builder is registered under name.
func (r *Registry) HasHandler(name string) bool {
	_, ok := r.handlers[name]

	return ok
}

// HasEffect reports whether an effect builder is registered under name.
func (r *Registry) HasEffect(name string) bool {
	_, ok := r.effects[name]

	return ok
}

// HandlerNames returns the registered handler names in natural order.
func (r *Registry) HandlerNames() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	sortNatural(names)

	return names
}

// EffectNames returns the registered effect names in natural order.
func (r *Registry) EffectNames() []string {
	names := make([]string, 0, len(r.effects))
	for name := range r.effects {
		names = append(names, name)
	}

	sortNatural(names)

	return names
}

// Handler builds the handler registered under name.
func (r *Registry) Handler(name string, params Params) (Handler, error) {
	builder, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: handler %s", ErrUnknownActionType, name)
	}

	return builder(r, params)
}

// Effect builds the effect registered under name.
func (r *Registry) Effect(name string, params Params) (Effect, error) {
	builder, ok := r.effects[name]
	if !ok {
		return nil, fmt.Errorf("%w: effect %s", ErrUnknownActionType, name)
	}

	return builder(r, params)
}

func noopHandlerBuilder(_ *Registry, _ Params) (Handler, error) {
	return func(*Scope) Transition {
		return NoOp{}
	}, nil
}

// gotoHandlerBuilder moves to params.state, keeping the context.
func gotoHandlerBuilder(_ *Registry, params Params) (Handler, error) {
	state, err := params.GetString("state", true)
	if err != nil {
		return nil, err
	}

	return func(*Scope) Transition {
		return StateName(state)
	}, nil
}

// setHandlerBuilder copies params.values over the context and optionally
// moves to params.state.
func setHandlerBuilder(_ *Registry, params Params) (Handler, error) {
	values, err := params.GetMap("values", true)
	if err != nil {
		return nil, err
	}

	state, err := params.GetString("state", false)
	if err != nil {
		return nil, err
	}

	return func(s *Scope) Transition {
		next := s.Context.Merge(values)
		if state != "" {
			return StateTransition{State: state, Context: next}
		}

		return ContextUpdate{Context: next}
	}, nil
}

// incrementHandlerBuilder adds params.by (default 1) to the integer at
// params.key (default "count"). Once the value has reached params.max (or
// params.min when counting down), the handler moves to params.overflow
// instead, or stays put if no overflow state is given.
func incrementHandlerBuilder(_ *Registry, params Params) (Handler, error) {
	key, err := params.GetString("key", false)
	if err != nil {
		return nil, err
	}

	if key == "" {
		key = "count"
	}

	by, err := params.GetInt("by", false, 1)
	if err != nil {
		return nil, err
	}

	overflow, err := params.GetString("overflow", false)
	if err != nil {
		return nil, err
	}

	_, hasMax := params["max"]

	maxVal, err := params.GetInt("max", false, 0)
	if err != nil {
		return nil, err
	}

	_, hasMin := params["min"]

	minVal, err := params.GetInt("min", false, 0)
	if err != nil {
		return nil, err
	}

	return func(s *Scope) Transition {
		current, _ := s.Context.GetInt(key)

		if (hasMax && by > 0 && current >= maxVal) || (hasMin && by < 0 && current <= minVal) {
			if overflow != "" {
				return StateName(overflow)
			}

			return NoOp{}
		}

		return ContextUpdate{Context: s.Context.With(key, current+by)}
	}, nil
}

// payloadHandlerBuilder stores the event payload at params.key and
// optionally moves to params.state.
func payloadHandlerBuilder(_ *Registry, params Params) (Handler, error) {
	key, err := params.GetString("key", true)
	if err != nil {
		return nil, err
	}

	state, err := params.GetString("state", false)
	if err != nil {
		return nil, err
	}

	return func(s *Scope) Transition {
		if !s.HasPayload {
			return NoOp{}
		}

		next := s.Context.With(key, s.Payload)
		if state != "" {
			return StateTransition{State: state, Context: next}
		}

		return ContextUpdate{Context: next}
	}, nil
}

func noopEffectBuilder(_ *Registry, _ Params) (Effect, error) {
	return func(context.Context, *Dispatcher) Cleanup {
		return nil
	}, nil
}

// dispatchEffectBuilder sends params.event, with params.payload if present.
func dispatchEffectBuilder(_ *Registry, params Params) (Effect, error) {
	event, err := params.GetString("event", true)
	if err != nil {
		return nil, err
	}

	payload, hasPayload := params["payload"]

	return func(_ context.Context, d *Dispatcher) Cleanup {
		if hasPayload {
			d.Dispatch(event, payload)
		} else {
			d.Dispatch(event)
		}

		return nil
	}, nil
}
