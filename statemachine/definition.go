package statemachine

import (
	"context"
	"fmt"
)

// Initial is the state and context a machine starts in.
type Initial struct {
	State   string
	Context Context
}

// ParseInitial accepts a bare state name, an Initial, or a map with a
// "state" key and an optional "context" map.
func ParseInitial(value any) (Initial, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return Initial{}, ErrInitialStateRequired
		}

		return Initial{State: v}, nil
	case StateName:
		return ParseInitial(string(v))
	case Initial:
		if v.State == "" {
			return Initial{}, ErrInitialStateRequired
		}

		return v, nil
	case *Initial:
		if v == nil {
			return Initial{}, ErrInitialStateRequired
		}

		return ParseInitial(*v)
	case StateTransition:
		return ParseInitial(Initial(v))
	case Context:
		return parseInitialObject(v)
	case map[string]any:
		return parseInitialObject(v)
	default:
		return Initial{}, fmt.Errorf("%w: unsupported value of type %T", ErrInvalidInitialState, value)
	}
}

func parseInitialObject(obj map[string]any) (Initial, error) {
	state, ok := obj["state"].(string)
	if !ok || state == "" {
		return Initial{}, fmt.Errorf("%w: missing state", ErrInvalidInitialState)
	}

	switch ctx := obj["context"].(type) {
	case nil:
		return Initial{State: state}, nil
	case Context:
		return Initial{State: state, Context: ctx}, nil
	case map[string]any:
		return Initial{State: state, Context: Context(ctx)}, nil
	default:
		return Initial{}, fmt.Errorf("%w: context of type %T", ErrInvalidInitialState, ctx)
	}
}

// Definition is a validated schema from which any number of machines can be
// created. It is safe for concurrent use.
type Definition struct {
	schema      *Schema
	opts        []Option
	fingerprint string
}

// Define validates schema and captures a private copy of it. The options
// apply to every machine of the definition unless overridden in New.
func Define(schema *Schema, opts ...Option) (*Definition, error) {
	if schema == nil {
		return nil, ErrNoStates
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema %q: %w", schema.Name, err)
	}

	own := schema.clone()

	return &Definition{
		schema:      own,
		opts:        opts,
		fingerprint: fingerprint(own),
	}, nil
}

// MustDefine is like Define but panics on an invalid schema.
func MustDefine(schema *Schema, opts ...Option) *Definition {
	def, err := Define(schema, opts...)
	if err != nil {
		panic(err)
	}

	return def
}

// Name returns the schema name.
func (d *Definition) Name() string {
	return d.schema.Name
}

// Schema returns a copy of the definition's schema.
func (d *Definition) Schema() *Schema {
	return d.schema.clone()
}

// Fingerprint returns a short hash of the schema's states and events.
func (d *Definition) Fingerprint() string {
	return d.fingerprint
}

// Dispatcher builds a dispatcher over the definition's events that forwards
// to send.
func (d *Definition) Dispatcher(send func(Event)) *Dispatcher {
	return NewDispatcher(d.schema, send, nil)
}

// New starts a machine in the initial state given by initial (see
// ParseInitial). The entry hook of the initial state runs before New returns
// when the default scheduler is used.
func (d *Definition) New(ctx context.Context, initial any, opts ...Option) (*Machine, error) {
	init, err := ParseInitial(initial)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()

	for _, opt := range d.opts {
		opt(&o)
	}

	for _, opt := range opts {
		opt(&o)
	}

	return start(ctx, d, init, o)
}

// New defines schema and starts one machine from it.
func New(ctx context.Context, schema *Schema, initial any, opts ...Option) (*Machine, error) {
	def, err := Define(schema)
	if err != nil {
		return nil, err
	}

	return def.New(ctx, initial, opts...)
}
