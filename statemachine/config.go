package statemachine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigLoader is an interface for loading configurations by name.
// Applications can implement this to provide embedded or custom config loading.
type ConfigLoader interface {
	LoadByName(name string) ([]byte, error)
	ListAvailable() []string
}

var (
	// defaultConfigLoader is the global config loader used by LoadConfig.
	defaultConfigLoader ConfigLoader
)

// SetConfigLoader sets the default config loader for name-based loading.
func SetConfigLoader(loader ConfigLoader) {
	defaultConfigLoader = loader
}

// Config is the YAML description of a machine.
//
//	name: counter
//	context: {count: 0}
//	initial: counting
//	states:
//	  counting:
//	    on:
//	      increment: {action: increment, params: {max: 7, overflow: maxedOut}}
//	      reset: {state: counting, context: {count: 0}}
//	  maxedOut:
//	    on:
//	      reset: {state: counting, context: {count: 0}}
type Config struct {
	Name    string                 `json:"name"    yaml:"name"`
	Context map[string]any         `json:"context" yaml:"context"`
	Initial InitialConfig          `json:"initial" yaml:"initial"`
	Policy  string                 `json:"policy"  yaml:"policy"`
	States  map[string]StateConfig `json:"states"  yaml:"states"`
}

// InitialConfig is the initial state, written either as a bare state name or
// as a mapping with state and context.
type InitialConfig struct {
	State   string         `json:"state"   yaml:"state"`
	Context map[string]any `json:"context" yaml:"context"`
}

// UnmarshalYAML accepts a scalar state name or a mapping.
func (i *InitialConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		i.State = value.Value

		return nil
	}

	type plain InitialConfig

	return value.Decode((*plain)(i))
}

// StateConfig describes one state.
type StateConfig struct {
	On       map[string]HandlerConfig `json:"on"       yaml:"on"`
	Entry    *HookConfig              `json:"entry"    yaml:"entry"`
	Exit     *HookConfig              `json:"exit"     yaml:"exit"`
	Context  map[string]any           `json:"context"  yaml:"context"`
	Requires []string                 `json:"requires" yaml:"requires"`
}

// HookConfig names a registered effect and its parameters.
type HookConfig struct {
	Effect string         `json:"effect" yaml:"effect"`
	Params map[string]any `json:"params" yaml:"params"`
}

// UnmarshalYAML accepts a scalar effect name or a mapping.
func (h *HookConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		h.Effect = value.Value

		return nil
	}

	type plain HookConfig

	return value.Decode((*plain)(h))
}

// HandlerConfig describes the handler of one event. It is either a literal
// transition (a state name, or a mapping understood by Parse) or a
// registered action with parameters. Either form may also schedule an
// effect.
type HandlerConfig struct {
	Action  string         `json:"action,omitempty"  yaml:"action,omitempty"`
	Params  map[string]any `json:"params,omitempty"  yaml:"params,omitempty"`
	Effect  *HookConfig    `json:"effect,omitempty"  yaml:"effect,omitempty"`
	Literal any            `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// Reserved keys of a handler mapping; every other key belongs to the literal.
const (
	handlerKeyAction = "action"
	handlerKeyParams = "params"
	handlerKeyEffect = "effect"
)

// UnmarshalYAML splits a handler mapping into its reserved keys and the
// literal transition made of the remaining keys.
func (h *HandlerConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}

		h.Literal = value.Value

		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("%w: line %d: handler must be a state name or a mapping", ErrInvalidActionConfig, value.Line)
	}

	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if action, ok := raw[handlerKeyAction]; ok {
		name, isString := action.(string)
		if !isString {
			return fmt.Errorf("%w: line %d: action must be a string", ErrInvalidActionConfig, value.Line)
		}

		h.Action = name

		delete(raw, handlerKeyAction)
	}

	if params, ok := raw[handlerKeyParams]; ok {
		m, isMap := params.(map[string]any)
		if !isMap {
			return fmt.Errorf("%w: line %d: params must be a mapping", ErrInvalidActionConfig, value.Line)
		}

		h.Params = m

		delete(raw, handlerKeyParams)
	}

	if _, ok := raw[handlerKeyEffect]; ok {
		for idx := 0; idx+1 < len(value.Content); idx += 2 {
			if value.Content[idx].Value != handlerKeyEffect {
				continue
			}

			var hook HookConfig
			if err := value.Content[idx+1].Decode(&hook); err != nil {
				return err
			}

			h.Effect = &hook
		}

		delete(raw, handlerKeyEffect)
	}

	if len(raw) > 0 {
		h.Literal = raw
	}

	return nil
}

// LoadConfig loads a machine configuration by path or name.
// Supports two modes:
//   - Path mode: a value containing '/', '\' or ending in .yaml/.yml is read from the filesystem
//   - Name mode: a bare name is loaded through the registered ConfigLoader
func LoadConfig(pathOrName string) (*Config, error) {
	var (
		data []byte
		err  error
	)

	lower := strings.ToLower(pathOrName)
	isPath := strings.Contains(pathOrName, "/") ||
		strings.Contains(pathOrName, `\`) ||
		strings.HasSuffix(lower, ".yaml") ||
		strings.HasSuffix(lower, ".yml")

	if isPath {
		data, err = os.ReadFile(pathOrName) //nolint:gosec // Intentional path-based loading
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", pathOrName, err)
		}

		return LoadConfigFromBytes(data)
	}

	if defaultConfigLoader == nil {
		return nil, fmt.Errorf("no config loader registered; use SetConfigLoader() or provide a file path")
	}

	data, err = defaultConfigLoader.LoadByName(pathOrName)
	if err != nil {
		available := defaultConfigLoader.ListAvailable()

		return nil, fmt.Errorf("failed to load config %q (available: %v): %w", pathOrName, available, err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes loads a machine configuration from YAML bytes.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigFromFS loads a configuration from an embedded filesystem.
func LoadConfigFromFS(fsys fs.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS: %w", err)
	}

	return LoadConfigFromBytes(data)
}

// Validate checks the structure of the configuration. Handler and effect
// names are only checked against a registry when the config is compiled.
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrConfigNameRequired
	}

	if c.Initial.State == "" {
		return ErrInitialStateRequired
	}

	if len(c.States) == 0 {
		return ErrNoStates
	}

	if _, ok := c.States[c.Initial.State]; !ok {
		return fmt.Errorf("%w: %s", ErrInitialStateNotFound, c.Initial.State)
	}

	if _, err := ParseContextPolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %q", err, c.Policy)
	}

	for _, name := range c.StateNames() {
		state := c.States[name]

		if name == "" {
			return ErrStateNameRequired
		}

		if state.Exit != nil && len(state.On) == 0 {
			return WrapStateError(name, ErrExitWithoutHandlers)
		}

		for _, hook := range []*HookConfig{state.Entry, state.Exit} {
			if hook != nil && hook.Effect == "" {
				return WrapStateError(name, fmt.Errorf("%w: hook without effect", ErrInvalidActionConfig))
			}
		}

		for event, handler := range state.On {
			if isReserved(event) || event == "" {
				return WrapStateError(name, fmt.Errorf("%w: %q", ErrReservedEventName, event))
			}

			if err := c.validateHandler(handler); err != nil {
				return WrapStateError(name, fmt.Errorf("event %s: %w", event, err))
			}
		}
	}

	return nil
}

func (c *Config) validateHandler(handler HandlerConfig) error {
	if handler.Action != "" && handler.Literal != nil {
		return ErrHandlerConflict
	}

	if handler.Effect != nil && handler.Effect.Effect == "" {
		return fmt.Errorf("%w: effect without name", ErrInvalidActionConfig)
	}

	if handler.Literal == nil {
		return nil
	}

	switch t := Parse(handler.Literal).(type) {
	case StateName:
		if _, ok := c.States[string(t)]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTargetState, t)
		}
	case StateTransition:
		if _, ok := c.States[t.State]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTargetState, t.State)
		}
	case malformed:
		return t.err()
	}

	return nil
}

// StateNames returns the configured states in natural order.
func (c *Config) StateNames() []string {
	names := make([]string, 0, len(c.States))
	for name := range c.States {
		names = append(names, name)
	}

	sortNatural(names)

	return names
}

// InitialState returns the configured initial state.
func (c *Config) InitialState() Initial {
	return Initial{State: c.Initial.State, Context: c.Initial.Context}
}

// Schema compiles the configuration into a schema, resolving handler and
// effect names through reg. A nil reg uses NewRegistry().
func (c *Config) Schema(reg *Registry) (*Schema, error) {
	if reg == nil {
		reg = NewRegistry()
	}

	schema := &Schema{
		Name:    c.Name,
		Context: c.Context,
		States:  make(map[string]State, len(c.States)),
	}

	for _, name := range c.StateNames() {
		sc := c.States[name]

		state := State{
			On:       make(map[string]Handler, len(sc.On)),
			Context:  sc.Context,
			Requires: sc.Requires,
		}

		for event, hc := range sc.On {
			handler, err := buildHandler(reg, hc)
			if err != nil {
				return nil, WrapStateError(name, fmt.Errorf("event %s: %w", event, err))
			}

			state.On[event] = handler
		}

		if sc.Entry != nil {
			effect, err := reg.Effect(sc.Entry.Effect, sc.Entry.Params)
			if err != nil {
				return nil, WrapStateError(name, fmt.Errorf("entry: %w", err))
			}

			state.Entry = func(ctx context.Context, e Entry) Cleanup {
				return effect(ctx, e.Dispatcher)
			}
		}

		if sc.Exit != nil {
			effect, err := reg.Effect(sc.Exit.Effect, sc.Exit.Params)
			if err != nil {
				return nil, WrapStateError(name, fmt.Errorf("exit: %w", err))
			}

			state.Exit = func(ctx context.Context, e Exit) Cleanup {
				return effect(ctx, e.Dispatcher)
			}
		}

		schema.States[name] = state
	}

	return schema, nil
}

// Define compiles the configuration and defines a machine from it. The
// configured context policy applies unless opts override it.
func (c *Config) Define(reg *Registry, opts ...Option) (*Definition, error) {
	schema, err := c.Schema(reg)
	if err != nil {
		return nil, err
	}

	policy, err := ParseContextPolicy(c.Policy)
	if err != nil {
		return nil, err
	}

	return Define(schema, append([]Option{WithContextPolicy(policy)}, opts...)...)
}

func buildHandler(reg *Registry, hc HandlerConfig) (Handler, error) {
	var (
		handler Handler
		err     error
	)

	switch {
	case hc.Action != "":
		handler, err = reg.Handler(hc.Action, hc.Params)
	default:
		handler, err = Literal(hc.Literal)
	}

	if err != nil {
		return nil, err
	}

	if hc.Effect == nil {
		return handler, nil
	}

	effect, err := reg.Effect(hc.Effect.Effect, hc.Effect.Params)
	if err != nil {
		return nil, err
	}

	return func(s *Scope) Transition {
		return EffectTuple{Effect: effect, Next: handler(s)}
	}, nil
}
