package actions

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
)

// RegisterDefaults adds the builders of this package to reg, so that YAML
// configurations can name them:
//
//	entry:
//	  effect: after
//	  params: {delay: 5s, event: timeout}
//	on:
//	  submit:
//	    action: when
//	    params: {key: valid, equals: true, then: sending, otherwise: editing}
func RegisterDefaults(reg *statemachine.Registry) {
	reg.RegisterEffect("after", afterBuilder)
	reg.RegisterEffect("every", everyBuilder)
	reg.RegisterEffect("log", logBuilder)
	reg.RegisterEffect("sequence", sequenceBuilder)
	reg.RegisterEffect("parallel", parallelBuilder)

	reg.RegisterHandler("when", whenBuilder)
}

// NewRegistry returns a registry holding the built-in builders and those of this package.
func NewRegistry() *statemachine.Registry {
	reg := statemachine.NewRegistry()
	RegisterDefaults(reg)

	return reg
}

func eventPayload(params statemachine.Params) []any {
	if payload, ok := params["payload"]; ok {
		return []any{payload}
	}

	return nil
}

func afterBuilder(_ *statemachine.Registry, params statemachine.Params) (statemachine.Effect, error) {
	delay, err := params.GetDuration("delay", true, 0)
	if err != nil {
		return nil, WrapError("after", err)
	}

	event, err := params.GetString("event", true)
	if err != nil {
		return nil, WrapError("after", err)
	}

	return After(delay, event, eventPayload(params)...), nil
}

func everyBuilder(_ *statemachine.Registry, params statemachine.Params) (statemachine.Effect, error) {
	interval, err := params.GetDuration("interval", true, 0)
	if err != nil {
		return nil, WrapError("every", err)
	}

	if interval <= 0 {
		return nil, WrapError("every", fmt.Errorf("%w: interval must be positive", statemachine.ErrInvalidActionConfig))
	}

	event, err := params.GetString("event", true)
	if err != nil {
		return nil, WrapError("every", err)
	}

	return Every(interval, event, eventPayload(params)...), nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func logBuilder(_ *statemachine.Registry, params statemachine.Params) (statemachine.Effect, error) {
	message, err := params.GetString("message", true)
	if err != nil {
		return nil, WrapError("log", err)
	}

	level, err := params.GetString("level", false)
	if err != nil {
		return nil, WrapError("log", err)
	}

	level = CoalesceString(strings.ToLower(level), "info")

	allowed := make([]string, 0, len(logLevels))
	for name := range logLevels {
		allowed = append(allowed, name)
	}

	slices.Sort(allowed)

	if err := ValidateEnum(level, allowed); err != nil {
		return nil, WrapError("log", err)
	}

	return Log(nil, logLevels[level], message), nil
}

// steps builds the effects listed under params.steps, each given as an
// effect name or as a mapping with effect and params.
func steps(reg *statemachine.Registry, params statemachine.Params) ([]statemachine.Effect, error) {
	items, err := params.GetSlice("steps", true)
	if err != nil {
		return nil, err
	}

	effects := make([]statemachine.Effect, 0, len(items))

	for idx, item := range items {
		var (
			name      string
			subParams statemachine.Params
		)

		switch step := item.(type) {
		case string:
			name = step
		case map[string]any:
			sp := statemachine.Params(step)

			name, err = sp.GetString("effect", true)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", idx, err)
			}

			subParams, err = sp.GetMap("params", false)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", idx, err)
			}
		default:
			return nil, fmt.Errorf("step %d: %w: got %T", idx, statemachine.ErrParameterTypeMismatch, item)
		}

		effect, err := reg.Effect(name, subParams)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", idx, err)
		}

		effects = append(effects, effect)
	}

	return effects, nil
}

func sequenceBuilder(reg *statemachine.Registry, params statemachine.Params) (statemachine.Effect, error) {
	effects, err := steps(reg, params)
	if err != nil {
		return nil, WrapError("sequence", err)
	}

	return Sequence(effects...), nil
}

func parallelBuilder(reg *statemachine.Registry, params statemachine.Params) (statemachine.Effect, error) {
	effects, err := steps(reg, params)
	if err != nil {
		return nil, WrapError("parallel", err)
	}

	return Parallel(effects...), nil
}

func whenBuilder(_ *statemachine.Registry, params statemachine.Params) (statemachine.Handler, error) {
	key, err := params.GetString("key", true)
	if err != nil {
		return nil, WrapError("when", err)
	}

	if _, ok := params["then"]; !ok {
		return nil, WrapError("when", fmt.Errorf("required parameter %q: %w", "then", statemachine.ErrParameterNotFound))
	}

	condition := func(s *statemachine.Scope) bool {
		_, ok := s.Context.Get(key)

		return ok
	}

	if equals, ok := params["equals"]; ok {
		condition = ContextEquals(key, equals)
	}

	handler, err := When(condition, params["then"], params["otherwise"])
	if err != nil {
		return nil, WrapError("when", err)
	}

	return handler, nil
}

// WrapError wraps an error with action context.
func WrapError(actionName string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("[%s] %w", actionName, err)
}

// ValidateEnum validates that a string value is one of the allowed values.
func ValidateEnum(value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}

	return fmt.Errorf("value %q not in allowed values %v: %w", value, allowed, ErrInvalidEnumValue)
}

// CoalesceString returns the first non-empty string.
func CoalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
