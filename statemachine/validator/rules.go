package validator

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a validation rule that can check a config for specific issues.
type Rule interface {
	Name() string
	Severity() Severity
	Check(config *statemachine.Config) RuleResult
}

// DefaultRules returns the standard set of validation rules. Rules that need
// a handler registry are added with ActionsRegistered.
func DefaultRules() []Rule {
	rules := []Rule{
		&structureRule{},
		&unreachableStateRule{},
		&deadEndRule{},
		&requiredContextRule{},
		&noopTransitionRule{},
		&namingConventionRule{},
	}

	return append(rules, RegisteredRules...)
}

// RegisteredRules stores custom validation rules, run after the defaults.
var RegisteredRules []Rule

// RegisterRule adds a custom validation rule.
func RegisterRule(rule Rule) {
	RegisteredRules = append(RegisteredRules, rule)
}

// structureRule reports what Config.Validate rejects.
type structureRule struct{}

func (r *structureRule) Name() string { return "Structure" }

func (r *structureRule) Severity() Severity { return SeverityError }

func (r *structureRule) Check(config *statemachine.Config) RuleResult {
	err := config.Validate()
	if err == nil {
		return RuleResult{}
	}

	var loc Location

	var stateErr *statemachine.StateError
	if errors.As(err, &stateErr) {
		loc.State = stateErr.State
	}

	return RuleResult{Errors: []ValidationError{{
		Code:     "INVALID_CONFIG",
		Message:  err.Error(),
		Location: loc,
	}}}
}

// unreachableStateRule checks for states that no declared edge leads to
// from the initial state. Registered actions may still reach them, so this
// is a warning.
type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string { return "UnreachableState" }

func (r *unreachableStateRule) Severity() Severity { return SeverityWarning }

func (r *unreachableStateRule) Check(config *statemachine.Config) RuleResult {
	initial := config.Initial.State
	if _, ok := config.States[initial]; !ok {
		return RuleResult{}
	}

	graph := make(map[string][]string)
	for _, edge := range config.Edges() {
		graph[edge.From] = append(graph[edge.From], edge.To)
	}

	reachable := map[string]bool{initial: true}
	queue := []string{initial}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range graph[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var warnings []ValidationWarning

	for _, name := range config.StateNames() {
		if reachable[name] {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "UNREACHABLE_STATE",
			Message:  fmt.Sprintf("State '%s' cannot be reached from initial state '%s'", name, initial),
			Location: Location{State: name},
			Fix:      RemoveUnreachableState(name),
		})
	}

	return RuleResult{Warnings: warnings}
}

// deadEndRule warns about states without handlers: once entered, the
// machine never leaves them.
type deadEndRule struct{}

func (r *deadEndRule) Name() string { return "DeadEnd" }

func (r *deadEndRule) Severity() Severity { return SeverityWarning }

func (r *deadEndRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for _, name := range config.StateNames() {
		if len(config.States[name].On) > 0 {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code:     "DEAD_END_STATE",
			Message:  fmt.Sprintf("State '%s' handles no events and can never be left", name),
			Location: Location{State: name},
		})
	}

	return RuleResult{Warnings: warnings}
}

// requiredContextRule checks that literal transitions and the initial state
// provide every key their target requires, counting shared and state
// defaults. A state name alone keeps the context and cannot be checked.
type requiredContextRule struct{}

func (r *requiredContextRule) Name() string { return "RequiredContext" }

func (r *requiredContextRule) Severity() Severity { return SeverityError }

func (r *requiredContextRule) Check(config *statemachine.Config) RuleResult {
	var errs []ValidationError

	check := func(target string, provided map[string]any, loc Location, what string) {
		state, ok := config.States[target]
		if !ok {
			return
		}

		for _, key := range state.Requires {
			if hasKey(provided, key) || hasKey(config.Context, key) || hasKey(state.Context, key) {
				continue
			}

			errs = append(errs, ValidationError{
				Code:     "MISSING_REQUIRED_CONTEXT",
				Message:  fmt.Sprintf("%s enters '%s' without required context key '%s'", what, target, key),
				Location: loc,
				Fix:      AddContextDefault(target, key, nil),
			})
		}
	}

	check(config.Initial.State, config.Initial.Context, Location{State: config.Initial.State}, "The initial state")

	for _, name := range config.StateNames() {
		on := config.States[name].On

		for _, event := range slices.Sorted(maps.Keys(on)) {
			handler := on[event]
			if handler.Action != "" || handler.Literal == nil {
				continue
			}

			if t, ok := statemachine.Parse(handler.Literal).(statemachine.StateTransition); ok {
				check(t.State, t.Context, Location{State: name, Event: event}, fmt.Sprintf("Event '%s'", event))
			}
		}
	}

	return RuleResult{Errors: errs}
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]

	return ok
}

// noopTransitionRule warns about literal state names equal to their own
// state, which never transition.
type noopTransitionRule struct{}

func (r *noopTransitionRule) Name() string { return "NoopTransition" }

func (r *noopTransitionRule) Severity() Severity { return SeverityWarning }

func (r *noopTransitionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for _, edge := range config.Edges() {
		if edge.Action != "" || edge.From != edge.To {
			continue
		}

		literal, isName := config.States[edge.From].On[edge.Event].Literal.(string)
		if !isName || literal != edge.From {
			continue
		}

		warnings = append(warnings, ValidationWarning{
			Code: "NOOP_TRANSITION",
			Message: fmt.Sprintf("Event '%s' names its own state '%s' and does nothing; use {state: %s} to re-enter",
				edge.Event, edge.From, edge.From),
			Location: Location{State: edge.From, Event: edge.Event},
		})
	}

	return RuleResult{Warnings: warnings}
}

var identifier = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

// namingConventionRule warns about state and event names that are not
// lowerCamelCase.
type namingConventionRule struct{}

func (r *namingConventionRule) Name() string { return "NamingConvention" }

func (r *namingConventionRule) Severity() Severity { return SeverityWarning }

func (r *namingConventionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for _, name := range config.StateNames() {
		if !identifier.MatchString(name) {
			suggested := toCamelCase(name)

			warning := ValidationWarning{
				Code:     "NAMING_CONVENTION",
				Message:  fmt.Sprintf("State '%s' should use lowerCamelCase naming (suggested: '%s')", name, suggested),
				Location: Location{State: name},
			}

			if _, taken := config.States[suggested]; !taken && suggested != "" {
				warning.Fix = RenameState(name, suggested)
			}

			warnings = append(warnings, warning)
		}

		for _, event := range slices.Sorted(maps.Keys(config.States[name].On)) {
			if identifier.MatchString(event) {
				continue
			}

			warnings = append(warnings, ValidationWarning{
				Code: "NAMING_CONVENTION",
				Message: fmt.Sprintf("Event '%s' should use lowerCamelCase naming (suggested: '%s')",
					event, toCamelCase(event)),
				Location: Location{State: name, Event: event},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// toCamelCase joins the words of s in lowerCamelCase.
func toCamelCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})

	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)

	var sb strings.Builder

	for i, word := range words {
		if i == 0 {
			sb.WriteString(lower.String(word[:1]) + word[1:])
		} else {
			sb.WriteString(title.String(word[:1]) + word[1:])
		}
	}

	return sb.String()
}

// ActionsRegistered returns a rule checking that every action and effect the
// config names is registered in reg and accepts its parameters.
func ActionsRegistered(reg *statemachine.Registry) Rule {
	if reg == nil {
		reg = statemachine.NewRegistry()
	}

	return &actionsRule{reg: reg}
}

type actionsRule struct {
	reg *statemachine.Registry
}

func (r *actionsRule) Name() string { return "ActionsRegistered" }

func (r *actionsRule) Severity() Severity { return SeverityError }

func (r *actionsRule) Check(config *statemachine.Config) RuleResult {
	var errs []ValidationError

	report := func(loc Location, kind, name string, err error) {
		code := "INVALID_" + strings.ToUpper(kind) + "_PARAMS"
		if errors.Is(err, statemachine.ErrUnknownActionType) {
			code = "UNKNOWN_" + strings.ToUpper(kind)
		}

		errs = append(errs, ValidationError{
			Code:     code,
			Message:  fmt.Sprintf("%s '%s': %v", kind, name, err),
			Location: loc,
		})
	}

	effect := func(loc Location, hook *statemachine.HookConfig) {
		if hook == nil || hook.Effect == "" {
			return
		}

		if _, err := r.reg.Effect(hook.Effect, hook.Params); err != nil {
			report(loc, "effect", hook.Effect, err)
		}
	}

	for _, name := range config.StateNames() {
		state := config.States[name]

		effect(Location{State: name, Event: "entry"}, state.Entry)
		effect(Location{State: name, Event: "exit"}, state.Exit)

		for _, event := range slices.Sorted(maps.Keys(state.On)) {
			handler := state.On[event]
			loc := Location{State: name, Event: event}

			if handler.Action != "" {
				if _, err := r.reg.Handler(handler.Action, handler.Params); err != nil {
					report(loc, "action", handler.Action, err)
				}
			}

			effect(loc, handler.Effect)
		}
	}

	return RuleResult{Errors: errs}
}
