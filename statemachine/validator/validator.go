// Package validator checks machine configurations for problems the loader
// accepts but that are likely mistakes, and offers fixes for some of them.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
)

// ValidationResult contains the results of validating a state machine config.
type ValidationResult struct {
	Valid       bool
	Errors      []ValidationError
	Warnings    []ValidationWarning
	Suggestions []Suggestion
}

// ValidationError represents a validation error with fix suggestions.
type ValidationError struct {
	Code     string   // Error code like "UNREACHABLE_STATE", "MISSING_REQUIRED_CONTEXT"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
	Fix      *Fix     // Optional auto-fix suggestion
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
	Fix      *Fix
}

// Suggestion provides improvement recommendations.
type Suggestion struct {
	Message string // Suggestion description
	Example string // YAML example showing the improvement
}

// Location identifies where an issue occurred.
type Location struct {
	File  string // Config file path
	State string // State name if applicable
	Event string // Event name if applicable
}

func (l Location) String() string {
	var parts []string

	if l.File != "" {
		parts = append(parts, l.File)
	}

	if l.State != "" {
		parts = append(parts, "state: "+l.State)
	}

	if l.Event != "" {
		parts = append(parts, "event: "+l.Event)
	}

	return strings.Join(parts, ", ")
}

// Validate runs the default rules against config.
func Validate(config *statemachine.Config) ValidationResult {
	return ValidateWithRules(config, DefaultRules())
}

// ValidateFile loads a config from a file and validates it.
func ValidateFile(path string, rules ...Rule) (ValidationResult, error) {
	return ValidateFileWithOptions(path, false, rules...)
}

// ValidateFileStrict loads a config from a file and validates it in strict mode.
func ValidateFileStrict(path string, rules ...Rule) (ValidationResult, error) {
	return ValidateFileWithOptions(path, true, rules...)
}

// ValidateFileWithOptions loads a config from a file and validates it with
// the default rules plus rules. Strict mode turns warnings into errors.
func ValidateFileWithOptions(path string, strict bool, rules ...Rule) (ValidationResult, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return ValidationResult{
			Errors: []ValidationError{{
				Code:     "CONFIG_LOAD_FAILED",
				Message:  fmt.Sprintf("Failed to load config: %v", err),
				Location: Location{File: path},
			}},
		}, err
	}

	all := append(DefaultRules(), rules...)

	var result ValidationResult
	if strict {
		result = ValidateWithRulesStrict(config, all)
	} else {
		result = ValidateWithRules(config, all)
	}

	for i := range result.Errors {
		if result.Errors[i].Location.File == "" {
			result.Errors[i].Location.File = path
		}
	}

	for i := range result.Warnings {
		if result.Warnings[i].Location.File == "" {
			result.Warnings[i].Location.File = path
		}
	}

	return result, nil
}

// ValidateWithRules validates using custom rules.
func ValidateWithRules(config *statemachine.Config, rules []Rule) ValidationResult {
	var result ValidationResult

	if config == nil {
		result.Errors = append(result.Errors, ValidationError{Code: "NIL_CONFIG", Message: "config is nil"})

		return result
	}

	for _, rule := range rules {
		ruleResult := rule.Check(config)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	result.Valid = len(result.Errors) == 0
	result.Suggestions = generateSuggestions(config)

	return result
}

// ValidateWithRulesStrict validates with strict mode (treats warnings as errors).
func ValidateWithRulesStrict(config *statemachine.Config, rules []Rule) ValidationResult {
	result := ValidateWithRules(config, rules)

	for _, warning := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError(warning))
	}

	result.Warnings = nil
	result.Valid = len(result.Errors) == 0

	return result
}

// generateSuggestions provides general improvement suggestions.
func generateSuggestions(config *statemachine.Config) []Suggestion {
	var suggestions []Suggestion

	hasRequires := false
	hasUpdates := false

	for _, state := range config.States {
		if len(state.Requires) > 0 {
			hasRequires = true
		}

		for _, handler := range state.On {
			if _, ok := handler.Literal.(map[string]any); ok && handler.Action == "" {
				if _, hasState := handler.Literal.(map[string]any)["state"]; !hasState {
					hasUpdates = true
				}
			}
		}
	}

	if !hasRequires && len(config.States) > 2 {
		suggestions = append(suggestions, Suggestion{
			Message: "Consider declaring the context keys each state relies on",
			Example: `states:
  authenticated:
    requires: [user]  # entering without a user is rejected`,
		})
	}

	if hasUpdates && config.Policy == "" {
		suggestions = append(suggestions, Suggestion{
			Message: "Context updates replace the whole context; set the policy explicitly",
			Example: `policy: merge  # or replace`,
		})
	}

	return suggestions
}

// Fixes returns the fixes offered by the errors and warnings of the result.
func (r ValidationResult) Fixes() []*Fix {
	var fixes []*Fix

	for _, err := range r.Errors {
		if err.Fix != nil {
			fixes = append(fixes, err.Fix)
		}
	}

	for _, warn := range r.Warnings {
		if warn.Fix != nil {
			fixes = append(fixes, warn.Fix)
		}
	}

	return fixes
}

// HasErrors returns true if the result has any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the result has any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors of the result joined, or nil when it is valid.
func (r ValidationResult) Err() error {
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, fmt.Errorf("%w: [%s] %s", ErrInvalid, e.Code, e.Message))
	}

	return errors.Join(errs...)
}

// String returns a human-readable summary of validation results.
func (r ValidationResult) String() string {
	var sb strings.Builder

	if r.Valid {
		sb.WriteString("✓ Configuration is valid\n")
	} else {
		fmt.Fprintf(&sb, "✗ Configuration has %d error(s)\n", len(r.Errors))

		for _, err := range r.Errors {
			fmt.Fprintf(&sb, "  [%s] %s", err.Code, err.Message)

			if loc := err.Location.String(); loc != "" {
				fmt.Fprintf(&sb, " (%s)", loc)
			}

			sb.WriteString("\n")

			if err.Fix != nil {
				fmt.Fprintf(&sb, "    Fix: %s\n", err.Fix.Description)
			}
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&sb, "\n⚠ %d warning(s):\n", len(r.Warnings))

		for _, warn := range r.Warnings {
			fmt.Fprintf(&sb, "  [%s] %s\n", warn.Code, warn.Message)
		}
	}

	if len(r.Suggestions) > 0 {
		fmt.Fprintf(&sb, "\n%d suggestion(s) for improvement\n", len(r.Suggestions))

		for _, s := range r.Suggestions {
			fmt.Fprintf(&sb, "  - %s\n", s.Message)
		}
	}

	return sb.String()
}
