package validator

import (
	"errors"
	"fmt"

	"github.com/amp-labs/typestate/statemachine"
)

var (
	// ErrInvalid wraps the errors of an invalid validation result.
	ErrInvalid = errors.New("invalid configuration")
	// ErrStateNotFound is returned when a fix names a state that doesn't exist.
	ErrStateNotFound = errors.New("state not found")
	// ErrStateAlreadyExists is returned when attempting to rename to an existing state name.
	ErrStateAlreadyExists = errors.New("state already exists")
	// ErrCannotRemoveInitialState is returned when attempting to remove the initial state.
	ErrCannotRemoveInitialState = errors.New("cannot remove the initial state")
	// ErrDefaultExists is returned when a state already declares the default being added.
	ErrDefaultExists = errors.New("context default already declared")
)

// Fix represents an automatic fix for a validation issue.
type Fix struct {
	Description string
	Apply       func(config *statemachine.Config) error
}

// RemoveUnreachableState creates a fix that removes a state and every
// literal handler leading to it.
func RemoveUnreachableState(stateName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove unreachable state '%s'", stateName),
		Apply: func(config *statemachine.Config) error {
			if _, ok := config.States[stateName]; !ok {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, stateName)
			}

			if config.Initial.State == stateName {
				return fmt.Errorf("%w: '%s'", ErrCannotRemoveInitialState, stateName)
			}

			delete(config.States, stateName)

			for _, state := range config.States {
				for event, handler := range state.On {
					if handler.Action == "" && targets(handler.Literal, stateName) {
						delete(state.On, event)
					}
				}
			}

			return nil
		},
	}
}

// RenameState creates a fix that renames a state, along with the initial
// state and every handler targeting it.
func RenameState(oldName, newName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Rename state from '%s' to '%s'", oldName, newName),
		Apply: func(config *statemachine.Config) error {
			if _, ok := config.States[newName]; ok {
				return fmt.Errorf("%w: '%s'", ErrStateAlreadyExists, newName)
			}

			state, ok := config.States[oldName]
			if !ok {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, oldName)
			}

			delete(config.States, oldName)
			config.States[newName] = state

			if config.Initial.State == oldName {
				config.Initial.State = newName
			}

			for _, s := range config.States {
				for event, handler := range s.On {
					handler.Literal = retarget(handler.Literal, oldName, newName)

					for _, key := range []string{"state", "overflow", "then", "otherwise"} {
						if v, ok := handler.Params[key]; ok {
							handler.Params[key] = retarget(v, oldName, newName)
						}
					}

					s.On[event] = handler
				}
			}

			return nil
		},
	}
}

// AddContextDefault creates a fix that declares a default value for key in
// the context defaults of a state.
func AddContextDefault(stateName, key string, value any) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Declare a default for '%s' in state '%s'", key, stateName),
		Apply: func(config *statemachine.Config) error {
			state, ok := config.States[stateName]
			if !ok {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, stateName)
			}

			if _, exists := state.Context[key]; exists {
				return fmt.Errorf("%w: '%s' in '%s'", ErrDefaultExists, key, stateName)
			}

			if state.Context == nil {
				state.Context = make(map[string]any)
			}

			state.Context[key] = value
			config.States[stateName] = state

			return nil
		},
	}
}

// ApplyFixes applies a list of fixes to a config.
func ApplyFixes(config *statemachine.Config, fixes []*Fix) error {
	for _, fix := range fixes {
		if fix != nil && fix.Apply != nil {
			err := fix.Apply(config)
			if err != nil {
				return fmt.Errorf("failed to apply fix '%s': %w", fix.Description, err)
			}
		}
	}

	return nil
}

func targets(literal any, state string) bool {
	switch v := literal.(type) {
	case string:
		return v == state
	case map[string]any:
		return v["state"] == state
	default:
		return false
	}
}

func retarget(literal any, oldName, newName string) any {
	switch v := literal.(type) {
	case string:
		if v == oldName {
			return newName
		}
	case map[string]any:
		if v["state"] == oldName {
			v["state"] = newName
		}
	}

	return literal
}
