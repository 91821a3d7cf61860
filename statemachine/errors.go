package statemachine

import (
	"errors"
	"fmt"
)

// Predefined error types.
var (
	// ErrUnknownState indicates a state name that the schema does not declare.
	ErrUnknownState = errors.New("state not found in schema")
	// ErrUnknownTargetState indicates a transition towards an undeclared state.
	ErrUnknownTargetState = errors.New("transition target not found in schema")
	// ErrUnknownEvent indicates an event name no state of the schema handles.
	ErrUnknownEvent = errors.New("event not declared by any state")
	// ErrMalformedTransition indicates a handler result of an unrecognised shape.
	ErrMalformedTransition = errors.New("malformed transition")
	// ErrMissingContext indicates a context lacking keys its state requires.
	ErrMissingContext = errors.New("context is missing required keys")
	// ErrExitWithoutHandlers indicates a state with an exit hook but no events, so it can never be left.
	ErrExitWithoutHandlers = errors.New("exit hook declared on a state without event handlers")
	// ErrReservedEventName indicates an event named like an entry or exit hook.
	ErrReservedEventName = errors.New("event name is reserved")
	// ErrNilHandler indicates an event bound to nothing.
	ErrNilHandler = errors.New("handler is nil")
	// ErrNoStates indicates an empty schema.
	ErrNoStates = errors.New("schema declares no states")
	// ErrStateNameRequired indicates an empty state name.
	ErrStateNameRequired = errors.New("state name is required")
	// ErrInvalidInitialState indicates an initial state value of an unsupported shape.
	ErrInvalidInitialState = errors.New("invalid initial state")
	// ErrMachineClosed is returned by operations on a machine that has been torn down.
	ErrMachineClosed = errors.New("machine is closed")
	// ErrInvalidContextPolicy indicates a context policy name other than replace or merge.
	ErrInvalidContextPolicy = errors.New("invalid context policy")

	// ErrConfigNameRequired indicates that a configuration name is required.
	ErrConfigNameRequired = errors.New("config name is required")
	// ErrInitialStateRequired indicates that an initial state is required.
	ErrInitialStateRequired = errors.New("initial state is required")
	// ErrInitialStateNotFound indicates that the initial state does not exist.
	ErrInitialStateNotFound = errors.New("initial state does not exist")
	// ErrHandlerConflict indicates a handler config with both an action and a literal transition.
	ErrHandlerConflict = errors.New("handler config mixes an action with a literal transition")
	// ErrUnknownActionType indicates that an unknown action type was encountered.
	ErrUnknownActionType = errors.New("unknown action type")
	// ErrInvalidActionConfig indicates that an action config is invalid.
	ErrInvalidActionConfig = errors.New("invalid action config")
	// ErrParameterNotFound is returned when a required parameter is not found.
	ErrParameterNotFound = errors.New("parameter not found")
	// ErrParameterTypeMismatch is returned when a parameter has an unexpected type.
	ErrParameterTypeMismatch = errors.New("parameter type mismatch")
)

// StateError wraps an error with state context.
type StateError struct {
	State string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// TransitionError wraps an error with transition context.
type TransitionError struct {
	From  string
	To    string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	switch {
	case e.To == "" && e.Event == "":
		return fmt.Sprintf("transition from %s: %v", e.From, e.Err)
	case e.To == "":
		return fmt.Sprintf("transition from %s on %s: %v", e.From, e.Event, e.Err)
	case e.Event == "":
		return fmt.Sprintf("transition %s -> %s: %v", e.From, e.To, e.Err)
	default:
		return fmt.Sprintf("transition %s -> %s on %s: %v", e.From, e.To, e.Event, e.Err)
	}
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// WrapStateError wraps an error with state context.
func WrapStateError(state string, err error) error {
	if err == nil {
		return nil
	}

	return &StateError{
		State: state,
		Err:   err,
	}
}

// WrapTransitionError wraps an error with transition context.
func WrapTransitionError(from, to, event string, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From:  from,
		To:    to,
		Event: event,
		Err:   err,
	}
}
