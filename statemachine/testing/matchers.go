package testing

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/amp-labs/typestate/statemachine"
)

// Matcher errors.
var (
	ErrNoMatchersPassed     = errors.New("no matchers passed")
	ErrStateNotVisited      = errors.New("state was not visited")
	ErrTransitionNotTaken   = errors.New("transition was not taken")
	ErrContextKeyNotExist   = errors.New("context key does not exist")
	ErrContextValueMismatch = errors.New("context value mismatch")
	ErrUnexpectedState      = errors.New("unexpected state")
	ErrOutcomeNotSeen       = errors.New("event outcome was not seen")
)

// Matcher defines an assertion matcher interface.
type Matcher interface {
	Match(m *TestMachine) (bool, error)
	Description() string
}

// StateWasVisited creates a matcher that checks if a state was entered.
func StateWasVisited(name string) Matcher {
	return &stateVisitedMatcher{stateName: name}
}

type stateVisitedMatcher struct {
	stateName string
}

func (m *stateVisitedMatcher) Match(tm *TestMachine) (bool, error) {
	for _, state := range tm.Path() {
		if state == m.stateName {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: '%s'", ErrStateNotVisited, m.stateName)
}

func (m *stateVisitedMatcher) Description() string {
	return fmt.Sprintf("state '%s' should be visited", m.stateName)
}

// TransitionWasTaken creates a matcher that checks if a transition occurred.
func TransitionWasTaken(from, to string) Matcher {
	return &transitionTakenMatcher{from: from, to: to}
}

type transitionTakenMatcher struct {
	from string
	to   string
}

func (m *transitionTakenMatcher) Match(tm *TestMachine) (bool, error) {
	for _, entry := range tm.Trace() {
		if entry.Outcome == statemachine.OutcomeTransitioned && entry.From == m.from && entry.To == m.to {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: from '%s' to '%s'", ErrTransitionNotTaken, m.from, m.to)
}

func (m *transitionTakenMatcher) Description() string {
	return fmt.Sprintf("transition from '%s' to '%s' should be taken", m.from, m.to)
}

// InState creates a matcher that checks the current state.
func InState(name string) Matcher {
	return &inStateMatcher{stateName: name}
}

type inStateMatcher struct {
	stateName string
}

func (m *inStateMatcher) Match(tm *TestMachine) (bool, error) {
	if actual := tm.State(); actual != m.stateName {
		return false, fmt.Errorf("%w: expected '%s', got '%s'", ErrUnexpectedState, m.stateName, actual)
	}

	return true, nil
}

func (m *inStateMatcher) Description() string {
	return fmt.Sprintf("machine should be in state '%s'", m.stateName)
}

// ContextContains creates a matcher that checks a value of the current context.
func ContextContains(key string, value any) Matcher {
	return &contextContainsMatcher{key: key, value: value}
}

type contextContainsMatcher struct {
	key   string
	value any
}

func (m *contextContainsMatcher) Match(tm *TestMachine) (bool, error) {
	actual, exists := tm.Context().Get(m.key)
	if !exists {
		return false, fmt.Errorf("%w: '%s'", ErrContextKeyNotExist, m.key)
	}

	if !reflect.DeepEqual(actual, m.value) {
		return false, fmt.Errorf("%w: context[%s] = %v, expected %v", ErrContextValueMismatch, m.key, actual, m.value)
	}

	return true, nil
}

func (m *contextContainsMatcher) Description() string {
	return fmt.Sprintf("context should contain %s = %v", m.key, m.value)
}

// EventWas creates a matcher that checks that event was reduced with the
// given outcome at least once.
func EventWas(event string, outcome statemachine.Outcome) Matcher {
	return &outcomeMatcher{event: event, outcome: outcome}
}

// EventWasUnhandled is EventWas with OutcomeUnhandled.
func EventWasUnhandled(event string) Matcher {
	return EventWas(event, statemachine.OutcomeUnhandled)
}

// EventWasRejected is EventWas with OutcomeRejected.
func EventWasRejected(event string) Matcher {
	return EventWas(event, statemachine.OutcomeRejected)
}

type outcomeMatcher struct {
	event   string
	outcome statemachine.Outcome
}

func (m *outcomeMatcher) Match(tm *TestMachine) (bool, error) {
	for _, entry := range tm.Trace() {
		if entry.Event == m.event && entry.Outcome == m.outcome {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: %s was never %s", ErrOutcomeNotSeen, m.event, m.outcome)
}

func (m *outcomeMatcher) Description() string {
	return fmt.Sprintf("event '%s' should be %s", m.event, m.outcome)
}

// All creates a matcher that requires all sub-matchers to pass.
func All(matchers ...Matcher) Matcher {
	return &allMatcher{matchers: matchers}
}

type allMatcher struct {
	matchers []Matcher
}

func (m *allMatcher) Match(tm *TestMachine) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(tm)
		if !matched || err != nil {
			return false, err
		}
	}

	return true, nil
}

func (m *allMatcher) Description() string {
	return "all matchers should pass"
}

// Any creates a matcher that requires at least one sub-matcher to pass.
func Any(matchers ...Matcher) Matcher {
	return &anyMatcher{matchers: matchers}
}

type anyMatcher struct {
	matchers []Matcher
}

func (m *anyMatcher) Match(tm *TestMachine) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(tm)
		if matched && err == nil {
			return true, nil
		}
	}

	return false, ErrNoMatchersPassed
}

func (m *anyMatcher) Description() string {
	return "at least one matcher should pass"
}
