package statemachine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// engine is the reducer shared by every instance of a definition. It never
// mutates the schema; everything it changes goes through the returned triple
// and the scheduler it is handed.
type engine struct {
	schema *Schema
	name   string
	logger Logger
	policy ContextPolicy
}

// resolution is a classified handler result.
type resolution struct {
	state   string
	context Context
	changed bool
}

// transition reduces ev against cur. On an unhandled or rejected event the
// returned triple is cur itself.
func (e *engine) transition(
	ctx context.Context,
	sched Scheduler,
	d *Dispatcher,
	cur Triple,
	ev Event,
) (Triple, Outcome, error) {
	machine := sanitizeMachine(e.name)
	start := time.Now()

	next, outcome, err := e.reduce(sched, d, cur, ev)

	eventsTotal.WithLabelValues(machine, cur.State, sanitizeEvent(ev.Type), string(outcome)).Inc()
	dispatchDuration.WithLabelValues(machine, string(outcome)).Observe(time.Since(start).Seconds())

	switch outcome {
	case OutcomeUnhandled:
		e.logger.EventUnhandled(ctx, machine, cur.State, ev.Type)
	case OutcomeRejected:
		e.logger.SchemaViolation(ctx, machine, cur.State, ev.Type, err)
	case OutcomeTransitioned:
		transitionsTotal.WithLabelValues(machine, cur.State, next.State).Inc()
		e.logger.TransitionCommitted(ctx, machine, cur.State, next.State, ev.Type)
	case OutcomeUpdated, OutcomeNoop:
	}

	return next, outcome, err
}

func (e *engine) reduce(sched Scheduler, d *Dispatcher, cur Triple, ev Event) (Triple, Outcome, error) {
	state, ok := e.schema.States[cur.State]
	if !ok {
		return cur, OutcomeRejected, WrapTransitionError(cur.State, "", ev.Type, ErrUnknownState)
	}

	handler, ok := state.On[ev.Type]
	if !ok || handler == nil || isReserved(ev.Type) {
		return cur, OutcomeUnhandled, nil
	}

	var registered []EffectID

	scope := &Scope{
		State:      cur.State,
		Event:      ev.Type,
		Context:    cur.Context.Clone(),
		Payload:    ev.Payload,
		HasPayload: ev.HasPayload,
		dispatcher: d,
	}

	scope.schedule = func(name string, effect Effect) EffectID {
		id := sched.Schedule(name, e.task(name, kindEffect, func(ctx context.Context) Cleanup {
			return effect(ctx, d)
		}))
		if id != 0 {
			registered = append(registered, id)
		}

		return id
	}

	res, err := e.resolve(scope, cur, handler(scope))

	// A scope that outlives its handler must not register untracked effects.
	scope.schedule = nil

	if err == nil && res.changed {
		res.context = e.schema.Effective(res.state, res.context)
		err = e.checkRequired(res.state, res.context)
	}

	if err != nil {
		for _, id := range registered {
			sched.Cancel(id)
		}

		return cur, OutcomeRejected, WrapTransitionError(cur.State, res.state, ev.Type, err)
	}

	if !res.changed {
		return Triple{
			State:   cur.State,
			Context: cur.Context,
			Effects: append(slices.Clone(cur.Effects), registered...),
		}, OutcomeNoop, nil
	}

	if res.state == cur.State {
		return Triple{
			State:   cur.State,
			Context: res.context,
			Effects: append(slices.Clone(cur.Effects), registered...),
		}, OutcomeUpdated, nil
	}

	// Outgoing effects stop first, then the exit hook runs and is stopped
	// right after, then the entry hook of the incoming state runs.
	for _, id := range cur.Effects {
		sched.Stop(id)
	}

	if state.Exit != nil {
		exit := Exit{
			Context:    res.context.Clone(),
			NextState:  res.state,
			State:      cur.State,
			Dispatcher: d,
		}
		hook := state.Exit
		name := cur.State + "." + ExitKey

		id := sched.Schedule(name, e.task(name, kindExit, func(ctx context.Context) Cleanup {
			return hook(ctx, exit)
		}))
		sched.Stop(id)
	}

	if id := e.enter(sched, d, res.state, cur.State, res.context); id != 0 {
		registered = append(registered, id)
	}

	return Triple{
		State:   res.state,
		Context: res.context,
		Effects: registered,
	}, OutcomeTransitioned, nil
}

// resolve classifies a handler result. Effects carried by tuples are
// scheduled through the scope as they are unwrapped.
func (e *engine) resolve(scope *Scope, cur Triple, tr Transition) (resolution, error) {
	for {
		switch t := tr.(type) {
		case nil, NoOp:
			return resolution{state: cur.State, context: cur.Context}, nil
		case EffectTuple:
			scope.Schedule(t.Effect)
			tr = t.Next
		case StateName:
			target := string(t)
			if target == cur.State {
				return resolution{state: cur.State, context: cur.Context}, nil
			}

			if !e.schema.Has(target) {
				return resolution{state: target}, ErrUnknownTargetState
			}

			return resolution{state: target, context: cur.Context, changed: true}, nil
		case StateTransition:
			if !e.schema.Has(t.State) {
				return resolution{state: t.State}, ErrUnknownTargetState
			}

			next := t.Context
			if next == nil {
				next = Context{}
			}

			return resolution{state: t.State, context: next, changed: true}, nil
		case ContextUpdate:
			next := t.Context
			if e.policy == MergeContext {
				next = cur.Context.Merge(t.Context)
			}

			return resolution{state: cur.State, context: next, changed: true}, nil
		case malformed:
			return resolution{}, t.err()
		default:
			return resolution{}, malformed{value: tr}.err()
		}
	}
}

// checkRequired rejects an effective context that lacks keys its state requires.
func (e *engine) checkRequired(state string, ctx Context) error {
	missing := ctx.Missing(e.schema.States[state].Requires...)
	if len(missing) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrMissingContext, strings.Join(missing, ", "))
}

// enter schedules the entry hook of state, if it declares one.
func (e *engine) enter(sched Scheduler, d *Dispatcher, state, previous string, ctx Context) EffectID {
	hook := e.schema.States[state].Entry
	if hook == nil {
		return 0
	}

	entry := Entry{
		Context:       ctx.Clone(),
		PreviousState: previous,
		State:         state,
		Dispatcher:    d,
	}
	name := state + "." + EntryKey

	return sched.Schedule(name, e.task(name, kindEntry, func(ctx context.Context) Cleanup {
		return hook(ctx, entry)
	}))
}

// initial builds the first triple of an instance and schedules the entry
// hook of the initial state.
func (e *engine) initial(sched Scheduler, d *Dispatcher, init Initial) (Triple, error) {
	if !e.schema.Has(init.State) {
		return Triple{}, WrapStateError(init.State, ErrUnknownState)
	}

	ctx := e.schema.Effective(init.State, init.Context)

	if err := e.checkRequired(init.State, ctx); err != nil {
		return Triple{}, WrapStateError(init.State, err)
	}

	triple := Triple{State: init.State, Context: ctx}

	if id := e.enter(sched, d, init.State, "", ctx); id != 0 {
		triple.Effects = []EffectID{id}
	}

	return triple, nil
}

// task wraps an effect body with tracing, metrics and logging. The returned
// cleanup is never nil so that stopped effects are always accounted for.
func (e *engine) task(name, kind string, body func(ctx context.Context) Cleanup) Task {
	machine := sanitizeMachine(e.name)

	return func(ctx context.Context) Cleanup {
		spanCtx, span := startEffectSpan(ctx, machine, name, kind)
		cleanup := body(spanCtx)

		span.End()

		effectsStartedTotal.WithLabelValues(machine, kind).Inc()
		runningEffects.WithLabelValues(machine).Inc()
		e.logger.EffectStarted(ctx, machine, name)

		return func() {
			if cleanup != nil {
				cleanup()
			}

			runningEffects.WithLabelValues(machine).Dec()
			effectsStoppedTotal.WithLabelValues(machine, kind).Inc()
			e.logger.EffectStopped(ctx, machine, name)
		}
	}
}
