package statemachine

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// flushKey marks the contexts handed to effects of a machine, so that a
// machine closed from inside one of its own effects does not wait on itself.
type flushKey struct{}

// Machine is a running instance of a definition. Events are reduced one at a
// time: whichever goroutine finds the machine idle drains the event queue,
// and events sent meanwhile (including from effects) are queued behind the
// current one. Effects of a commit are flushed after the commit is visible.
type Machine struct {
	id         uuid.UUID
	def        *Definition
	engine     engine
	sched      Scheduler
	dispatcher *Dispatcher
	opts       options
	baseCtx    context.Context //nolint:containedctx // values reach every effect

	mu          sync.Mutex
	triple      Triple
	view        View
	queue       []Event
	draining    bool
	subscribers map[int]func(View)
	nextSub     int

	closed   *atomic.Bool
	done     chan struct{}
	closeErr error
}

func start(ctx context.Context, def *Definition, init Initial, o options) (*Machine, error) {
	m := &Machine{
		id:  uuid.New(),
		def: def,
		engine: engine{
			schema: def.schema,
			name:   def.schema.Name,
			logger: o.logger,
			policy: o.policy,
		},
		sched:       o.scheduler(),
		opts:        o,
		baseCtx:     context.WithoutCancel(ctx),
		subscribers: make(map[int]func(View)),
		closed:      atomic.NewBool(false),
		done:        make(chan struct{}),
	}

	m.dispatcher = NewDispatcher(def.schema, m.send, o.logger)

	triple, err := m.engine.initial(m.sched, m.dispatcher, init)
	if err != nil {
		_ = m.sched.Close(ctx)

		o.logger.SchemaViolation(ctx, sanitizeMachine(def.schema.Name), init.State, "", err)

		return nil, err
	}

	m.triple = triple
	m.view = project(def.schema, triple, m.dispatcher)

	instancesActive.WithLabelValues(sanitizeMachine(def.schema.Name), def.fingerprint).Inc()

	// The initial entry hook is flushed while holding the drain token, so
	// events it sends are queued until it has run.
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	m.sched.Flush(m.flushContext(m.baseCtx))
	m.drain()

	return m, nil
}

// ID returns the instance identifier.
func (m *Machine) ID() uuid.UUID {
	return m.id
}

// Definition returns the definition the machine was created from.
func (m *Machine) Definition() *Definition {
	return m.def
}

// View returns the projection of the last committed triple. Callers must
// treat it as read-only.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.view
	view.States = maps.Clone(m.view.States)
	view.Context = m.view.Context.Clone()

	return view
}

// State returns the current state name.
func (m *Machine) State() string {
	return m.View().Current
}

// Context returns a copy of the current effective context.
func (m *Machine) Context() Context {
	return m.View().Context.Clone()
}

// Effects returns how many effects belong to the current state.
func (m *Machine) Effects() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.triple.Effects)
}

// Dispatcher returns the machine's dispatcher.
func (m *Machine) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Send dispatches event with an optional payload. It never fails: unknown and
// unhandled events are reported to the logger, and sending to a closed
// machine does nothing.
func (m *Machine) Send(event string, payload ...any) {
	m.dispatcher.Dispatch(event, payload...)
}

// Closed reports whether the machine has been torn down.
func (m *Machine) Closed() bool {
	return m.closed.Load()
}

// Subscribe registers fn to receive the view after every commit that changed
// the state or context. It returns a function that removes the subscription.
func (m *Machine) Subscribe(fn func(View)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(m.subscribers, id)
	}
}

// Close tears the machine down: queued events are dropped, every running
// effect is stopped and its cleanup has run when Close returns. Later sends
// are no-ops. Closing twice does nothing.
//
// An effect may close its own machine; it must pass the context it was
// given so that teardown happens once the current event has been handled.
func (m *Machine) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		if m.inEffect(ctx) {
			return m.closeErr
		}

		return m.wait(ctx)
	}

	m.mu.Lock()
	m.queue = nil

	if m.draining {
		m.mu.Unlock()

		if m.inEffect(ctx) {
			return nil
		}

		return m.wait(ctx)
	}

	m.draining = true
	m.mu.Unlock()

	// Teardown runs on its own goroutine so that ctx bounds the wait, and so
	// that a pool scheduler is never stopped from one of its own tasks.
	go m.teardown()

	if m.inEffect(ctx) {
		return nil
	}

	return m.wait(ctx)
}

// wait blocks until teardown has completed or ctx is done.
func (m *Machine) wait(ctx context.Context) error {
	if ctx == nil {
		<-m.done

		return m.closeErr
	}

	select {
	case <-m.done:
		return m.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) teardown() {
	m.closeErr = m.sched.Close(m.flushContext(m.baseCtx))

	instancesActive.WithLabelValues(sanitizeMachine(m.def.schema.Name), m.def.fingerprint).Dec()

	close(m.done)
}

func (m *Machine) inEffect(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	owner, ok := ctx.Value(flushKey{}).(*Machine)

	return ok && owner == m
}

func (m *Machine) flushContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, flushKey{}, m)
}

// send queues ev and drains the queue unless another goroutine already is.
func (m *Machine) send(ev Event) {
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	m.queue = append(m.queue, ev)

	if m.draining {
		m.mu.Unlock()

		return
	}

	m.draining = true
	m.mu.Unlock()

	m.drain()
}

// drain runs while holding the drain token and releases it once the queue
// is empty. A machine closed meanwhile is torn down by the drainer.
func (m *Machine) drain() {
	for {
		m.mu.Lock()

		if m.closed.Load() {
			m.queue = nil
			m.mu.Unlock()

			// A detached scheduler may be running this drain on its own
			// worker, which must not wait for itself.
			if _, ok := m.sched.(detachedScheduler); ok {
				go m.teardown()
			} else {
				m.teardown()
			}

			return
		}

		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()

			return
		}

		ev := m.queue[0]
		m.queue = m.queue[1:]
		cur := m.triple
		m.mu.Unlock()

		m.step(cur, ev)
	}
}

// step reduces one event, commits the result, reports it and flushes the
// effects the commit produced.
func (m *Machine) step(cur Triple, ev Event) {
	name := sanitizeMachine(m.def.schema.Name)

	ctx, span := startDispatchSpan(m.baseCtx, name, m.id.String(), cur.State, ev.Type)
	next, outcome, err := m.engine.transition(ctx, m.sched, m.dispatcher, cur, ev)
	endDispatchSpan(span, next.State, outcome, err)

	changed := outcome == OutcomeTransitioned || outcome == OutcomeUpdated

	var (
		view        View
		subscribers []func(View)
	)

	m.mu.Lock()
	m.triple = next

	if changed {
		m.view = project(m.def.schema, next, m.dispatcher)
		view = m.view

		for _, id := range slices.Sorted(maps.Keys(m.subscribers)) {
			subscribers = append(subscribers, m.subscribers[id])
		}
	}
	m.mu.Unlock()

	switch outcome {
	case OutcomeUnhandled:
		for _, h := range m.opts.hooks {
			if h.OnUnhandled != nil {
				h.OnUnhandled(ctx, cur.State, ev.Type)
			}
		}
	case OutcomeRejected:
		for _, h := range m.opts.hooks {
			if h.OnRejected != nil {
				h.OnRejected(ctx, cur.State, ev.Type, err)
			}
		}
	case OutcomeTransitioned, OutcomeUpdated:
		m.commit(ctx, name, cur, next, ev, outcome, view, subscribers)
	case OutcomeNoop:
	}

	m.sched.Flush(m.flushContext(ctx))
}

func (m *Machine) commit(
	ctx context.Context,
	name string,
	cur, next Triple,
	ev Event,
	outcome Outcome,
	view View,
	subscribers []func(View),
) {
	for _, fn := range subscribers {
		fn(view)
	}

	if len(m.opts.hooks) == 0 && len(m.opts.publishers) == 0 {
		return
	}

	change := Change{
		ID:        uuid.New(),
		MachineID: m.id,
		Machine:   m.def.schema.Name,
		Event:     ev.Type,
		From:      cur.State,
		To:        next.State,
		Outcome:   outcome,
		Context:   next.Context.Clone(),
		At:        time.Now().UTC(),
	}

	for _, h := range m.opts.hooks {
		if h.OnCommit != nil {
			h.OnCommit(ctx, change)
		}
	}

	for _, p := range m.opts.publishers {
		if err := p.Publish(ctx, change); err != nil {
			m.opts.logger.PublishFailed(ctx, name, err)
		}
	}
}
