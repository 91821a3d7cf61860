package actions

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/typestate/statemachine"
)

// Capture records the events an effect dispatches, without a machine.
type Capture struct {
	mu         sync.Mutex
	events     []statemachine.Event
	dispatcher *statemachine.Dispatcher
}

// NewCapture creates a capture accepting the given event names. Other events
// are dropped like a dispatcher drops undeclared events.
func NewCapture(events ...string) *Capture {
	on := make(map[string]statemachine.Handler, len(events))
	for _, event := range events {
		on[event] = func(*statemachine.Scope) statemachine.Transition { return statemachine.Stay() }
	}

	c := &Capture{}
	c.dispatcher = statemachine.NewDispatcher(&statemachine.Schema{
		Name:   "capture",
		States: map[string]statemachine.State{"capture": {On: on}},
	}, c.record, nil)

	return c
}

func (c *Capture) record(ev statemachine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)
}

// Dispatcher returns the dispatcher to hand to effects.
func (c *Capture) Dispatcher() *statemachine.Dispatcher {
	return c.dispatcher
}

// Events returns the recorded events in dispatch order.
func (c *Capture) Events() []statemachine.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.events)
}

// Names returns the names of the recorded events in dispatch order.
func (c *Capture) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.events))
	for i, ev := range c.events {
		names[i] = ev.Type
	}

	return names
}

// Len returns how many events were recorded.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

// Start runs effect against the capture and registers its cleanup with t.
// The returned stop function runs the cleanup early; it is safe to call twice.
func (c *Capture) Start(t *testing.T, effect statemachine.Effect) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cleanup := effect(ctx, c.dispatcher)

	var once sync.Once

	stop = func() {
		once.Do(func() {
			cancel()

			if cleanup != nil {
				cleanup()
			}
		})
	}

	t.Cleanup(stop)

	return stop
}

// WaitFor polls until at least n events were recorded or timeout elapses,
// and reports whether they were.
func (c *Capture) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if c.Len() >= n {
			return true
		}

		time.Sleep(time.Millisecond)
	}

	return c.Len() >= n
}
