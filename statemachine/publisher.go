package statemachine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Change describes one committed event that changed a machine's state or
// context.
type Change struct {
	ID        uuid.UUID `json:"id"`
	MachineID uuid.UUID `json:"machineId"`
	Machine   string    `json:"machine"`
	Event     string    `json:"event"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Outcome   Outcome   `json:"outcome"`
	Context   Context   `json:"context"`
	At        time.Time `json:"at"`
}

// Transitioned reports whether the change moved the machine to another state.
func (c Change) Transitioned() bool {
	return c.Outcome == OutcomeTransitioned
}

// Publisher forwards committed changes somewhere outside the machine. It is
// called from the dispatching goroutine, after the commit and before the
// commit's effects run. A failed publish is logged and does not affect the
// machine.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, change Change) error

func (f PublisherFunc) Publish(ctx context.Context, change Change) error {
	return f(ctx, change)
}
