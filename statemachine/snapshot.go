package statemachine

// View is the read-only projection of a committed triple. It carries the
// dispatcher so callers can send events straight from it. Running effects
// are never exposed.
type View struct {
	*Dispatcher

	// Current is the name of the current state.
	Current string
	// States has one entry per declared state, true only for Current.
	States map[string]bool
	// Context is the effective context of Current. It is never nil.
	Context Context
}

// Is reports whether the view is in state.
func (v View) Is(state string) bool {
	return v.Current == state
}

// Send dispatches event through the view's dispatcher.
func (v View) Send(event string, payload ...any) {
	if v.Dispatcher != nil {
		v.Dispatch(event, payload...)
	}
}

// project builds the view of a triple. The context handed out is a copy.
func project(schema *Schema, triple Triple, d *Dispatcher) View {
	states := make(map[string]bool, len(schema.States))
	for name := range schema.States {
		states[name] = name == triple.State
	}

	return View{
		Dispatcher: d,
		Current:    triple.State,
		States:     states,
		Context:    triple.Context.Clone(),
	}
}
