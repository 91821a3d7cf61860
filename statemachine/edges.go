package statemachine

// Edge is a transition a configuration declares.
type Edge struct {
	From  string
	Event string
	To    string
	// Action is the registered action taking the edge, empty for literals.
	Action string
}

// targetParams are the action parameters that may name a target state.
var targetParams = []string{"state", "overflow", "then", "otherwise"}

// Edges returns the transitions the configuration declares, ordered by
// source state and then event. A literal that only updates the context is
// not an edge. Targets of registered actions are found only in the
// parameters state, overflow, then and otherwise; whatever an action decides
// at run time beyond those is invisible here.
func (c *Config) Edges() []Edge {
	var edges []Edge

	for _, from := range c.StateNames() {
		on := c.States[from].On

		events := make([]string, 0, len(on))
		for event := range on {
			events = append(events, event)
		}

		sortNatural(events)

		for _, event := range events {
			hc := on[event]

			if hc.Action == "" {
				if to, ok := literalTarget(hc.Literal); ok {
					edges = append(edges, Edge{From: from, Event: event, To: to})
				}

				continue
			}

			seen := make(map[string]bool)

			for _, key := range targetParams {
				to, ok := literalTarget(hc.Params[key])
				if !ok || seen[to] {
					continue
				}

				if _, known := c.States[to]; !known {
					continue
				}

				seen[to] = true
				edges = append(edges, Edge{From: from, Event: event, To: to, Action: hc.Action})
			}
		}
	}

	return edges
}

// literalTarget returns the state a literal transition moves to.
func literalTarget(value any) (string, bool) {
	if value == nil {
		return "", false
	}

	switch t := Parse(value).(type) {
	case StateName:
		return string(t), true
	case StateTransition:
		return t.State, true
	default:
		return "", false
	}
}
