package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowEvents labels edges with the event taking them.
	ShowEvents bool

	// ShowActions adds the registered action of an edge to its label.
	ShowActions bool

	// ShowHooks lists entry and exit effects and required context in state nodes.
	ShowHooks bool

	// Direction controls diagram flow: "TD" (top-down) or "LR" (left-right).
	Direction string

	// HighlightPath highlights a specific state path through the diagram.
	HighlightPath []string

	// Theme controls the color scheme: "default" or "dark".
	Theme string

	// Title is shown above the diagram. Empty uses the config name.
	Title string
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowEvents:  true,
		ShowActions: true,
		ShowHooks:   true,
		Direction:   "TD",
		Theme:       "default",
	}
}

// WithShowEvents enables/disables event labels.
func (o Options) WithShowEvents(show bool) Options {
	o.ShowEvents = show

	return o
}

// WithShowActions enables/disables action names on edges.
func (o Options) WithShowActions(show bool) Options {
	o.ShowActions = show

	return o
}

// WithShowHooks enables/disables hook and requirement details.
func (o Options) WithShowHooks(show bool) Options {
	o.ShowHooks = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithTheme sets the color theme.
func (o Options) WithTheme(theme string) Options {
	o.Theme = theme

	return o
}

// WithTitle sets the diagram title.
func (o Options) WithTitle(title string) Options {
	o.Title = title

	return o
}

type palette struct {
	state, terminal, highlighted string
}

var themes = map[string]palette{
	"default": {
		state:       "fill:#e1f5ff,stroke:#01579b,stroke-width:2px",
		terminal:    "fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px",
		highlighted: "fill:#fff9c4,stroke:#f57f17,stroke-width:3px",
	},
	"dark": {
		state:       "fill:#263238,stroke:#80cbc4,color:#eceff1,stroke-width:2px",
		terminal:    "fill:#1b5e20,stroke:#a5d6a7,color:#eceff1,stroke-width:2px",
		highlighted: "fill:#4e342e,stroke:#ffb74d,color:#fff3e0,stroke-width:3px",
	},
}

func (o Options) palette() palette {
	if p, ok := themes[o.Theme]; ok {
		return p
	}

	return themes["default"]
}
