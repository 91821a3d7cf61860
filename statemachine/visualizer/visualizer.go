// Package visualizer generates Mermaid and Graphviz diagrams from machine
// configurations.
package visualizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Visualizer errors.
var (
	ErrConfigNil      = errors.New("config cannot be nil")
	ErrNoInitialState = errors.New("config must have an initial state")
)

// GenerateMermaid converts a Config to a Mermaid state diagram.
func GenerateMermaid(config *statemachine.Config) (string, error) {
	return GenerateMermaidWithOptions(config, DefaultOptions())
}

// GenerateMermaidFromFile loads a config from a file and generates a Mermaid diagram.
func GenerateMermaidFromFile(path string) (string, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	return GenerateMermaid(config)
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
func GenerateMermaidWithOptions(config *statemachine.Config, opts Options) (string, error) {
	if err := check(config); err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	fmt.Fprintf(&sb, "---\ntitle: %s\n---\n", title(config, opts))
	sb.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&sb, "    direction %s\n", direction(opts))
	fmt.Fprintf(&sb, "    [*] --> %s\n", config.Initial.State)

	highlighted := set(opts.HighlightPath)
	edges := groupEdges(config)

	for _, name := range config.StateNames() {
		state := config.States[name]

		if opts.ShowHooks {
			if details := stateDetails(state); details != "" {
				fmt.Fprintf(&sb, "    %s: %s\\n%s\n", name, name, details)
			}
		}

		switch {
		case highlighted[name]:
			fmt.Fprintf(&sb, "    class %s highlighted\n", name)
		case len(state.On) == 0:
			fmt.Fprintf(&sb, "    class %s terminalState\n", name)
		case state.Entry != nil || state.Exit != nil:
			fmt.Fprintf(&sb, "    class %s effectState\n", name)
		}

		for _, edge := range edges[name] {
			label := edgeLabel(edge, opts)
			if label != "" {
				label = ": " + label
			}

			fmt.Fprintf(&sb, "    %s --> %s%s\n", edge.From, edge.To, label)
		}

		if len(state.On) == 0 {
			fmt.Fprintf(&sb, "    %s --> [*]\n", name)
		}
	}

	p := opts.palette()

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "    classDef effectState %s\n", p.state)
	fmt.Fprintf(&sb, "    classDef terminalState %s\n", p.terminal)
	fmt.Fprintf(&sb, "    classDef highlighted %s\n", p.highlighted)
	sb.WriteString("```\n")

	return sb.String(), nil
}

// GenerateDOT converts a Config to a Graphviz digraph.
func GenerateDOT(config *statemachine.Config) (string, error) {
	return GenerateDOTWithOptions(config, DefaultOptions())
}

// GenerateDOTWithOptions generates a Graphviz digraph with custom options.
func GenerateDOTWithOptions(config *statemachine.Config, opts Options) (string, error) {
	if err := check(config); err != nil {
		return "", err
	}

	rankdir := "TB"
	if direction(opts) == "LR" {
		rankdir = "LR"
	}

	highlighted := set(opts.HighlightPath)
	edges := groupEdges(config)

	var sb strings.Builder

	fmt.Fprintf(&sb, "digraph %q {\n", config.Name)
	fmt.Fprintf(&sb, "    label=%q;\n", title(config, opts))
	sb.WriteString("    labelloc=t;\n")
	fmt.Fprintf(&sb, "    rankdir=%s;\n", rankdir)
	sb.WriteString("    node [shape=box, style=rounded];\n")
	sb.WriteString("    __start [shape=point];\n")
	fmt.Fprintf(&sb, "    __start -> %q;\n", config.Initial.State)

	for _, name := range config.StateNames() {
		state := config.States[name]

		var attrs []string

		if opts.ShowHooks {
			if details := stateDetails(state); details != "" {
				attrs = append(attrs, `label="`+dotEscape(name)+`\n`+dotEscape(details)+`"`)
			}
		}

		if len(state.On) == 0 {
			attrs = append(attrs, "peripheries=2")
		}

		if highlighted[name] {
			attrs = append(attrs, `style="rounded,filled"`, `fillcolor="#fff9c4"`)
		}

		if len(attrs) > 0 {
			fmt.Fprintf(&sb, "    %q [%s];\n", name, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(&sb, "    %q;\n", name)
		}

		for _, edge := range edges[name] {
			if label := edgeLabel(edge, opts); label != "" {
				fmt.Fprintf(&sb, "    %q -> %q [label=%q];\n", edge.From, edge.To, label)
			} else {
				fmt.Fprintf(&sb, "    %q -> %q;\n", edge.From, edge.To)
			}
		}
	}

	sb.WriteString("}\n")

	return sb.String(), nil
}

func check(config *statemachine.Config) error {
	if config == nil {
		return ErrConfigNil
	}

	if config.Initial.State == "" {
		return ErrNoInitialState
	}

	return nil
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func title(config *statemachine.Config, opts Options) string {
	if opts.Title != "" {
		return opts.Title
	}

	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(config.Name))
}

func direction(opts Options) string {
	if opts.Direction == "LR" {
		return "LR"
	}

	return "TB"
}

func set(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}

	return out
}

func groupEdges(config *statemachine.Config) map[string][]statemachine.Edge {
	out := make(map[string][]statemachine.Edge)
	for _, edge := range config.Edges() {
		out[edge.From] = append(out[edge.From], edge)
	}

	return out
}

func edgeLabel(edge statemachine.Edge, opts Options) string {
	var label string

	if opts.ShowEvents {
		label = edge.Event
	}

	if opts.ShowActions && edge.Action != "" {
		if label != "" {
			label += " "
		}

		label += "(" + edge.Action + ")"
	}

	return label
}

// stateDetails describes the hooks and requirements of a state on one line.
func stateDetails(state statemachine.StateConfig) string {
	var parts []string

	if state.Entry != nil {
		parts = append(parts, "entry: "+state.Entry.Effect)
	}

	if state.Exit != nil {
		parts = append(parts, "exit: "+state.Exit.Effect)
	}

	if len(state.Requires) > 0 {
		parts = append(parts, "requires: "+strings.Join(state.Requires, ", "))
	}

	if len(parts) == 0 {
		return ""
	}

	return "[" + strings.Join(parts, "; ") + "]"
}
