package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/typestate/statemachine"
	"github.com/amp-labs/typestate/statemachine/visualizer"
	"github.com/spf13/cobra"
)

var errUnknownFormat = errors.New("unknown graph format")

func newGraphCmd() *cobra.Command {
	var (
		format    string
		direction string
		theme     string
		title     string
		highlight []string
		noActions bool
		noHooks   bool
	)

	cmd := &cobra.Command{
		Use:   "graph <config.yaml>",
		Short: "Export the machine as a diagram",
		Long:  `Prints the states and transitions of a configuration as a Mermaid state diagram or a Graphviz digraph.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := statemachine.LoadConfig(args[0])
			if err != nil {
				return err
			}

			opts := visualizer.DefaultOptions().
				WithDirection(strings.ToUpper(direction)).
				WithTheme(theme).
				WithTitle(title).
				WithHighlightPath(highlight).
				WithShowActions(!noActions).
				WithShowHooks(!noHooks)

			var out string

			switch strings.ToLower(format) {
			case "mermaid":
				out, err = visualizer.GenerateMermaidWithOptions(config, opts)
			case "dot":
				out, err = visualizer.GenerateDOTWithOptions(config, opts)
			default:
				return fmt.Errorf("%w: %q", errUnknownFormat, format)
			}

			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "mermaid", "output format: mermaid or dot")
	flags.StringVar(&direction, "direction", "TD", "diagram direction: TD or LR")
	flags.StringVar(&theme, "theme", "default", "color theme: default or dark")
	flags.StringVar(&title, "title", "", "diagram title (defaults to the machine name)")
	flags.StringSliceVar(&highlight, "highlight", nil, "states to highlight")
	flags.BoolVar(&noActions, "no-actions", false, "hide action names on edges")
	flags.BoolVar(&noHooks, "no-hooks", false, "hide entry, exit and requires details")

	return cmd
}
