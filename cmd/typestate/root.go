package main

import (
	"github.com/amp-labs/typestate/statemachine"
	"github.com/amp-labs/typestate/statemachine/actions"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "typestate",
		Short: "Typestate runs finite state machines described in YAML",
		Long: `Typestate loads a machine configuration, checks it, draws it as a
Mermaid or DOT diagram, and runs it interactively or from a list of events.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if len(envFiles) == 0 {
				return nil
			}

			// Variables already set in the process win over the files.
			return godotenv.Load(envFiles...)
		},
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "load environment variables from these files")

	root.AddCommand(
		newValidateCmd(),
		newGraphCmd(),
		newRunCmd(),
		newChangesCmd(),
	)

	return root
}

// registry is the action registry every command compiles configs with.
func registry() *statemachine.Registry {
	return actions.NewRegistry()
}
