package main

import (
	"fmt"

	"github.com/amp-labs/typestate/statemachine/validator"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a machine configuration",
		Long: `Checks the structure of the configuration, the actions and effects it
names, required context and reachability. With --strict, warnings fail too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validator.ValidateFileWithOptions(args[0], strict, validator.ActionsRegistered(registry()))
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), result.String())

			return result.Err()
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}
