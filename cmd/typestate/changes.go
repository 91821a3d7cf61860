package main

import (
	"encoding/json"
	"fmt"

	"github.com/amp-labs/typestate/statemachine/publish"
	"github.com/spf13/cobra"
)

func newChangesCmd() *cobra.Command {
	var (
		machine string
		after   string
		count   int64
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List changes published to Redis",
		Long: `Reads the change stream configured through the REDIS_* environment
variables and prints one line per change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := publish.LoadRedisConfig()
			if err != nil {
				return err
			}

			client, err := publish.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			stream := publish.NewStream(client, cfg.Options()...)

			changes, err := stream.Read(cmd.Context(), stream.Key(machine), after, count)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if asJSON {
				encoder := json.NewEncoder(out)
				for _, change := range changes {
					if err := encoder.Encode(change); err != nil {
						return err
					}
				}

				return nil
			}

			for _, change := range changes {
				fmt.Fprintf(out, "%s %s %s: %s -> %s (%s)\n",
					change.At.Format("15:04:05.000"), change.Machine, change.Event, change.From, change.To, change.Outcome)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&machine, "machine", "m", "", "machine name, when streams are per machine")
	flags.StringVar(&after, "after", "", "only changes after this stream entry id")
	flags.Int64VarP(&count, "count", "n", 100, "maximum number of changes") //nolint:mnd
	flags.BoolVar(&asJSON, "json", false, "print changes as JSON lines")

	return cmd
}
