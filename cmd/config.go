package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// configCommands prints the computed configuration. The private key is never
// part of the output.
func configCommands(app *verifyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instances computed configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(app.cnf, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			fmt.Fprintf(cmd.OutOrStdout(), "run timeout: %s\n", app.cnf.RunTimeout())
			return nil
		},
	}
	return cmd
}
