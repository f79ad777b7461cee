package commands

import (
	"github.com/spf13/cobra"

	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/handlers"
)

// Example returns the example command.
func Example() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an annotated sample config.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Example(cmd.OutOrStdout())
		},
	}
}
