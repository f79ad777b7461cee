package commands

import (
	"github.com/spf13/cobra"

	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/handlers"
)

// Purge returns the purge command.
func Purge(logs *logFlags) *cobra.Command {
	var opts handlers.PurgeOptions

	cmd := &cobra.Command{
		Use:   "purge <instance>",
		Short: "Destroy an instance with its forwards and exclusive ACLs",
		Long: `Purge destroys one instance. Port forwards targeting its addresses
are removed and ACLs used by no other instance are deleted.

Example:
  chaldeploy purge web --remote lab --project ctf

WARNING: This operation is irreversible.`,
		Args: requireOneArg("instance name"),
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts, err := logs.options(false)
			if err != nil {
				return err
			}
			opts.Instance = args[0]
			opts.Log = logOpts
			return handlers.Purge(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", "local", "Incus remote of the instance")
	cmd.Flags().StringVar(&opts.Project, "project", "default", "Incus project of the instance")
	cmd.Flags().StringVar(&opts.IncusConfig, "incus-config", "", "Path to the incus CLI config")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}
