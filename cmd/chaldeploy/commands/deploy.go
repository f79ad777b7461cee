package commands

import (
	"github.com/spf13/cobra"

	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/handlers"
	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/workload"
)

// Deploy returns the deploy command.
//
// The deploy command provisions the instances of a deployment directory,
// runs its playbook and applies the post-workload networking.
func Deploy(logs *logFlags) *cobra.Command {
	var (
		opts    handlers.DeployOptions
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <path>",
		Short: "Deploy a challenge from its deployment directory",
		Long: `Deploy provisions the Incus instances described by config.yml,
runs challenge.yml with ansible-runner, then pins addresses, attaches
ACLs and adds port forwards.

<path> is a directory holding config.yml, inventory and challenge.yml,
or the name of such a directory under --challenges-dir.

If the playbook fails every instance of the run is torn down, unless
--keep-on-failure is set.

Example:
  chaldeploy deploy web -f
  chaldeploy deploy ./containers/web --test`,
		Args: requireOneArg("deployment path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts, err := logs.options(verbose)
			if err != nil {
				return err
			}
			opts.Path = args[0]
			opts.Log = logOpts
			return handlers.Deploy(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Log every readiness poll and resource change")
	f.BoolVarP(&opts.Mode.Force, "force", "f", false, "Recreate instances that already exist")
	f.BoolVarP(&opts.Mode.KeepOnFailure, "keep-on-failure", "k", false, "Keep instances when the playbook fails")
	f.BoolVarP(&opts.Mode.Apply, "apply", "a", false, "Run against already deployed instances without creating them")
	f.BoolVarP(&opts.Mode.Test, "test", "t", false, "Tear everything down after a successful run")
	f.StringVar(&opts.ChallengesDir, "challenges-dir", config.DefaultChallengesDir, "Directory bare deployment names are looked up in")
	f.StringVar(&opts.IncusConfig, "incus-config", "", "Path to the incus CLI config (default $INCUS_CONF/config.yml or ~/.config/incus/config.yml)")
	f.StringVar(&opts.Runner, "runner", workload.DefaultBinary, "Workload runner binary")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics for the run to this file")
	f.StringVar(&opts.Archive.Bucket, "archive-bucket", "", "Upload runner artifacts to this S3 bucket before discarding them")
	f.StringVar(&opts.Archive.Endpoint, "archive-endpoint", "", "S3 endpoint for S3-compatible storage")
	f.StringVar(&opts.Archive.Region, "archive-region", "", "S3 region (default us-east-1)")

	cmd.MarkFlagsMutuallyExclusive("force", "apply")

	return cmd
}
