package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/metrics"
	"github.com/ringzer0/chaldeploy/internal/orchestration"
	"github.com/ringzer0/chaldeploy/internal/platform/s3"
	"github.com/ringzer0/chaldeploy/internal/util/prerequisites"
	"github.com/ringzer0/chaldeploy/internal/util/retry"
	"github.com/ringzer0/chaldeploy/internal/workload"
)

// Environment variables holding the archive credentials.
const (
	EnvS3AccessKey = "CHALDEPLOY_S3_ACCESS_KEY"
	EnvS3SecretKey = "CHALDEPLOY_S3_SECRET_KEY"
)

// ArchiveOptions configures artifact upload. An empty bucket disables it.
type ArchiveOptions struct {
	Bucket   string
	Endpoint string
	Region   string
}

// DeployOptions holds everything the deploy command collects from flags.
type DeployOptions struct {
	// Path is a deployment directory or a name under ChallengesDir.
	Path          string
	ChallengesDir string
	IncusConfig   string
	Runner        string
	MetricsFile   string
	Archive       ArchiveOptions
	Mode          orchestration.Options
	Log           LogOptions
}

// Factory function variables for deploy - can be replaced in tests.
var (
	resolveLayout  = config.ResolveLayout
	loadDeployment = config.LoadFile

	checkPrerequisites = prerequisites.CheckDeploy

	newRunner = func(binary string) workload.Runner {
		return workload.NewAnsibleRunner(binary)
	}

	newArchiver = func(ctx context.Context, opts s3.Options) (workload.Archiver, error) {
		return s3.NewClient(ctx, opts)
	}
)

// Deploy handles the deploy command.
//
// It resolves the deployment directory, loads and validates config.yml,
// checks the runner is installed, and runs the orchestrator. A summary is
// printed whether the run succeeds or not, and run metrics are written
// when a metrics file is configured.
func Deploy(ctx context.Context, opts DeployOptions) error {
	layout, err := resolveLayout(opts.Path, opts.ChallengesDir)
	if err != nil {
		return err
	}
	dep, err := loadDeployment(layout.ConfigPath())
	if err != nil {
		return err
	}

	runner := opts.Runner
	if runner == "" {
		runner = workload.DefaultBinary
	}
	if err := checkPrerequisites(ctx, runner).Error(); err != nil {
		return err
	}

	timeouts := loadTimeouts()
	connector, err := newConnector(opts.IncusConfig, timeouts)
	if err != nil {
		return err
	}

	orchOpts := []orchestration.Option{
		orchestration.WithObserver(newObserver(opts.Log)),
		orchestration.WithTimeouts(timeouts),
	}

	var recorder *metrics.Recorder
	if opts.MetricsFile != "" {
		recorder = metrics.NewRecorder(layout.Name())
		orchOpts = append(orchOpts, orchestration.WithMetrics(recorder))
	}

	if opts.Archive.Bucket != "" {
		archiver, err := newArchiver(ctx, s3.Options{
			Bucket:    opts.Archive.Bucket,
			Endpoint:  opts.Archive.Endpoint,
			Region:    opts.Archive.Region,
			AccessKey: os.Getenv(EnvS3AccessKey),
			SecretKey: os.Getenv(EnvS3SecretKey),
			Retry: []retry.Option{
				retry.WithMaxRetries(timeouts.RetryMaxAttempts),
				retry.WithInitialDelay(timeouts.RetryInitialDelay),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to set up artifact archive: %w", err)
		}
		orchOpts = append(orchOpts, orchestration.WithArchiver(archiver))
	}

	orch := orchestration.New(connector, newRunner(runner), orchOpts...)
	report, runErr := orch.Deploy(ctx, layout, dep, opts.Mode)

	if recorder != nil && report != nil {
		recorder.ObserveRun(report.State, report.Elapsed, runErr)
		if err := recorder.WriteTextfile(opts.MetricsFile); err != nil {
			fmt.Fprintf(logOutput, "Warning: %v\n", err)
		}
	}
	if report != nil {
		fmt.Fprint(summaryOutput, renderSummary(report, runErr, stdoutIsTerminal()))
	}

	if runErr != nil {
		return fmt.Errorf("deployment %s failed: %w", layout.Name(), runErr)
	}
	return nil
}
