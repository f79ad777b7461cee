package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/platform/s3"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	chtest "github.com/ringzer0/chaldeploy/internal/testing"
	"github.com/ringzer0/chaldeploy/internal/util/prerequisites"
	"github.com/ringzer0/chaldeploy/internal/workload"
)

const webConfig = `config:
  name: web
  remote: lab
  project: ctf
  launch:
    image:
      remote: images
      name: debian/12
`

// fakes holds the substitutes installed by withFakes.
type fakes struct {
	lab     *chtest.FakeHypervisor
	runner  *chtest.MockRunner
	logs    *bytes.Buffer
	summary *bytes.Buffer
}

// withFakes swaps every factory variable for the duration of the test.
// Tests using it must not run in parallel.
func withFakes(t *testing.T) *fakes {
	t.Helper()
	f := &fakes{
		lab:     chtest.NewLab(),
		runner:  &chtest.MockRunner{},
		logs:    &bytes.Buffer{},
		summary: &bytes.Buffer{},
	}

	origConnector := newConnector
	origTimeouts := loadTimeouts
	origPrereq := checkPrerequisites
	origRunner := newRunner
	origArchiver := newArchiver
	origLog, origSummary := logOutput, summaryOutput
	origStdout, origStdin := stdoutIsTerminal, stdinIsTerminal
	origConfirm := confirmPurge
	t.Cleanup(func() {
		newConnector = origConnector
		loadTimeouts = origTimeouts
		checkPrerequisites = origPrereq
		newRunner = origRunner
		newArchiver = origArchiver
		logOutput, summaryOutput = origLog, origSummary
		stdoutIsTerminal, stdinIsTerminal = origStdout, origStdin
		confirmPurge = origConfirm
	})

	newConnector = func(string, *config.Timeouts) (incus.Connector, error) { return f.lab, nil }
	loadTimeouts = config.TestTimeouts
	checkPrerequisites = func(context.Context, string) *prerequisites.CheckResults {
		return &prerequisites.CheckResults{}
	}
	newRunner = func(string) workload.Runner { return f.runner }
	newArchiver = func(context.Context, s3.Options) (workload.Archiver, error) {
		t.Fatal("archiver not expected")
		return nil, nil
	}
	logOutput, summaryOutput = f.logs, f.summary
	stdoutIsTerminal = func() bool { return false }
	stdinIsTerminal = func() bool { return false }
	confirmPurge = func(context.Context, incus.Scope, string) (bool, error) {
		t.Fatal("confirmation not expected")
		return false, nil
	}
	return f
}

// runnerLeavesArtifacts makes the runner create an artifacts directory and
// return err.
func (f *fakes) runnerLeavesArtifacts(err error) {
	f.runner.On("Run", mock.Anything, mock.Anything, config.PlaybookFileName).
		Run(func(args mock.Arguments) {
			_ = os.MkdirAll(filepath.Join(args.String(1), config.ArtifactsDirName), 0o755)
		}).
		Return(err)
}

func TestDeploy(t *testing.T) {
	f := withFakes(t)
	f.runnerLeavesArtifacts(nil)
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"web"}, f.lab.InstanceNames(chtest.TestScope))
	f.runner.AssertCalled(t, "Run", mock.Anything, filepath.Join(root, "web"), config.PlaybookFileName)
	assert.Contains(t, f.summary.String(), "chaldeploy: web")
	assert.Contains(t, f.summary.String(), "lab:ctf")
	assert.Contains(t, f.summary.String(), "Completed in")
	assert.Contains(t, f.logs.String(), "Elapsed time")
}

func TestDeploy_DirectoryPath(t *testing.T) {
	f := withFakes(t)
	f.runnerLeavesArtifacts(nil)
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{Path: filepath.Join(root, "web"), ChallengesDir: "does-not-exist"})
	require.NoError(t, err)
}

func TestDeploy_MissingDirectory(t *testing.T) {
	withFakes(t)

	err := Deploy(context.Background(), DeployOptions{Path: "ghost", ChallengesDir: t.TempDir()})
	assert.ErrorIs(t, err, config.ErrMissingArtifact)
}

func TestDeploy_InvalidConfig(t *testing.T) {
	f := withFakes(t)
	root := chtest.WriteDeploymentDir(t, "web", "config:\n  name: web\n")

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root})
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Empty(t, f.lab.Calls())
}

func TestDeploy_MissingRunner(t *testing.T) {
	f := withFakes(t)
	checkPrerequisites = prerequisites.CheckDeploy
	connected := false
	newConnector = func(string, *config.Timeouts) (incus.Connector, error) {
		connected = true
		return f.lab, nil
	}
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root, Runner: "nonexistent-runner-xyz123"})
	assert.ErrorIs(t, err, prerequisites.ErrMissingTool)
	assert.False(t, connected)
}

func TestDeploy_ConnectorError(t *testing.T) {
	withFakes(t)
	boom := errors.New("bad incus config")
	newConnector = func(string, *config.Timeouts) (incus.Connector, error) { return nil, boom }
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root})
	assert.ErrorIs(t, err, boom)
}

func TestDeploy_WorkloadFailure(t *testing.T) {
	f := withFakes(t)
	f.runnerLeavesArtifacts(provisioning.ErrWorkloadFailed)
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root})
	require.ErrorIs(t, err, provisioning.ErrWorkloadFailed)
	assert.Contains(t, err.Error(), "deployment web failed")

	assert.Empty(t, f.lab.InstanceNames(chtest.TestScope))
	assert.Contains(t, f.summary.String(), "Torn down")
	assert.Contains(t, f.summary.String(), "lab:ctf/web")
	assert.Contains(t, f.summary.String(), "Failed after")
	assert.Equal(t, ExitFailure, ExitCode(context.Background(), err))
}

func TestDeploy_MetricsFile(t *testing.T) {
	f := withFakes(t)
	f.runnerLeavesArtifacts(nil)
	root := chtest.WriteDeploymentDir(t, "web", webConfig)
	path := filepath.Join(t.TempDir(), "chaldeploy.prom")

	err := Deploy(context.Background(), DeployOptions{Path: "web", ChallengesDir: root, MetricsFile: path})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `chaldeploy_run_success{deployment="web"} 1`)
	assert.Contains(t, string(data), `chaldeploy_phase_total{deployment="web",phase="workload",result="success"} 1`)
}

func TestDeploy_Archive(t *testing.T) {
	f := withFakes(t)
	f.runnerLeavesArtifacts(nil)
	t.Setenv(EnvS3AccessKey, "access")
	t.Setenv(EnvS3SecretKey, "secret")

	archiver := &chtest.MockArchiver{}
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return(3, nil)
	var got s3.Options
	newArchiver = func(_ context.Context, opts s3.Options) (workload.Archiver, error) {
		got = opts
		return archiver, nil
	}
	root := chtest.WriteDeploymentDir(t, "web", webConfig)

	err := Deploy(context.Background(), DeployOptions{
		Path:          "web",
		ChallengesDir: root,
		Archive:       ArchiveOptions{Bucket: "ctf-artifacts", Endpoint: "http://minio:9000"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ctf-artifacts", got.Bucket)
	assert.Equal(t, "http://minio:9000", got.Endpoint)
	assert.Equal(t, "access", got.AccessKey)
	assert.Equal(t, "secret", got.SecretKey)
	assert.NotEmpty(t, got.Retry)
	archiver.AssertNumberOfCalls(t, "Archive", 1)
}

func TestDeploy_Interrupted(t *testing.T) {
	withFakes(t)
	root := chtest.WriteDeploymentDir(t, "web", webConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Deploy(ctx, DeployOptions{Path: "web", ChallengesDir: root})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitInterrupted, ExitCode(ctx, err))
}
