package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	"github.com/ringzer0/chaldeploy/internal/provisioning/compute"
	"github.com/ringzer0/chaldeploy/internal/provisioning/destroy"
	"github.com/ringzer0/chaldeploy/internal/provisioning/infrastructure"
	"github.com/ringzer0/chaldeploy/internal/util/labels"
	"github.com/ringzer0/chaldeploy/internal/workload"
)

// Options selects the run mode of Deploy.
type Options struct {
	// Force tears down existing instances of the same name before creating.
	Force bool
	// KeepOnFailure skips the rollback after a failed workload.
	KeepOnFailure bool
	// Apply reuses deployed instances instead of creating them.
	Apply bool
	// Test tears everything down after a successful run.
	Test bool
}

// Report describes a finished (or aborted) run.
type Report struct {
	RunID      string
	Deployment string
	Elapsed    time.Duration
	State      *provisioning.State
}

// Orchestrator runs deployments and purges.
type Orchestrator struct {
	connector incus.Connector
	runner    workload.Runner
	artifacts *workload.Artifacts
	timeouts  *config.Timeouts
	observer  provisioning.Observer
	metrics   provisioning.PhaseRecorder

	infraProvisioner   *infrastructure.Provisioner
	computeProvisioner *compute.Provisioner
	readiness          *compute.Readiness
	destroyer          *destroy.Provisioner
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver routes progress output to observer.
func WithObserver(observer provisioning.Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithTimeouts overrides the timeouts loaded from the environment.
func WithTimeouts(timeouts *config.Timeouts) Option {
	return func(o *Orchestrator) {
		o.timeouts = timeouts
	}
}

// WithMetrics records phase durations.
func WithMetrics(recorder provisioning.PhaseRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = recorder
	}
}

// WithArchiver uploads workload artifacts before they are discarded.
func WithArchiver(archiver workload.Archiver) Option {
	return func(o *Orchestrator) {
		o.artifacts = workload.NewArtifacts(archiver)
	}
}

// New creates an orchestrator resolving scopes through connector and
// running workloads with runner.
func New(connector incus.Connector, runner workload.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		connector:          connector,
		runner:             runner,
		artifacts:          workload.NewArtifacts(nil),
		infraProvisioner:   infrastructure.NewProvisioner(),
		computeProvisioner: compute.NewProvisioner(),
		readiness:          compute.NewReadiness(),
		destroyer:          destroy.NewProvisioner(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = provisioning.NewLogrObserver(logr.Discard())
	}
	if o.timeouts == nil {
		o.timeouts = config.LoadTimeouts()
	}
	return o
}

// Deploy provisions dep from the deployment directory layout. The report
// is returned even when the run fails.
func (o *Orchestrator) Deploy(ctx context.Context, layout config.Layout, dep *config.Deployment, opts Options) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()

	observer := o.observer.WithFields(map[string]string{"run": runID, "deployment": layout.Name()})
	pCtx := provisioning.NewContext(ctx, dep, observer, o.timeouts)
	pCtx.Metrics = o.metrics
	pCtx.State.RunID = runID
	pCtx.State.Deployment = layout.Name()
	pCtx.State.Dir = layout.Dir

	report := &Report{RunID: runID, Deployment: layout.Name(), State: pCtx.State}
	err := provisioning.RunPhases(pCtx, o.phases(layout, opts, runID))
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}

	observer.Printf("Elapsed time: %s", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (o *Orchestrator) phases(layout config.Layout, opts Options, runID string) []provisioning.Phase {
	phases := []provisioning.Phase{
		&scopePhase{connector: o.connector},
		&networkPhase{infra: o.infraProvisioner},
		&instancePhase{compute: o.computeProvisioner, force: opts.Force, apply: opts.Apply},
		&readinessPhase{readiness: o.readiness},
		&workloadPhase{
			runner:    o.runner,
			artifacts: o.artifacts,
			destroyer: o.destroyer,
			keep:      opts.KeepOnFailure,
			prefix:    layout.Name() + "/" + runID,
		},
		&finalizePhase{infra: o.infraProvisioner, readiness: o.readiness},
	}
	if opts.Test {
		phases = append(phases, &testPhase{destroyer: o.destroyer})
	}
	return phases
}

// Purge tears down the named instance in scope, with its matching
// forwards and exclusive ACLs. A missing instance is ErrNotFound.
func (o *Orchestrator) Purge(ctx context.Context, scope incus.Scope, name string) (*destroy.Result, error) {
	infra, err := o.connector.Connect(ctx, scope)
	if err != nil {
		return nil, err
	}

	pCtx := provisioning.NewContext(ctx, nil, o.observer.WithFields(map[string]string{"scope": scope.String()}), o.timeouts)
	target := &provisioning.Target{
		Spec:  config.Instance{Name: name, Remote: scope.Remote, Project: scope.Project},
		Infra: infra,
	}
	if err := target.Refresh(pCtx); err != nil {
		return nil, err
	}
	if !labels.Managed(target.Instance.Config) {
		pCtx.Observer.Printf("[purge] Instance %s was not created by chaldeploy", name)
	}

	res, err := o.destroyer.Teardown(pCtx, infra, target.Instance, target.Device())
	if err != nil {
		return res, fmt.Errorf("failed to purge %s: %w", name, err)
	}
	return res, nil
}
