package orchestration

import (
	"errors"
	"fmt"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	"github.com/ringzer0/chaldeploy/internal/provisioning/compute"
	"github.com/ringzer0/chaldeploy/internal/provisioning/destroy"
	"github.com/ringzer0/chaldeploy/internal/provisioning/infrastructure"
	"github.com/ringzer0/chaldeploy/internal/workload"
)

// scopePhase binds every target to the project it lives in. Connections
// are shared between targets of the same scope.
type scopePhase struct {
	connector incus.Connector
}

func (p *scopePhase) Name() string { return "scope" }

func (p *scopePhase) Provision(ctx *provisioning.Context) error {
	bound := make(map[incus.Scope]incus.InfrastructureManager)
	for _, t := range ctx.State.Targets {
		scope := t.Scope()
		infra, ok := bound[scope]
		if !ok {
			var err error
			infra, err = p.connector.Connect(ctx, scope)
			if err != nil {
				return fmt.Errorf("instance %s: %w", t.Name(), err)
			}
			bound[scope] = infra
		}
		t.Infra = infra
	}
	ctx.Observer.Printf("[scope] Resolved %d scopes for %d instances", len(bound), len(ctx.State.Targets))
	return nil
}

type networkPhase struct {
	infra *infrastructure.Provisioner
}

func (p *networkPhase) Name() string { return "network" }

func (p *networkPhase) Provision(ctx *provisioning.Context) error {
	for _, t := range ctx.State.Targets {
		if t.Spec.Network == nil {
			continue
		}
		if err := p.infra.ReconcileNetwork(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

type instancePhase struct {
	compute *compute.Provisioner
	force   bool
	apply   bool
}

func (p *instancePhase) Name() string { return "instance" }

func (p *instancePhase) Provision(ctx *provisioning.Context) error {
	for i, t := range ctx.State.Targets {
		var err error
		if p.apply {
			err = p.compute.Fetch(ctx, t)
		} else {
			err = p.compute.Deploy(ctx, t, p.force)
		}
		if err != nil {
			return err
		}
		ctx.Observer.Progress("instance", i+1, len(ctx.State.Targets))
	}
	return nil
}

type readinessPhase struct {
	readiness *compute.Readiness
}

func (p *readinessPhase) Name() string { return "readiness" }

func (p *readinessPhase) Provision(ctx *provisioning.Context) error {
	for _, t := range ctx.State.Targets {
		if err := p.readiness.WaitForAddresses(ctx, t); err != nil {
			return err
		}
		if compute.IsVirtualMachine(t) {
			if err := p.readiness.WaitForBoot(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// workloadPhase runs the playbook and owns the rollback decision.
type workloadPhase struct {
	runner    workload.Runner
	artifacts *workload.Artifacts
	destroyer *destroy.Provisioner
	keep      bool
	prefix    string
}

func (p *workloadPhase) Name() string { return "workload" }

func (p *workloadPhase) Provision(ctx *provisioning.Context) error {
	runErr := p.runner.Run(ctx, ctx.State.Dir, config.PlaybookFileName)
	if runErr != nil && ctx.Err() != nil {
		// Nothing can be torn down with a cancelled context.
		return fmt.Errorf("workload interrupted, instances kept: %w", runErr)
	}

	discardErr := p.artifacts.Discard(ctx, ctx.State.Dir, p.prefix)
	if runErr == nil {
		return discardErr
	}

	if !errors.Is(runErr, provisioning.ErrWorkloadFailed) {
		runErr = fmt.Errorf("%w: %w", provisioning.ErrWorkloadFailed, runErr)
	}
	ctx.State.WorkloadErr = runErr

	if p.keep {
		ctx.Observer.Printf("[workload] Keeping %d instances after failure", len(ctx.State.Targets))
		return errors.Join(runErr, discardErr)
	}
	ctx.Observer.Printf("[workload] Rolling back %d instances", len(ctx.State.Targets))
	return errors.Join(runErr, discardErr, teardownAll(ctx, p.destroyer))
}

// finalizePhase applies the post-workload networking per instance.
type finalizePhase struct {
	infra     *infrastructure.Provisioner
	readiness *compute.Readiness
}

func (p *finalizePhase) Name() string { return "finalize" }

func (p *finalizePhase) Provision(ctx *provisioning.Context) error {
	for _, t := range ctx.State.Targets {
		n := t.Spec.Network
		if n != nil && n.WantsPinning() {
			if err := p.infra.PinAddresses(ctx, t); err != nil {
				return err
			}
		}

		if err := restart(ctx, t); err != nil {
			return err
		}
		if n == nil {
			continue
		}

		if len(n.ACLs) > 0 {
			if err := p.infra.AttachACLs(ctx, t); err != nil {
				return err
			}
		}
		if len(n.Forwards) > 0 {
			if err := p.readiness.WaitForAddresses(ctx, t); err != nil {
				return err
			}
			if err := p.infra.AddForwards(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

type testPhase struct {
	destroyer *destroy.Provisioner
}

func (p *testPhase) Name() string { return "test" }

func (p *testPhase) Provision(ctx *provisioning.Context) error {
	return teardownAll(ctx, p.destroyer)
}

func restart(ctx *provisioning.Context, t *provisioning.Target) error {
	if err := t.Infra.RestartInstance(ctx, t.Name()); err != nil {
		return fmt.Errorf("failed to restart %s: %w", t.Name(), err)
	}
	provisioning.LogResourceUpdated(ctx.Observer, "finalize", provisioning.KindInstance, t.Name(), "restarted")
	return t.Refresh(ctx)
}

// teardownAll destroys every bound target in declared order and stops at
// the first failure.
func teardownAll(ctx *provisioning.Context, destroyer *destroy.Provisioner) error {
	for _, t := range ctx.State.Targets {
		if t.Infra == nil {
			continue
		}
		if _, err := destroyer.TeardownTarget(ctx, t); err != nil {
			return fmt.Errorf("teardown of %s failed: %w", t.Name(), err)
		}
	}
	return nil
}
