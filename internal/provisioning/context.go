package provisioning

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
)

// Target is one desired instance together with everything resolved for it
// during the run. The handle fields are filled in by the phases and then
// passed down instead of the instance name.
type Target struct {
	Spec config.Instance

	// Infra is bound to the instance's remote and project by the scope phase.
	Infra incus.InfrastructureManager
	// Instance is the live handle, refreshed after every mutation.
	Instance *api.Instance
	// Network is the reconciled network, nil when Spec.Network is nil.
	Network *api.Network
}

// Name returns the desired instance name.
func (t *Target) Name() string {
	return t.Spec.Name
}

// Scope returns the remote and project the instance is declared in.
func (t *Target) Scope() incus.Scope {
	return incus.Scope{Remote: t.Spec.Remote, Project: t.Spec.Project}
}

// Device returns the NIC device name the instance's network is attached to.
func (t *Target) Device() string {
	if t.Spec.Network != nil && t.Spec.Network.Device != "" {
		return t.Spec.Network.Device
	}
	return config.DefaultDevice
}

// Refresh re-reads the live instance. A vanished instance is ErrNotFound.
func (t *Target) Refresh(ctx context.Context) error {
	inst, err := t.Infra.GetInstance(ctx, t.Spec.Name)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("instance %s: %w", t.Spec.Name, ErrNotFound)
	}
	t.Instance = inst
	return nil
}

// State holds the shared results of provisioning phases.
type State struct {
	// RunID identifies the run in logs, metrics and archived artifacts.
	RunID string
	// Deployment is the deployment directory name.
	Deployment string
	// Dir is the deployment directory handed to the workload runner.
	Dir string
	// Targets follow the declared instance order.
	Targets []*Target
	// Provisioned lists the targets created by this run, in creation order.
	Provisioned []*Target
	// WorkloadErr is the workload runner's failure, if any.
	WorkloadErr error
	// Destroyed lists instances torn down during the run.
	Destroyed []string
}

// NewState creates provisioning state with one target per desired instance.
func NewState(dep *config.Deployment) *State {
	s := &State{}
	if dep == nil {
		return s
	}
	for _, inst := range dep.Instances {
		s.Targets = append(s.Targets, &Target{Spec: inst})
	}
	return s
}

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	State    *State
	Observer Observer
	Timeouts *config.Timeouts
	// Metrics may be nil.
	Metrics PhaseRecorder
}

// NewContext creates a new provisioning context.
func NewContext(ctx context.Context, dep *config.Deployment, observer Observer, timeouts *config.Timeouts) *Context {
	if observer == nil {
		observer = NewLogrObserver(logr.Discard())
	}
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	return &Context{
		Context:  ctx,
		State:    NewState(dep),
		Observer: observer,
		Timeouts: timeouts,
	}
}

// WithContext returns a shallow copy bound to a different context.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.Context = ctx
	return &cp
}
