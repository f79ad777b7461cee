package compute

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/lxc/incus/v6/shared/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	chtest "github.com/ringzer0/chaldeploy/internal/testing"
	"github.com/ringzer0/chaldeploy/internal/util/retry"
)

func startedTarget(t *testing.T, lab *chtest.FakeHypervisor, b *chtest.InstanceBuilder) (*provisioning.Context, *provisioning.Target, *chtest.RecordingObserver) {
	t.Helper()
	ctx, obs := chtest.NewProvisioningContext(t, chtest.NewDeployment(b))
	chtest.Bind(t, ctx, lab)
	target := ctx.State.Targets[0]
	require.NoError(t, NewProvisioner().Deploy(ctx, target, false))
	return ctx, target, obs
}

func TestWaitForAddresses_PollsUntilAssigned(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.AddressDelay = 3
	ctx, target, obs := startedTarget(t, lab, chtest.NewInstance("web").WithStaticIP(""))

	require.NoError(t, NewReadiness().WaitForAddresses(ctx, target))

	assert.Len(t, obs.Events(provisioning.EventWaiting), 3)
	assert.Len(t, obs.Events(provisioning.EventReady), 1)
}

func TestWaitForAddresses_IPv4OnlyDoesNotWaitForIPv6(t *testing.T) {
	t.Parallel()
	mock := &incus.MockClient{
		GetInstanceFunc: func(_ context.Context, name string) (*api.Instance, error) {
			return &api.Instance{Name: name, Status: "Running"}, nil
		},
		GetInstanceStateFunc: func(context.Context, string) (*api.InstanceState, error) {
			return &api.InstanceState{Network: map[string]api.InstanceStateNetwork{
				"eth0": {Addresses: []api.InstanceStateNetworkAddress{
					{Family: "inet", Address: "10.10.0.8", Scope: "global"},
				}},
			}}, nil
		},
	}
	inst := chtest.NewInstance("web").WithStaticIP("").Build()
	inst.Network.IPv6 = config.AddressOverride{Suppressed: true}
	ctx, _ := chtest.NewProvisioningContext(t, nil)
	target := &provisioning.Target{
		Spec:  inst,
		Infra: mock,
		Network: &api.Network{Name: "net", NetworkPut: api.NetworkPut{Config: map[string]string{
			"ipv4.address": "10.10.0.1/24",
			"ipv6.address": "fd42::1/64",
		}}},
	}

	require.NoError(t, NewReadiness().WaitForAddresses(ctx, target))
}

func TestWaitForAddresses_OutsideSubnetNeverSatisfies(t *testing.T) {
	t.Parallel()
	mock := &incus.MockClient{
		GetInstanceFunc: func(_ context.Context, name string) (*api.Instance, error) {
			return &api.Instance{Name: name, Status: "Running"}, nil
		},
		GetInstanceStateFunc: func(context.Context, string) (*api.InstanceState, error) {
			return &api.InstanceState{Network: map[string]api.InstanceStateNetwork{
				"eth0": {Addresses: []api.InstanceStateNetworkAddress{
					{Family: "inet", Address: "192.168.1.5", Scope: "global"},
				}},
			}}, nil
		},
	}
	ctx, _ := chtest.NewProvisioningContext(t, nil)
	ctx.Timeouts.AddressWait = 30 * time.Millisecond
	target := &provisioning.Target{
		Spec:  chtest.NewInstance("web").WithStaticIP("").Build(),
		Infra: mock,
		Network: &api.Network{Name: "net", NetworkPut: api.NetworkPut{Config: map[string]string{
			"ipv4.address": "10.10.0.1/24",
		}}},
	}

	err := NewReadiness().WaitForAddresses(ctx, target)

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrTimeout)
}

func TestWaitForAddresses_NotRunning(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.SeedInstance(chtest.TestScope, "web", false, nil)
	ctx, _ := chtest.NewProvisioningContext(t, chtest.NewDeployment(chtest.NewInstance("web")))
	chtest.Bind(t, ctx, lab)

	err := NewReadiness().WaitForAddresses(ctx, ctx.State.Targets[0])

	assert.ErrorIs(t, err, provisioning.ErrNotRunning)
}

func TestWaitForAddresses_NoFamilies(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.AddressDelay = 1000
	b := chtest.NewInstance("web").WithStaticIP("")
	ctx, target, _ := startedTarget(t, lab, b)
	target.Spec.Network.IPv4 = config.AddressOverride{Suppressed: true}

	require.NoError(t, NewReadiness().WaitForAddresses(ctx, target), "every family is suppressed or undeclared")
}

func TestWaitForAddresses_UsesAttachedNetwork(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.AddressDelay = 2
	ctx, target, obs := startedTarget(t, lab, chtest.NewInstance("web"))
	require.Nil(t, target.Network)

	require.NoError(t, NewReadiness().WaitForAddresses(ctx, target))
	ready := obs.Events(provisioning.EventReady)
	require.Len(t, ready, 1)
	assert.Contains(t, ready[0].Message, "10.99.0.", "the default profile network is used")
}

func TestWaitForAddresses_Cancelled(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.AddressDelay = 1 << 30
	ctx, target, _ := startedTarget(t, lab, chtest.NewInstance("web").WithStaticIP(""))
	ctx.Timeouts.AddressWait = 0
	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := NewReadiness().WaitForAddresses(ctx.WithContext(cancelled), target)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, retry.ErrTimeout, "an outer deadline is not the configured timeout")
}

func TestWaitForBoot(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.BootDelay = 3
	ctx, target, _ := startedTarget(t, lab, chtest.NewInstance("vm").VirtualMachine())

	require.NoError(t, NewReadiness().WaitForBoot(ctx, target))

	execs := 0
	for _, c := range lab.Calls() {
		if strings.HasPrefix(c, "exec vm whoami") {
			execs++
		}
	}
	assert.Equal(t, 4, execs)
}

func TestWaitForBoot_ErrorClasses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		retried bool
	}{
		{name: "guest not ready", err: incus.ErrGuestNotReady, retried: true},
		{name: "not running", err: incus.ErrNotRunning, retried: true},
		{name: "not found", err: incus.ErrNotFound, retried: true},
		{name: "permission denied", err: errors.New("permission denied"), retried: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			mock := &incus.MockClient{
				GetInstanceFunc: func(_ context.Context, name string) (*api.Instance, error) {
					return &api.Instance{Name: name, Status: "Running"}, nil
				},
				ExecInstanceFunc: func(context.Context, string, []string) (int, error) {
					calls++
					if calls < 3 {
						return 0, tt.err
					}
					return 0, nil
				},
			}
			ctx, _ := chtest.NewProvisioningContext(t, nil)
			target := &provisioning.Target{Spec: chtest.NewInstance("vm").Build(), Infra: mock}

			err := NewReadiness().WaitForBoot(ctx, target)

			if tt.retried {
				require.NoError(t, err)
				assert.Equal(t, 3, calls)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestWaitForBoot_NonZeroExitRetried(t *testing.T) {
	t.Parallel()
	codes := []int{1, 1, 0}
	calls := 0
	mock := &incus.MockClient{
		GetInstanceFunc: func(_ context.Context, name string) (*api.Instance, error) {
			return &api.Instance{Name: name, Status: "Running"}, nil
		},
		ExecInstanceFunc: func(context.Context, string, []string) (int, error) {
			code := codes[calls]
			calls++
			return code, nil
		},
	}
	ctx, obs := chtest.NewProvisioningContext(t, nil)
	target := &provisioning.Target{Spec: chtest.NewInstance("vm").Build(), Infra: mock}

	err := NewReadiness().WaitForBoot(ctx, target)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.NotEmpty(t, obs.Events(provisioning.EventWaiting))
}

func TestWaitForBoot_NonZeroExitTimesOut(t *testing.T) {
	t.Parallel()
	mock := &incus.MockClient{
		GetInstanceFunc: func(_ context.Context, name string) (*api.Instance, error) {
			return &api.Instance{Name: name, Status: "Running"}, nil
		},
		ExecInstanceFunc: func(context.Context, string, []string) (int, error) {
			return 127, nil
		},
	}
	ctx, _ := chtest.NewProvisioningContext(t, nil)
	ctx.Timeouts.BootWait = 20 * time.Millisecond
	target := &provisioning.Target{Spec: chtest.NewInstance("vm").Build(), Infra: mock}

	err := NewReadiness().WaitForBoot(ctx, target)

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrTimeout)
	assert.Contains(t, err.Error(), "exited with status 127")
}

func TestWaitForBoot_NotRunning(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	lab.SeedInstance(chtest.TestScope, "vm", false, nil)
	ctx, _ := chtest.NewProvisioningContext(t, chtest.NewDeployment(chtest.NewInstance("vm")))
	chtest.Bind(t, ctx, lab)

	err := NewReadiness().WaitForBoot(ctx, ctx.State.Targets[0])

	assert.ErrorIs(t, err, provisioning.ErrNotRunning)
	assert.Empty(t, lab.Calls(), "no exec is attempted")
}

func TestEnabledFamilies(t *testing.T) {
	t.Parallel()
	network := &api.Network{NetworkPut: api.NetworkPut{Config: map[string]string{
		"ipv4.address": "10.0.0.1/24",
		"ipv6.address": "fd00::1/64",
	}}}

	both := EnabledFamilies(network, nil)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/24"), both.IPv4)
	assert.Equal(t, netip.MustParsePrefix("fd00::/64"), both.IPv6)

	v4 := EnabledFamilies(network, &config.Network{IPv6: config.AddressOverride{Suppressed: true}})
	assert.True(t, v4.IPv4.IsValid())
	assert.False(t, v4.IPv6.IsValid())

	none := EnabledFamilies(&api.Network{NetworkPut: api.NetworkPut{Config: map[string]string{"ipv4.address": "none"}}}, nil)
	assert.True(t, none.None())
	assert.True(t, EnabledFamilies(nil, nil).None())

	assert.True(t, both.Satisfied([]netip.Addr{netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("fd00::5")}))
	assert.False(t, both.Satisfied([]netip.Addr{netip.MustParseAddr("10.0.0.5")}))
	assert.False(t, v4.Satisfied([]netip.Addr{netip.MustParseAddr("10.0.1.5")}))
}
