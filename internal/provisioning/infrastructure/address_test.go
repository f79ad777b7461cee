package infrastructure

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	chtest "github.com/ringzer0/chaldeploy/internal/testing"
)

func TestPinAddresses_Snapshot(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	ctx, target := runningTarget(t, lab, chtest.NewInstance("web").WithStaticIP(""))

	require.NoError(t, NewProvisioner().PinAddresses(ctx, target))

	nic := target.Instance.Devices["eth0"]
	assert.Equal(t, "10.10.0.2", nic[provisioning.DeviceKeyIPv4])
	assert.NotContains(t, nic, provisioning.DeviceKeyIPv6, "IPv6 is not pinned without stateful DHCPv6")
}

func TestPinAddresses_Explicit(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	ctx, target := runningTarget(t, lab, chtest.NewInstance("web").WithStaticIP("10.10.0.77"))

	require.NoError(t, NewProvisioner().PinAddresses(ctx, target))

	assert.Equal(t, "10.10.0.77", target.Instance.Devices["eth0"][provisioning.DeviceKeyIPv4])
	assert.Equal(t, chtest.TestNetwork, target.Instance.Devices["eth0"]["network"])
}

func TestPinAddresses_StatefulDHCPv6(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		stateful string
		explicit string
		want     string
	}{
		{name: "snapshot", stateful: "true", want: "fd42::2"},
		{name: "explicit", stateful: "true", explicit: "fd42::99", want: "fd42::99"},
		{name: "stateless", stateful: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lab := chtest.NewLab()
			cfg := map[string]string{
				"ipv4.address":       "10.10.0.1/24",
				"ipv6.address":       "fd42::1/64",
				"ipv6.dhcp.stateful": tt.stateful,
			}
			lab.SeedNetwork(chtest.TestScope, chtest.TestNetwork, "bridge", "", cfg)
			ctx, target := runningTarget(t, lab, chtest.NewInstance("web").WithStaticIP(""))
			if tt.explicit != "" {
				target.Spec.Network.IPv6 = config.AddressOverride{Address: netip.MustParseAddr(tt.explicit)}
			}
			target.Network = lab.Network(chtest.TestScope, chtest.TestNetwork)

			require.NoError(t, NewProvisioner().PinAddresses(ctx, target))

			nic := target.Instance.Devices["eth0"]
			assert.Equal(t, "10.10.0.2", nic[provisioning.DeviceKeyIPv4])
			if tt.want == "" {
				assert.NotContains(t, nic, provisioning.DeviceKeyIPv6)
			} else {
				assert.Equal(t, tt.want, nic[provisioning.DeviceKeyIPv6])
			}
		})
	}
}

func TestPinAddresses_SurvivesRestart(t *testing.T) {
	t.Parallel()
	lab := chtest.NewLab()
	ctx, target := runningTarget(t, lab, chtest.NewInstance("web").WithStaticIP("10.10.0.77"))
	require.NoError(t, NewProvisioner().PinAddresses(ctx, target))

	require.NoError(t, target.Infra.RestartInstance(ctx, "web"))
	state, err := target.Infra.GetInstanceState(ctx, "web")
	require.NoError(t, err)

	assert.Equal(t, "10.10.0.77", provisioning.GlobalAddresses(state, "eth0").IPv4.String())
}

func TestIsTrue(t *testing.T) {
	t.Parallel()
	for _, v := range []string{"true", "TRUE", "1", "yes", "on"} {
		assert.True(t, isTrue(v), v)
	}
	for _, v := range []string{"", "false", "0", "no"} {
		assert.False(t, isTrue(v), v)
	}
}
