package testing

import (
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
)

// Names used by the builders and fixtures.
const (
	TestRemote  = "lab"
	TestProject = "ctf"
	TestNetwork = "chal-net"
	// TestListenAddress is the forward listen address seeded by NewLab.
	TestListenAddress = "192.0.2.10"
)

// TestScope is the scope the builders place instances in.
var TestScope = incus.Scope{Remote: TestRemote, Project: TestProject}

// TestNetworkConfig returns the config of the test network: an IPv4
// subnet and no IPv6.
func TestNetworkConfig() map[string]string {
	return map[string]string{
		"ipv4.address": "10.10.0.1/24",
		"ipv4.nat":     "true",
		"ipv6.address": "none",
	}
}

// NewLab returns a hypervisor with the test scope, the test network and
// an empty forward on TestListenAddress.
func NewLab() *FakeHypervisor {
	h := NewFakeHypervisor(TestScope)
	h.SeedNetwork(TestScope, TestNetwork, "bridge", "challenge network", TestNetworkConfig())
	h.SeedForward(TestScope, TestNetwork, TestListenAddress)
	return h
}
