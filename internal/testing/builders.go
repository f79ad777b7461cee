package testing

import (
	"maps"
	"net/netip"
	"slices"

	"github.com/ringzer0/chaldeploy/internal/config"
)

// InstanceBuilder provides a fluent interface for constructing desired
// instances. Each method returns a new builder (immutable) for chaining.
type InstanceBuilder struct {
	inst config.Instance
}

// NewInstance creates a builder for a container launched from
// images:debian/12 on the test remote and project.
func NewInstance(name string) *InstanceBuilder {
	return &InstanceBuilder{inst: config.Instance{
		Name:    name,
		Remote:  TestRemote,
		Project: TestProject,
		Source: &config.LaunchSource{
			Image: config.Image{Name: "debian/12", Remote: "images"},
		},
	}}
}

// InScope sets the remote and project.
func (b *InstanceBuilder) InScope(remote, project string) *InstanceBuilder {
	nb := b.clone()
	nb.inst.Remote = remote
	nb.inst.Project = project
	return nb
}

// VirtualMachine launches the instance as a virtual machine.
func (b *InstanceBuilder) VirtualMachine() *InstanceBuilder {
	nb := b.clone()
	src := &config.LaunchSource{Image: config.Image{Name: "debian/12", Remote: "images"}}
	if launch, ok := nb.inst.Source.(*config.LaunchSource); ok {
		src.Image = launch.Image
		src.Config = maps.Clone(launch.Config)
	}
	src.VirtualMachine = true
	nb.inst.Source = src
	return nb
}

// CopyOf clones the instance from source in the same scope.
func (b *InstanceBuilder) CopyOf(source string) *InstanceBuilder {
	nb := b.clone()
	nb.inst.Source = &config.CopySource{Name: source, Remote: nb.inst.Remote, Project: nb.inst.Project}
	return nb
}

// WithNetwork attaches the instance to a network reconciled with action.
func (b *InstanceBuilder) WithNetwork(name string, action config.NetworkAction, cfg map[string]string) *InstanceBuilder {
	nb := b.clone()
	nb.inst.Network = &config.Network{
		Name:   name,
		Type:   "bridge",
		Action: action,
		Config: maps.Clone(cfg),
		Device: config.DefaultDevice,
	}
	return nb
}

// WithStaticIP pins the instance's addresses after the workload.
func (b *InstanceBuilder) WithStaticIP(ipv4 string) *InstanceBuilder {
	nb := b.withNetwork()
	nb.inst.Network.StaticIP = true
	if ipv4 != "" {
		nb.inst.Network.IPv4 = config.AddressOverride{Address: netip.MustParseAddr(ipv4)}
	}
	return nb
}

// WithACL attaches a named ACL without rules.
func (b *InstanceBuilder) WithACL(name string) *InstanceBuilder {
	nb := b.withNetwork()
	nb.inst.Network.ACLs = append(nb.inst.Network.ACLs, config.ACL{Name: name})
	return nb
}

// WithForward adds a tcp forward on listen.
func (b *InstanceBuilder) WithForward(listen, listenPorts, targetPorts string) *InstanceBuilder {
	nb := b.withNetwork()
	nb.inst.Network.ListenAddress = netip.MustParseAddr(listen)
	nb.inst.Network.Forwards = append(nb.inst.Network.Forwards, config.Forward{
		ListenPorts: listenPorts,
		TargetPorts: targetPorts,
		Protocol:    config.ProtocolTCP,
	})
	return nb
}

// Build returns the instance.
func (b *InstanceBuilder) Build() config.Instance {
	return b.clone().inst
}

func (b *InstanceBuilder) withNetwork() *InstanceBuilder {
	nb := b.clone()
	if nb.inst.Network == nil {
		nb.inst.Network = &config.Network{
			Name:   TestNetwork,
			Type:   "bridge",
			Action: config.ActionSkip,
			Config: TestNetworkConfig(),
			Device: config.DefaultDevice,
		}
	}
	return nb
}

func (b *InstanceBuilder) clone() *InstanceBuilder {
	inst := b.inst
	switch src := b.inst.Source.(type) {
	case *config.LaunchSource:
		cp := *src
		cp.Config = maps.Clone(src.Config)
		inst.Source = &cp
	case *config.CopySource:
		cp := *src
		cp.Config = maps.Clone(src.Config)
		inst.Source = &cp
	}
	if b.inst.Network != nil {
		n := *b.inst.Network
		n.Config = maps.Clone(b.inst.Network.Config)
		n.Forwards = slices.Clone(b.inst.Network.Forwards)
		n.ACLs = slices.Clone(b.inst.Network.ACLs)
		inst.Network = &n
	}
	return &InstanceBuilder{inst: inst}
}

// NewDeployment builds a deployment from instance builders.
func NewDeployment(builders ...*InstanceBuilder) *config.Deployment {
	dep := &config.Deployment{}
	for _, b := range builders {
		dep.Instances = append(dep.Instances, b.Build())
	}
	return dep
}
