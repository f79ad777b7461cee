package config

import (
	"net/netip"
)

// DefaultDevice is the NIC device name used when a network omits one.
const DefaultDevice = "eth0"

// Deployment is the ordered set of instances deployed by one run.
type Deployment struct {
	Instances []Instance
}

// Instance describes one container or virtual machine.
type Instance struct {
	Name    string
	Remote  string
	Project string
	Source  Source
	Network *Network
}

// Source is how an instance is provisioned. It is either a *LaunchSource
// or a *CopySource.
type Source interface {
	isSource()
	// Overrides returns the instance config keys applied on top of the source.
	Overrides() map[string]string
}

// Image identifies an image alias or fingerprint on an image remote.
type Image struct {
	Name   string
	Remote string
}

// LaunchSource creates the instance from an image.
type LaunchSource struct {
	Image          Image
	Config         map[string]string
	VirtualMachine bool
}

func (*LaunchSource) isSource() {}

// Overrides implements Source.
func (s *LaunchSource) Overrides() map[string]string { return s.Config }

// CopySource clones an existing instance.
type CopySource struct {
	Name    string
	Remote  string
	Project string
	Config  map[string]string
}

func (*CopySource) isSource() {}

// Overrides implements Source.
func (s *CopySource) Overrides() map[string]string { return s.Config }

// NetworkAction selects how the network reconciler treats an existing network.
type NetworkAction string

// Network actions.
const (
	ActionCreate NetworkAction = "create"
	ActionUpdate NetworkAction = "update"
	ActionSkip   NetworkAction = "skip"
	ActionLookup NetworkAction = "lookup"
)

// Network describes the network an instance attaches to and the
// per-instance networking applied after a successful workload run.
type Network struct {
	Name        string
	Type        string
	Description string
	Action      NetworkAction
	Config      map[string]string

	// Device is the instance NIC device bound to this network.
	Device string

	// ListenAddress is the forward resource the port mappings are added to.
	ListenAddress netip.Addr

	IPv4     AddressOverride
	IPv6     AddressOverride
	StaticIP bool

	Forwards []Forward
	ACLs     []ACL
}

// WantsPinning reports whether the instance address should be persisted on
// its NIC device after the workload succeeds.
func (n *Network) WantsPinning() bool {
	return n.StaticIP || n.IPv4.Explicit() || n.IPv6.Explicit()
}

// AddressOverride is a tri-state address setting: unset, an explicit
// address, or suppressed (the family is ignored by readiness waits).
type AddressOverride struct {
	Address    netip.Addr
	Suppressed bool
}

// Explicit reports whether an address literal was given.
func (a AddressOverride) Explicit() bool {
	return a.Address.IsValid()
}

// Protocol is a forward protocol.
type Protocol string

// Forward protocols.
const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// Forward maps listen port(s) on the forward address to target port(s) on
// the instance.
type Forward struct {
	ListenPorts string
	TargetPorts string
	Protocol    Protocol
}

// ACL is a named network ACL. Description and rules are only used when
// the ACL has to be created.
type ACL struct {
	Name        string
	Description string
	Egress      []ACLRule
	Ingress     []ACLRule
}

// ACLRule is a single ingress or egress rule.
type ACLRule struct {
	Action          string
	State           string
	Description     string
	Source          string
	Destination     string
	SourcePort      string
	DestinationPort string
	Protocol        string
}
