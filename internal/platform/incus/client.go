package incus

import (
	"context"

	"github.com/lxc/incus/v6/shared/api"
)

// Scope is a remote and the project within it.
type Scope struct {
	Remote  string
	Project string
}

func (s Scope) String() string {
	return s.Remote + ":" + s.Project
}

// LaunchOpts holds the parameters for creating an instance from an image.
type LaunchOpts struct {
	Name           string
	ImageRemote    string
	Image          string
	VirtualMachine bool
	Config         map[string]string
	Devices        map[string]map[string]string
}

// CopyOpts holds the parameters for cloning an existing instance. Config
// and Devices are merged over the source instance's own.
type CopyOpts struct {
	Name          string
	SourceRemote  string
	SourceProject string
	SourceName    string
	Config        map[string]string
	Devices       map[string]map[string]string
}

// InstanceManager defines the interface for instance lifecycle operations.
type InstanceManager interface {
	// GetInstance returns the instance by name, or nil if not found.
	GetInstance(ctx context.Context, name string) (*api.Instance, error)
	GetInstanceState(ctx context.Context, name string) (*api.InstanceState, error)
	// LaunchInstance creates a stopped instance from an image.
	LaunchInstance(ctx context.Context, opts LaunchOpts) error
	// CopyInstance creates a stopped instance from another instance, without snapshots.
	CopyInstance(ctx context.Context, opts CopyOpts) error
	StartInstance(ctx context.Context, name string) error
	// PauseInstance freezes a running instance. Returns ErrNotRunning otherwise.
	PauseInstance(ctx context.Context, name string) error
	// StopInstance returns ErrAlreadyStopped or ErrNotRunning when there is nothing to stop.
	StopInstance(ctx context.Context, name string) error
	RestartInstance(ctx context.Context, name string) error
	DeleteInstance(ctx context.Context, name string) error
	// UpdateInstanceDevices replaces the instance's local device map.
	UpdateInstanceDevices(ctx context.Context, name string, devices map[string]map[string]string) error
	// ExecInstance runs a command in the guest and returns its exit code.
	ExecInstance(ctx context.Context, name string, command []string) (int, error)
}

// NetworkManager defines the interface for managing networks.
type NetworkManager interface {
	// GetNetwork returns the network by name, or nil if not found.
	GetNetwork(ctx context.Context, name string) (*api.Network, error)
	CreateNetwork(ctx context.Context, req api.NetworksPost) error
	UpdateNetwork(ctx context.Context, name string, put api.NetworkPut) error
}

// ACLManager defines the interface for managing network ACLs.
type ACLManager interface {
	GetNetworkACLs(ctx context.Context) ([]api.NetworkACL, error)
	// GetNetworkACL returns the ACL by name, or nil if not found.
	GetNetworkACL(ctx context.Context, name string) (*api.NetworkACL, error)
	CreateNetworkACL(ctx context.Context, req api.NetworkACLsPost) error
	DeleteNetworkACL(ctx context.Context, name string) error
}

// ForwardManager defines the interface for port mappings on network forwards.
type ForwardManager interface {
	GetNetworkForwards(ctx context.Context, network string) ([]api.NetworkForward, error)
	// GetNetworkForward returns the forward by listen address, or nil if not found.
	GetNetworkForward(ctx context.Context, network, listenAddress string) (*api.NetworkForward, error)
	AddNetworkForwardPort(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error
	// RemoveNetworkForwardPort removes the mapping matching the port's protocol and listen port.
	RemoveNetworkForwardPort(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error
}

// InfrastructureManager combines all interfaces for one remote and project.
type InfrastructureManager interface {
	InstanceManager
	NetworkManager
	ACLManager
	ForwardManager
	Scope() Scope
}

// Connector resolves a scope to a bound InfrastructureManager.
type Connector interface {
	// Connect returns ErrRemoteNotFound or ErrProjectNotFound for unknown scopes.
	Connect(ctx context.Context, scope Scope) (InfrastructureManager, error)
}
