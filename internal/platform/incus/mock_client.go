package incus

import (
	"context"

	"github.com/lxc/incus/v6/shared/api"
)

// MockClient is a mock implementation of InfrastructureManager.
// Unset functions fall back to benign defaults.
type MockClient struct {
	ScopeValue Scope

	// Instance
	GetInstanceFunc           func(ctx context.Context, name string) (*api.Instance, error)
	GetInstanceStateFunc      func(ctx context.Context, name string) (*api.InstanceState, error)
	LaunchInstanceFunc        func(ctx context.Context, opts LaunchOpts) error
	CopyInstanceFunc          func(ctx context.Context, opts CopyOpts) error
	StartInstanceFunc         func(ctx context.Context, name string) error
	PauseInstanceFunc         func(ctx context.Context, name string) error
	StopInstanceFunc          func(ctx context.Context, name string) error
	RestartInstanceFunc       func(ctx context.Context, name string) error
	DeleteInstanceFunc        func(ctx context.Context, name string) error
	UpdateInstanceDevicesFunc func(ctx context.Context, name string, devices map[string]map[string]string) error
	ExecInstanceFunc          func(ctx context.Context, name string, command []string) (int, error)

	// Network
	GetNetworkFunc    func(ctx context.Context, name string) (*api.Network, error)
	CreateNetworkFunc func(ctx context.Context, req api.NetworksPost) error
	UpdateNetworkFunc func(ctx context.Context, name string, put api.NetworkPut) error

	// ACL
	GetNetworkACLsFunc   func(ctx context.Context) ([]api.NetworkACL, error)
	GetNetworkACLFunc    func(ctx context.Context, name string) (*api.NetworkACL, error)
	CreateNetworkACLFunc func(ctx context.Context, req api.NetworkACLsPost) error
	DeleteNetworkACLFunc func(ctx context.Context, name string) error

	// Forward
	GetNetworkForwardsFunc       func(ctx context.Context, network string) ([]api.NetworkForward, error)
	GetNetworkForwardFunc        func(ctx context.Context, network, listenAddress string) (*api.NetworkForward, error)
	AddNetworkForwardPortFunc    func(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error
	RemoveNetworkForwardPortFunc func(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error
}

// Ensure interface compliance
var _ InfrastructureManager = (*MockClient)(nil)

// Scope returns ScopeValue.
func (m *MockClient) Scope() Scope {
	return m.ScopeValue
}

// GetInstance mocks instance lookup. Defaults to not found.
func (m *MockClient) GetInstance(ctx context.Context, name string) (*api.Instance, error) {
	if m.GetInstanceFunc != nil {
		return m.GetInstanceFunc(ctx, name)
	}
	return nil, nil
}

// GetInstanceState mocks state lookup. Defaults to a running instance
// without addresses.
func (m *MockClient) GetInstanceState(ctx context.Context, name string) (*api.InstanceState, error) {
	if m.GetInstanceStateFunc != nil {
		return m.GetInstanceStateFunc(ctx, name)
	}
	return &api.InstanceState{Status: StatusRunning}, nil
}

// LaunchInstance mocks instance creation from an image.
func (m *MockClient) LaunchInstance(ctx context.Context, opts LaunchOpts) error {
	if m.LaunchInstanceFunc != nil {
		return m.LaunchInstanceFunc(ctx, opts)
	}
	return nil
}

// CopyInstance mocks instance copy.
func (m *MockClient) CopyInstance(ctx context.Context, opts CopyOpts) error {
	if m.CopyInstanceFunc != nil {
		return m.CopyInstanceFunc(ctx, opts)
	}
	return nil
}

// StartInstance mocks instance start.
func (m *MockClient) StartInstance(ctx context.Context, name string) error {
	if m.StartInstanceFunc != nil {
		return m.StartInstanceFunc(ctx, name)
	}
	return nil
}

// PauseInstance mocks instance freeze.
func (m *MockClient) PauseInstance(ctx context.Context, name string) error {
	if m.PauseInstanceFunc != nil {
		return m.PauseInstanceFunc(ctx, name)
	}
	return nil
}

// StopInstance mocks instance stop.
func (m *MockClient) StopInstance(ctx context.Context, name string) error {
	if m.StopInstanceFunc != nil {
		return m.StopInstanceFunc(ctx, name)
	}
	return nil
}

// RestartInstance mocks instance restart.
func (m *MockClient) RestartInstance(ctx context.Context, name string) error {
	if m.RestartInstanceFunc != nil {
		return m.RestartInstanceFunc(ctx, name)
	}
	return nil
}

// DeleteInstance mocks instance deletion.
func (m *MockClient) DeleteInstance(ctx context.Context, name string) error {
	if m.DeleteInstanceFunc != nil {
		return m.DeleteInstanceFunc(ctx, name)
	}
	return nil
}

// UpdateInstanceDevices mocks device updates.
func (m *MockClient) UpdateInstanceDevices(ctx context.Context, name string, devices map[string]map[string]string) error {
	if m.UpdateInstanceDevicesFunc != nil {
		return m.UpdateInstanceDevicesFunc(ctx, name, devices)
	}
	return nil
}

// ExecInstance mocks guest exec. Defaults to exit code 0.
func (m *MockClient) ExecInstance(ctx context.Context, name string, command []string) (int, error) {
	if m.ExecInstanceFunc != nil {
		return m.ExecInstanceFunc(ctx, name, command)
	}
	return 0, nil
}

// GetNetwork mocks network lookup. Defaults to not found.
func (m *MockClient) GetNetwork(ctx context.Context, name string) (*api.Network, error) {
	if m.GetNetworkFunc != nil {
		return m.GetNetworkFunc(ctx, name)
	}
	return nil, nil
}

// CreateNetwork mocks network creation.
func (m *MockClient) CreateNetwork(ctx context.Context, req api.NetworksPost) error {
	if m.CreateNetworkFunc != nil {
		return m.CreateNetworkFunc(ctx, req)
	}
	return nil
}

// UpdateNetwork mocks network update.
func (m *MockClient) UpdateNetwork(ctx context.Context, name string, put api.NetworkPut) error {
	if m.UpdateNetworkFunc != nil {
		return m.UpdateNetworkFunc(ctx, name, put)
	}
	return nil
}

// GetNetworkACLs mocks ACL listing.
func (m *MockClient) GetNetworkACLs(ctx context.Context) ([]api.NetworkACL, error) {
	if m.GetNetworkACLsFunc != nil {
		return m.GetNetworkACLsFunc(ctx)
	}
	return nil, nil
}

// GetNetworkACL mocks ACL lookup. Defaults to not found.
func (m *MockClient) GetNetworkACL(ctx context.Context, name string) (*api.NetworkACL, error) {
	if m.GetNetworkACLFunc != nil {
		return m.GetNetworkACLFunc(ctx, name)
	}
	return nil, nil
}

// CreateNetworkACL mocks ACL creation.
func (m *MockClient) CreateNetworkACL(ctx context.Context, req api.NetworkACLsPost) error {
	if m.CreateNetworkACLFunc != nil {
		return m.CreateNetworkACLFunc(ctx, req)
	}
	return nil
}

// DeleteNetworkACL mocks ACL deletion.
func (m *MockClient) DeleteNetworkACL(ctx context.Context, name string) error {
	if m.DeleteNetworkACLFunc != nil {
		return m.DeleteNetworkACLFunc(ctx, name)
	}
	return nil
}

// GetNetworkForwards mocks forward listing.
func (m *MockClient) GetNetworkForwards(ctx context.Context, network string) ([]api.NetworkForward, error) {
	if m.GetNetworkForwardsFunc != nil {
		return m.GetNetworkForwardsFunc(ctx, network)
	}
	return nil, nil
}

// GetNetworkForward mocks forward lookup. Defaults to not found.
func (m *MockClient) GetNetworkForward(ctx context.Context, network, listenAddress string) (*api.NetworkForward, error) {
	if m.GetNetworkForwardFunc != nil {
		return m.GetNetworkForwardFunc(ctx, network, listenAddress)
	}
	return nil, nil
}

// AddNetworkForwardPort mocks port mapping addition.
func (m *MockClient) AddNetworkForwardPort(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	if m.AddNetworkForwardPortFunc != nil {
		return m.AddNetworkForwardPortFunc(ctx, network, listenAddress, port)
	}
	return nil
}

// RemoveNetworkForwardPort mocks port mapping removal.
func (m *MockClient) RemoveNetworkForwardPort(ctx context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	if m.RemoveNetworkForwardPortFunc != nil {
		return m.RemoveNetworkForwardPortFunc(ctx, network, listenAddress, port)
	}
	return nil
}
