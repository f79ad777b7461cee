package testing

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/platform/incus"
)

// DefaultNetwork is the network the default profile NIC is attached to.
const DefaultNetwork = "incusbr0"

// FakeHypervisor is an in-memory Incus remote set. It keeps instances,
// networks, ACLs and forwards per remote and project, computes ACL UsedBy
// from instance devices, and hands out addresses when instances start.
type FakeHypervisor struct {
	mu       sync.Mutex
	projects map[incus.Scope]*fakeProject
	calls    []string

	// AddressDelay is the number of state reads after a start during which
	// the instance reports no global address.
	AddressDelay int
	// BootDelay is the number of execs after a start that fail with a
	// guest-not-ready error.
	BootDelay int
	// ExecFunc overrides exec results when set.
	ExecFunc func(scope incus.Scope, name string, command []string) (int, error)
	// Failures makes the call with the given log entry (e.g. "delete web")
	// return the error.
	Failures map[string]error
	// MissingImages are image names LaunchInstance cannot resolve.
	MissingImages map[string]bool
}

type fakeProject struct {
	instances map[string]*fakeInstance
	networks  map[string]*api.Network
	acls      map[string]*api.NetworkACL
	// forwards is keyed by network, then listen address.
	forwards map[string]map[string]*api.NetworkForward
	// next host number per network and family.
	next map[string]int
}

type fakeInstance struct {
	inst         *api.Instance
	ipv4, ipv6   netip.Addr
	addressDelay int
	bootDelay    int
}

var _ incus.InfrastructureManager = (*FakeClient)(nil)
var _ incus.Connector = (*FakeHypervisor)(nil)

// NewFakeHypervisor creates a hypervisor with the given remote:project
// scopes. The default project of every listed remote is added as well.
func NewFakeHypervisor(scopes ...incus.Scope) *FakeHypervisor {
	h := &FakeHypervisor{projects: map[incus.Scope]*fakeProject{}}
	for _, s := range scopes {
		h.AddProject(s)
		h.AddProject(incus.Scope{Remote: s.Remote, Project: api.ProjectDefaultName})
	}
	return h
}

// AddProject makes a scope resolvable.
func (h *FakeHypervisor) AddProject(scope incus.Scope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.projects[scope]; ok {
		return
	}
	p := &fakeProject{
		instances: map[string]*fakeInstance{},
		networks:  map[string]*api.Network{},
		acls:      map[string]*api.NetworkACL{},
		forwards:  map[string]map[string]*api.NetworkForward{},
		next:      map[string]int{},
	}
	p.networks[DefaultNetwork] = &api.Network{
		Name: DefaultNetwork,
		Type: "bridge",
		NetworkPut: api.NetworkPut{Config: map[string]string{
			"ipv4.address": "10.99.0.1/24",
			"ipv6.address": "none",
		}},
		Managed: true,
	}
	h.projects[scope] = p
}

// Connect implements incus.Connector.
func (h *FakeHypervisor) Connect(_ context.Context, scope incus.Scope) (incus.InfrastructureManager, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.projects[scope]; ok {
		return &FakeClient{h: h, scope: scope}, nil
	}
	for s := range h.projects {
		if s.Remote == scope.Remote {
			return nil, fmt.Errorf("project %q on remote %q: %w", scope.Project, scope.Remote, incus.ErrProjectNotFound)
		}
	}
	return nil, fmt.Errorf("remote %q: %w", scope.Remote, incus.ErrRemoteNotFound)
}

// Client returns a client bound to scope, which must exist.
func (h *FakeHypervisor) Client(scope incus.Scope) *FakeClient {
	h.AddProject(scope)
	return &FakeClient{h: h, scope: scope}
}

// Calls returns the mutating and exec calls made so far, in order. Reads
// are not logged.
func (h *FakeHypervisor) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// ResetCalls clears the call log.
func (h *FakeHypervisor) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// record logs a mutating call and returns an injected failure, if any.
// Callers hold h.mu.
func (h *FakeHypervisor) record(format string, args ...any) error {
	entry := fmt.Sprintf(format, args...)
	h.calls = append(h.calls, entry)
	if err, ok := h.Failures[entry]; ok {
		return err
	}
	return nil
}

func (h *FakeHypervisor) project(scope incus.Scope) *fakeProject {
	p, ok := h.projects[scope]
	if !ok {
		panic(fmt.Sprintf("fake hypervisor: unknown scope %s", scope))
	}
	return p
}

// SeedInstance creates an instance directly, bypassing the call log. A
// running instance gets addresses immediately.
func (h *FakeHypervisor) SeedInstance(scope incus.Scope, name string, running bool, devices map[string]map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.project(scope)
	fi := &fakeInstance{inst: newInstance(name, string(api.InstanceTypeContainer), nil, devices)}
	p.instances[name] = fi
	if running {
		fi.inst.Status = api.Running.String()
		fi.inst.StatusCode = api.Running
		p.assignAddresses(fi)
	}
}

// SeedNetwork creates or replaces a network directly.
func (h *FakeHypervisor) SeedNetwork(scope incus.Scope, name, typ, description string, cfg map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.project(scope).networks[name] = &api.Network{
		Name:       name,
		Type:       typ,
		Managed:    true,
		NetworkPut: api.NetworkPut{Config: maps.Clone(cfg), Description: description},
	}
}

// SeedACL creates an empty ACL directly.
func (h *FakeHypervisor) SeedACL(scope incus.Scope, name, description string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.project(scope).acls[name] = &api.NetworkACL{
		NetworkACLPost: api.NetworkACLPost{Name: name},
		NetworkACLPut:  api.NetworkACLPut{Description: description},
	}
}

// SeedForward creates a forward resource with the given ports.
func (h *FakeHypervisor) SeedForward(scope incus.Scope, network, listen string, ports ...api.NetworkForwardPort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.project(scope)
	if p.forwards[network] == nil {
		p.forwards[network] = map[string]*api.NetworkForward{}
	}
	p.forwards[network][listen] = &api.NetworkForward{
		ListenAddress:     listen,
		NetworkForwardPut: api.NetworkForwardPut{Ports: slices.Clone(ports)},
	}
}

// Instance returns a copy of the instance, or nil.
func (h *FakeHypervisor) Instance(scope incus.Scope, name string) *api.Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	fi, ok := h.project(scope).instances[name]
	if !ok {
		return nil
	}
	return cloneInstance(fi.inst)
}

// InstanceNames returns the instance names of a scope, sorted.
func (h *FakeHypervisor) InstanceNames(scope incus.Scope) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.project(scope).instances))
}

// Network returns a copy of the network, or nil.
func (h *FakeHypervisor) Network(scope incus.Scope, name string) *api.Network {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.project(scope).networks[name]
	if !ok {
		return nil
	}
	return cloneNetwork(n)
}

// ACL returns a copy of the ACL with UsedBy computed, or nil.
func (h *FakeHypervisor) ACL(scope incus.Scope, name string) *api.NetworkACL {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.project(scope)
	acl, ok := p.acls[name]
	if !ok {
		return nil
	}
	return p.aclView(scope.Project, acl)
}

// Forward returns a copy of the forward, or nil.
func (h *FakeHypervisor) Forward(scope incus.Scope, network, listen string) *api.NetworkForward {
	h.mu.Lock()
	defer h.mu.Unlock()
	fwd, ok := h.project(scope).forwards[network][listen]
	if !ok {
		return nil
	}
	return cloneForward(fwd)
}

// FakeClient is an incus.InfrastructureManager bound to one scope of a
// FakeHypervisor.
type FakeClient struct {
	h     *FakeHypervisor
	scope incus.Scope
}

// Scope implements incus.InfrastructureManager.
func (c *FakeClient) Scope() incus.Scope {
	return c.scope
}

func (c *FakeClient) lock() *fakeProject {
	c.h.mu.Lock()
	return c.h.project(c.scope)
}

func (c *FakeClient) unlock() {
	c.h.mu.Unlock()
}

func notFound(kind, name string) error {
	return fmt.Errorf("%w: %w", incus.ErrNotFound, api.StatusErrorf(http.StatusNotFound, "%s %q not found", kind, name))
}

// GetInstance implements incus.InstanceManager.
func (c *FakeClient) GetInstance(_ context.Context, name string) (*api.Instance, error) {
	p := c.lock()
	defer c.unlock()
	fi, ok := p.instances[name]
	if !ok {
		return nil, nil
	}
	return cloneInstance(fi.inst), nil
}

// GetInstanceState implements incus.InstanceManager.
func (c *FakeClient) GetInstanceState(_ context.Context, name string) (*api.InstanceState, error) {
	p := c.lock()
	defer c.unlock()
	fi, ok := p.instances[name]
	if !ok {
		return nil, notFound("instance", name)
	}

	state := &api.InstanceState{
		Status:     fi.inst.Status,
		StatusCode: fi.inst.StatusCode,
		Network: map[string]api.InstanceStateNetwork{
			"lo": {Addresses: []api.InstanceStateNetworkAddress{{Family: "inet", Address: "127.0.0.1", Netmask: "8", Scope: "local"}}},
		},
	}
	if fi.inst.StatusCode != api.Running {
		return state, nil
	}

	for dev, cfg := range fi.inst.ExpandedDevices {
		if cfg["type"] != "nic" {
			continue
		}
		addrs := []api.InstanceStateNetworkAddress{{Family: "inet6", Address: "fe80::216:3eff:fe00:1", Netmask: "64", Scope: "link"}}
		if fi.addressDelay > 0 {
			fi.addressDelay--
		} else {
			if fi.ipv4.IsValid() {
				addrs = append(addrs, api.InstanceStateNetworkAddress{Family: "inet", Address: fi.ipv4.String(), Scope: "global"})
			}
			if fi.ipv6.IsValid() {
				addrs = append(addrs, api.InstanceStateNetworkAddress{Family: "inet6", Address: fi.ipv6.String(), Scope: "global"})
			}
		}
		state.Network[dev] = api.InstanceStateNetwork{Addresses: addrs, State: "up", Type: "broadcast"}
		break
	}
	return state, nil
}

// LaunchInstance implements incus.InstanceManager.
func (c *FakeClient) LaunchInstance(_ context.Context, opts incus.LaunchOpts) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("launch %s", opts.Name); err != nil {
		return err
	}
	if _, ok := p.instances[opts.Name]; ok {
		return api.StatusErrorf(http.StatusConflict, "Instance %q already exists", opts.Name)
	}
	if c.h.MissingImages[opts.Image] {
		return notFound("image", opts.Image)
	}

	typ := api.InstanceTypeContainer
	if opts.VirtualMachine {
		typ = api.InstanceTypeVM
	}
	inst := newInstance(opts.Name, string(typ), opts.Config, opts.Devices)
	inst.Config["image.description"] = opts.ImageRemote + ":" + opts.Image
	p.instances[opts.Name] = &fakeInstance{inst: inst}
	return nil
}

// CopyInstance implements incus.InstanceManager.
func (c *FakeClient) CopyInstance(_ context.Context, opts incus.CopyOpts) error {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	if err := c.h.record("copy %s", opts.Name); err != nil {
		return err
	}
	p := c.h.project(c.scope)
	if _, ok := p.instances[opts.Name]; ok {
		return api.StatusErrorf(http.StatusConflict, "Instance %q already exists", opts.Name)
	}

	srcProject, ok := c.h.projects[incus.Scope{Remote: opts.SourceRemote, Project: opts.SourceProject}]
	if !ok {
		return notFound("project", opts.SourceProject)
	}
	src, ok := srcProject.instances[opts.SourceName]
	if !ok {
		return notFound("instance", opts.SourceName)
	}

	cfg := map[string]string{}
	for k, v := range src.inst.Config {
		if !strings.HasPrefix(k, "volatile.") || k == "volatile.base_image" {
			cfg[k] = v
		}
	}
	maps.Copy(cfg, opts.Config)
	devices := cloneDevices(src.inst.Devices)
	maps.Copy(devices, cloneDevices(opts.Devices))

	p.instances[opts.Name] = &fakeInstance{inst: newInstance(opts.Name, src.inst.Type, cfg, devices)}
	return nil
}

// StartInstance implements incus.InstanceManager.
func (c *FakeClient) StartInstance(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("start %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	if fi.inst.StatusCode == api.Running {
		return fmt.Errorf("the instance is already running")
	}
	c.h.setRunning(p, fi)
	return nil
}

// setRunning marks the instance running and resets its boot delays.
// Callers hold h.mu.
func (h *FakeHypervisor) setRunning(p *fakeProject, fi *fakeInstance) {
	fi.inst.Status = api.Running.String()
	fi.inst.StatusCode = api.Running
	fi.addressDelay = h.AddressDelay
	fi.bootDelay = h.BootDelay
	p.assignAddresses(fi)
}

// PauseInstance implements incus.InstanceManager.
func (c *FakeClient) PauseInstance(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("pause %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	if fi.inst.StatusCode != api.Running {
		return fmt.Errorf("%w: the instance isn't running", incus.ErrNotRunning)
	}
	fi.inst.Status = api.Frozen.String()
	fi.inst.StatusCode = api.Frozen
	return nil
}

// StopInstance implements incus.InstanceManager.
func (c *FakeClient) StopInstance(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("stop %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	if fi.inst.StatusCode == api.Stopped {
		return fmt.Errorf("%w: the instance is already stopped", incus.ErrAlreadyStopped)
	}
	fi.inst.Status = api.Stopped.String()
	fi.inst.StatusCode = api.Stopped
	return nil
}

// RestartInstance implements incus.InstanceManager.
func (c *FakeClient) RestartInstance(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("restart %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	if fi.inst.StatusCode != api.Running {
		return fmt.Errorf("%w: the instance isn't running", incus.ErrNotRunning)
	}
	c.h.setRunning(p, fi)
	return nil
}

// DeleteInstance implements incus.InstanceManager.
func (c *FakeClient) DeleteInstance(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("delete %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	if fi.inst.StatusCode != api.Stopped {
		return api.StatusErrorf(http.StatusBadRequest, "Instance is running")
	}
	delete(p.instances, name)
	return nil
}

// UpdateInstanceDevices implements incus.InstanceManager.
func (c *FakeClient) UpdateInstanceDevices(_ context.Context, name string, devices map[string]map[string]string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("update-devices %s", name); err != nil {
		return err
	}
	fi, ok := p.instances[name]
	if !ok {
		return notFound("instance", name)
	}
	for dev, cfg := range devices {
		for _, acl := range splitACLs(cfg["security.acls"]) {
			if _, ok := p.acls[acl]; !ok {
				return api.StatusErrorf(http.StatusBadRequest, "Invalid device %q: ACL %q not found", dev, acl)
			}
		}
	}
	fi.inst.Devices = cloneDevices(devices)
	fi.inst.ExpandedDevices = expandDevices(fi.inst.Devices)
	return nil
}

// ExecInstance implements incus.InstanceManager.
func (c *FakeClient) ExecInstance(_ context.Context, name string, command []string) (int, error) {
	p := c.lock()
	defer c.unlock()
	c.h.calls = append(c.h.calls, fmt.Sprintf("exec %s %s", name, strings.Join(command, " ")))
	if c.h.ExecFunc != nil {
		return c.h.ExecFunc(c.scope, name, command)
	}
	fi, ok := p.instances[name]
	if !ok {
		return 0, fmt.Errorf("%w: %w", incus.ErrGuestNotReady, notFound("instance", name))
	}
	if fi.inst.StatusCode != api.Running {
		return 0, fmt.Errorf("%w: %w: instance isn't running", incus.ErrGuestNotReady, incus.ErrNotRunning)
	}
	if fi.bootDelay > 0 {
		fi.bootDelay--
		return 0, fmt.Errorf("%w: VM agent isn't currently running", incus.ErrGuestNotReady)
	}
	return 0, nil
}

// GetNetwork implements incus.NetworkManager.
func (c *FakeClient) GetNetwork(_ context.Context, name string) (*api.Network, error) {
	p := c.lock()
	defer c.unlock()
	n, ok := p.networks[name]
	if !ok {
		return nil, nil
	}
	return cloneNetwork(n), nil
}

// CreateNetwork implements incus.NetworkManager.
func (c *FakeClient) CreateNetwork(_ context.Context, req api.NetworksPost) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("create-network %s", req.Name); err != nil {
		return err
	}
	if _, ok := p.networks[req.Name]; ok {
		return api.StatusErrorf(http.StatusConflict, "The network already exists")
	}
	if req.Type == "" {
		return api.StatusErrorf(http.StatusBadRequest, "Network type is required")
	}
	p.networks[req.Name] = &api.Network{
		Name:       req.Name,
		Type:       req.Type,
		Managed:    true,
		NetworkPut: api.NetworkPut{Config: maps.Clone(req.Config), Description: req.Description},
	}
	return nil
}

// UpdateNetwork implements incus.NetworkManager.
func (c *FakeClient) UpdateNetwork(_ context.Context, name string, put api.NetworkPut) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("update-network %s", name); err != nil {
		return err
	}
	n, ok := p.networks[name]
	if !ok {
		return notFound("network", name)
	}
	n.Config = maps.Clone(put.Config)
	n.Description = put.Description
	return nil
}

// GetNetworkACLs implements incus.ACLManager.
func (c *FakeClient) GetNetworkACLs(_ context.Context) ([]api.NetworkACL, error) {
	p := c.lock()
	defer c.unlock()
	out := make([]api.NetworkACL, 0, len(p.acls))
	for _, name := range slices.Sorted(maps.Keys(p.acls)) {
		out = append(out, *p.aclView(c.scope.Project, p.acls[name]))
	}
	return out, nil
}

// GetNetworkACL implements incus.ACLManager.
func (c *FakeClient) GetNetworkACL(_ context.Context, name string) (*api.NetworkACL, error) {
	p := c.lock()
	defer c.unlock()
	acl, ok := p.acls[name]
	if !ok {
		return nil, nil
	}
	return p.aclView(c.scope.Project, acl), nil
}

// CreateNetworkACL implements incus.ACLManager.
func (c *FakeClient) CreateNetworkACL(_ context.Context, req api.NetworkACLsPost) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("create-acl %s", req.Name); err != nil {
		return err
	}
	if _, ok := p.acls[req.Name]; ok {
		return api.StatusErrorf(http.StatusConflict, "The network ACL already exists")
	}
	p.acls[req.Name] = &api.NetworkACL{
		NetworkACLPost: req.NetworkACLPost,
		NetworkACLPut: api.NetworkACLPut{
			Description: req.Description,
			Egress:      slices.Clone(req.Egress),
			Ingress:     slices.Clone(req.Ingress),
		},
	}
	return nil
}

// DeleteNetworkACL implements incus.ACLManager.
func (c *FakeClient) DeleteNetworkACL(_ context.Context, name string) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("delete-acl %s", name); err != nil {
		return err
	}
	acl, ok := p.acls[name]
	if !ok {
		return notFound("network ACL", name)
	}
	if len(p.aclView(c.scope.Project, acl).UsedBy) > 0 {
		return api.StatusErrorf(http.StatusBadRequest, "Cannot delete an ACL that is in use")
	}
	delete(p.acls, name)
	return nil
}

// GetNetworkForwards implements incus.ForwardManager.
func (c *FakeClient) GetNetworkForwards(_ context.Context, network string) ([]api.NetworkForward, error) {
	p := c.lock()
	defer c.unlock()
	if _, ok := p.networks[network]; !ok {
		return nil, notFound("network", network)
	}
	fwds := p.forwards[network]
	out := make([]api.NetworkForward, 0, len(fwds))
	for _, listen := range slices.Sorted(maps.Keys(fwds)) {
		out = append(out, *cloneForward(fwds[listen]))
	}
	return out, nil
}

// GetNetworkForward implements incus.ForwardManager.
func (c *FakeClient) GetNetworkForward(_ context.Context, network, listenAddress string) (*api.NetworkForward, error) {
	p := c.lock()
	defer c.unlock()
	fwd, ok := p.forwards[network][listenAddress]
	if !ok {
		return nil, nil
	}
	return cloneForward(fwd), nil
}

// AddNetworkForwardPort implements incus.ForwardManager.
func (c *FakeClient) AddNetworkForwardPort(_ context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("add-forward %s %s/%s -> %s:%s", listenAddress, port.Protocol, port.ListenPort, port.TargetAddress, port.TargetPort); err != nil {
		return err
	}
	fwd, ok := p.forwards[network][listenAddress]
	if !ok {
		return notFound("network forward", listenAddress)
	}
	for _, existing := range fwd.Ports {
		if existing.Protocol == port.Protocol && existing.ListenPort == port.ListenPort {
			return api.StatusErrorf(http.StatusBadRequest, "Duplicate listen port %s/%s", port.Protocol, port.ListenPort)
		}
	}
	fwd.Ports = append(fwd.Ports, port)
	return nil
}

// RemoveNetworkForwardPort implements incus.ForwardManager.
func (c *FakeClient) RemoveNetworkForwardPort(_ context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	p := c.lock()
	defer c.unlock()
	if err := c.h.record("remove-forward %s %s/%s", listenAddress, port.Protocol, port.ListenPort); err != nil {
		return err
	}
	fwd, ok := p.forwards[network][listenAddress]
	if !ok {
		return notFound("network forward", listenAddress)
	}
	kept := incus.RemovePort(fwd.Ports, port)
	if len(kept) == len(fwd.Ports) {
		return notFound("forward port", port.Protocol+"/"+port.ListenPort)
	}
	fwd.Ports = kept
	return nil
}

// aclView returns a copy of acl with UsedBy computed from instance devices.
func (p *fakeProject) aclView(project string, acl *api.NetworkACL) *api.NetworkACL {
	view := *acl
	view.Egress = slices.Clone(acl.Egress)
	view.Ingress = slices.Clone(acl.Ingress)
	view.UsedBy = []string{}
	for _, name := range slices.Sorted(maps.Keys(p.instances)) {
		for _, cfg := range p.instances[name].inst.ExpandedDevices {
			if slices.Contains(splitACLs(cfg["security.acls"]), acl.Name) {
				view.UsedBy = append(view.UsedBy, incus.InstanceURL(project, name))
				break
			}
		}
	}
	return &view
}

// assignAddresses gives a started instance its addresses: the pinned
// device values, or the next free host of the attached network's subnets.
func (p *fakeProject) assignAddresses(fi *fakeInstance) {
	for _, cfg := range fi.inst.ExpandedDevices {
		if cfg["type"] != "nic" {
			continue
		}
		network := p.networks[cfg["network"]]
		if v, err := netip.ParseAddr(cfg["ipv4.address"]); err == nil {
			fi.ipv4 = v
		} else if !fi.ipv4.IsValid() && network != nil {
			fi.ipv4 = p.allocate(network, "ipv4.address")
		}
		if v, err := netip.ParseAddr(cfg["ipv6.address"]); err == nil {
			fi.ipv6 = v
		} else if !fi.ipv6.IsValid() && network != nil {
			fi.ipv6 = p.allocate(network, "ipv6.address")
		}
		return
	}
}

func (p *fakeProject) allocate(network *api.Network, key string) netip.Addr {
	prefix, err := netip.ParsePrefix(network.Config[key])
	if err != nil {
		return netip.Addr{}
	}
	counter := network.Name + "/" + key
	p.next[counter]++
	addr := prefix.Masked().Addr()
	for range p.next[counter] + 1 {
		addr = addr.Next()
	}
	return addr
}

func newInstance(name, typ string, cfg map[string]string, devices map[string]map[string]string) *api.Instance {
	inst := &api.Instance{
		Name:       name,
		Type:       typ,
		Status:     api.Stopped.String(),
		StatusCode: api.Stopped,
	}
	inst.Config = maps.Clone(cfg)
	if inst.Config == nil {
		inst.Config = map[string]string{}
	}
	inst.Devices = cloneDevices(devices)
	inst.Profiles = []string{"default"}
	inst.ExpandedDevices = expandDevices(inst.Devices)
	inst.ExpandedConfig = maps.Clone(inst.Config)
	return inst
}

// expandDevices merges local devices over the default profile.
func expandDevices(local map[string]map[string]string) map[string]map[string]string {
	out := map[string]map[string]string{
		"eth0": {"type": "nic", "name": "eth0", "network": DefaultNetwork},
		"root": {"type": "disk", "path": "/", "pool": "default"},
	}
	maps.Copy(out, cloneDevices(local))
	return out
}

func splitACLs(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func cloneDevices(in map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(in))
	for k, v := range in {
		out[k] = maps.Clone(v)
	}
	return out
}

func cloneInstance(in *api.Instance) *api.Instance {
	out := *in
	out.Config = maps.Clone(in.Config)
	out.Devices = cloneDevices(in.Devices)
	out.ExpandedConfig = maps.Clone(in.ExpandedConfig)
	out.ExpandedDevices = cloneDevices(in.ExpandedDevices)
	out.Profiles = slices.Clone(in.Profiles)
	return &out
}

func cloneNetwork(in *api.Network) *api.Network {
	out := *in
	out.Config = maps.Clone(in.Config)
	return &out
}

func cloneForward(in *api.NetworkForward) *api.NetworkForward {
	out := *in
	out.Ports = slices.Clone(in.Ports)
	out.Config = maps.Clone(in.Config)
	return &out
}
