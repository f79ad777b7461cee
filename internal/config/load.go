package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every load and validation failure.
var ErrInvalid = errors.New("invalid deployment config")

// LoadFile reads and validates a deployment config file.
func LoadFile(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	d, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load decodes and validates a deployment config document. The top-level
// "config" key holds either a single instance or a list of instances.
func Load(data []byte) (*Deployment, error) {
	var doc fileDoc
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(doc.Config) == 0 {
		return nil, fmt.Errorf("%w: no instances under the config key", ErrInvalid)
	}

	d := &Deployment{Instances: make([]Instance, 0, len(doc.Config))}
	for i, raw := range doc.Config {
		inst, err := raw.build()
		if err != nil {
			return nil, fmt.Errorf("%w: config[%d]: %v", ErrInvalid, i, err)
		}
		d.Instances = append(d.Instances, inst)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// decodeNodeStrict re-encodes a node so nested values keep unknown-field
// checking, which yaml.Node.Decode does not apply.
func decodeNodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return decodeStrict(data, out)
}

type fileDoc struct {
	Config instanceList `yaml:"config"`
}

type instanceList []rawInstance

func (l *instanceList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []rawInstance
		if err := decodeNodeStrict(node, &items); err != nil {
			return err
		}
		*l = items
	case yaml.MappingNode:
		var item rawInstance
		if err := decodeNodeStrict(node, &item); err != nil {
			return err
		}
		*l = instanceList{item}
	default:
		return fmt.Errorf("line %d: config must be an object or a list of objects", node.Line)
	}
	return nil
}

type rawInstance struct {
	Name    string      `yaml:"name"`
	Remote  string      `yaml:"remote"`
	Project string      `yaml:"project"`
	Launch  *rawLaunch  `yaml:"launch"`
	Copy    *rawCopy    `yaml:"copy"`
	Network *rawNetwork `yaml:"network"`
}

type rawLaunch struct {
	Image struct {
		Name   string `yaml:"name"`
		Remote string `yaml:"remote"`
	} `yaml:"image"`
	Config           stringMap `yaml:"config"`
	IsVirtualMachine bool      `yaml:"is_virtual_machine"`
}

type rawCopy struct {
	Name    string    `yaml:"name"`
	Remote  string    `yaml:"remote"`
	Project string    `yaml:"project"`
	Config  stringMap `yaml:"config"`
}

type rawNetwork struct {
	Name          string       `yaml:"name"`
	Type          string       `yaml:"type"`
	LegacyType    string       `yaml:"_type"`
	Description   string       `yaml:"description"`
	Action        string       `yaml:"action"`
	Config        stringMap    `yaml:"config"`
	Device        string       `yaml:"device"`
	ListenAddress string       `yaml:"listen_address"`
	IPv4          rawAddress   `yaml:"ipv4"`
	IPv6          rawAddress   `yaml:"ipv6"`
	StaticIP      bool         `yaml:"static_ip"`
	Forwards      []rawForward `yaml:"forwards"`
	ACLs          []rawACL     `yaml:"acls"`
}

type rawForward struct {
	Source      scalar `yaml:"source"`
	Destination scalar `yaml:"destination"`
	Protocol    string `yaml:"protocol"`
}

type rawACL struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Egress      []rawACLRule `yaml:"egress"`
	Ingress     []rawACLRule `yaml:"ingress"`
}

type rawACLRule struct {
	Action          string `yaml:"action"`
	State           string `yaml:"state"`
	Description     string `yaml:"description"`
	Source          string `yaml:"source"`
	Destination     string `yaml:"destination"`
	SourcePort      scalar `yaml:"source_port"`
	DestinationPort scalar `yaml:"destination_port"`
	Protocol        string `yaml:"protocol"`
}

// scalar keeps the literal text of a YAML scalar so ports may be written
// either as integers or as strings like "80-90".
type scalar string

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	*s = scalar(strings.TrimSpace(node.Value))
	return nil
}

// stringMap accepts any scalar values and stores their literal text,
// matching how instance and network config keys are sent to Incus.
type stringMap map[string]string

func (m *stringMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(stringMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", val.Line, key.Value)
		}
		out[key.Value] = val.Value
	}
	*m = out
	return nil
}

// rawAddress is an address literal, or a falsy value suppressing the family.
type rawAddress struct {
	set        bool
	value      string
	suppressed bool
}

func (a *rawAddress) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an address or false", node.Line)
	}
	a.set = true
	if node.Tag == "!!null" {
		a.set = false
		return nil
	}
	if isFalse(node.Value) {
		a.suppressed = true
		return nil
	}
	a.value = strings.TrimSpace(node.Value)
	return nil
}

func isFalse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "no", "off", "0", "none":
		return true
	}
	return false
}

func (r rawInstance) build() (Instance, error) {
	inst := Instance{
		Name:    r.Name,
		Remote:  r.Remote,
		Project: r.Project,
	}

	switch {
	case r.Launch != nil && r.Copy != nil:
		return inst, errors.New("only one of launch and copy may be set")
	case r.Launch != nil:
		inst.Source = &LaunchSource{
			Image:          Image{Name: r.Launch.Image.Name, Remote: r.Launch.Image.Remote},
			Config:         r.Launch.Config,
			VirtualMachine: r.Launch.IsVirtualMachine,
		}
	case r.Copy != nil:
		src := &CopySource{
			Name:    r.Copy.Name,
			Remote:  r.Copy.Remote,
			Project: r.Copy.Project,
			Config:  r.Copy.Config,
		}
		if src.Remote == "" {
			src.Remote = r.Remote
		}
		if src.Project == "" {
			src.Project = r.Project
		}
		inst.Source = src
	default:
		return inst, errors.New("one of launch or copy is required")
	}

	if r.Network != nil {
		n, err := r.Network.build()
		if err != nil {
			return inst, fmt.Errorf("network: %w", err)
		}
		inst.Network = n
	}
	return inst, nil
}

func (r *rawNetwork) build() (*Network, error) {
	n := &Network{
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		Action:      NetworkAction(strings.ToLower(r.Action)),
		Config:      r.Config,
		Device:      r.Device,
		StaticIP:    r.StaticIP,
	}
	if n.Type == "" {
		n.Type = r.LegacyType
	}
	if n.Action == "" {
		n.Action = ActionSkip
	}
	if !ValidNetworkActions[n.Action] {
		n.Action = ActionLookup
	}
	if n.Device == "" {
		n.Device = DefaultDevice
	}

	if r.ListenAddress != "" {
		addr, err := netip.ParseAddr(r.ListenAddress)
		if err != nil {
			return nil, fmt.Errorf("listen_address must be a valid IPv4/IPv6 address: %q", r.ListenAddress)
		}
		n.ListenAddress = addr
	}

	var err error
	if n.IPv4, err = r.IPv4.override(true); err != nil {
		return nil, err
	}
	if n.IPv6, err = r.IPv6.override(false); err != nil {
		return nil, err
	}

	for _, f := range r.Forwards {
		proto := Protocol(strings.ToLower(f.Protocol))
		if proto == "" {
			proto = ProtocolTCP
		}
		n.Forwards = append(n.Forwards, Forward{
			ListenPorts: string(f.Source),
			TargetPorts: string(f.Destination),
			Protocol:    proto,
		})
	}

	for _, a := range r.ACLs {
		acl := ACL{Name: a.Name, Description: a.Description}
		for _, rule := range a.Egress {
			acl.Egress = append(acl.Egress, rule.build())
		}
		for _, rule := range a.Ingress {
			acl.Ingress = append(acl.Ingress, rule.build())
		}
		n.ACLs = append(n.ACLs, acl)
	}
	return n, nil
}

func (a rawAddress) override(v4 bool) (AddressOverride, error) {
	if !a.set || a.suppressed {
		return AddressOverride{Suppressed: a.suppressed}, nil
	}
	family, want := "ipv6", "IPv6"
	if v4 {
		family, want = "ipv4", "IPv4"
	}
	addr, err := netip.ParseAddr(a.value)
	if err != nil || addr.Is4() != v4 || addr.Zone() != "" {
		return AddressOverride{}, fmt.Errorf("%s must be a valid %s address: %q", family, want, a.value)
	}
	return AddressOverride{Address: addr}, nil
}

func (r rawACLRule) build() ACLRule {
	state := strings.ToLower(r.State)
	if state == "" {
		state = "enabled"
	}
	return ACLRule{
		Action:          strings.ToLower(r.Action),
		State:           state,
		Description:     r.Description,
		Source:          r.Source,
		Destination:     r.Destination,
		SourcePort:      string(r.SourcePort),
		DestinationPort: string(r.DestinationPort),
		Protocol:        strings.ToLower(r.Protocol),
	}
}
