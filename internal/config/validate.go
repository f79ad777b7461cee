package config

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

var instanceNameRe = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidNetworkActions lists the actions accepted by the network reconciler.
var ValidNetworkActions = map[NetworkAction]bool{
	ActionCreate: true,
	ActionUpdate: true,
	ActionSkip:   true,
	ActionLookup: true,
}

// ValidACLActions contains the rule actions Incus accepts.
var ValidACLActions = map[string]bool{
	"allow":           true,
	"allow-stateless": true,
	"drop":            true,
	"reject":          true,
}

// ValidACLStates contains the rule states Incus accepts.
var ValidACLStates = map[string]bool{
	"enabled":  true,
	"disabled": true,
	"logged":   true,
}

// ValidACLProtocols contains the rule protocols Incus accepts. The empty
// protocol matches any traffic.
var ValidACLProtocols = map[string]bool{
	"":      true,
	"tcp":   true,
	"udp":   true,
	"icmp4": true,
	"icmp6": true,
}

// Validate checks every instance and rejects duplicate instance names
// within the same remote and project.
func (d *Deployment) Validate() error {
	seen := make(map[string]bool, len(d.Instances))
	for i := range d.Instances {
		inst := &d.Instances[i]
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("%w: instance %q: %v", ErrInvalid, inst.Name, err)
		}
		key := inst.Remote + ":" + inst.Project + "/" + inst.Name
		if seen[key] {
			return fmt.Errorf("%w: instance %q is declared more than once in %s/%s", ErrInvalid, inst.Name, inst.Remote, inst.Project)
		}
		seen[key] = true
	}
	return nil
}

// Validate checks a single instance spec.
func (i *Instance) Validate() error {
	if !instanceNameRe.MatchString(i.Name) {
		return fmt.Errorf("invalid instance name %q: must be 1-63 letters, digits or hyphens, start with a letter and not end with a hyphen", i.Name)
	}
	if err := validateObjectName("remote", i.Remote); err != nil {
		return err
	}
	if err := validateObjectName("project", i.Project); err != nil {
		return err
	}

	switch src := i.Source.(type) {
	case *LaunchSource:
		if err := validateObjectName("launch.image.remote", src.Image.Remote); err != nil {
			return err
		}
		if strings.TrimSpace(src.Image.Name) == "" {
			return errors.New("launch.image.name is required")
		}
	case *CopySource:
		if !instanceNameRe.MatchString(src.Name) {
			return fmt.Errorf("invalid copy.name %q", src.Name)
		}
		if err := validateObjectName("copy.remote", src.Remote); err != nil {
			return err
		}
		if err := validateObjectName("copy.project", src.Project); err != nil {
			return err
		}
	case nil:
		return errors.New("one of launch or copy is required")
	default:
		return fmt.Errorf("unsupported source %T", src)
	}

	if i.Network != nil {
		if err := i.Network.Validate(); err != nil {
			return fmt.Errorf("network: %w", err)
		}
	}
	return nil
}

// Validate checks the network spec.
func (n *Network) Validate() error {
	if err := validateObjectName("name", n.Name); err != nil {
		return err
	}
	if n.Action == ActionCreate && n.Type == "" {
		return errors.New("type is required when action is create")
	}
	if n.Device == "" {
		return errors.New("device is required")
	}

	if err := validateSubnet("ipv4", n.IPv4, n.Config["ipv4.address"]); err != nil {
		return err
	}
	if err := validateSubnet("ipv6", n.IPv6, n.Config["ipv6.address"]); err != nil {
		return err
	}

	if len(n.Forwards) > 0 && !n.ListenAddress.IsValid() {
		return errors.New("listen_address is required when forwards are present")
	}
	for idx, f := range n.Forwards {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("forwards[%d]: %w", idx, err)
		}
	}

	for idx, acl := range n.ACLs {
		if err := acl.Validate(); err != nil {
			return fmt.Errorf("acls[%d]: %w", idx, err)
		}
	}
	return nil
}

// Validate checks port lists and protocol.
func (f Forward) Validate() error {
	if f.Protocol != ProtocolTCP && f.Protocol != ProtocolUDP {
		return fmt.Errorf("protocol %q must be one of tcp, udp", f.Protocol)
	}
	listen, err := CountPorts(f.ListenPorts)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	target, err := CountPorts(f.TargetPorts)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if target != 1 && target != listen {
		return fmt.Errorf("destination must be a single port or match the %d source ports", listen)
	}
	return nil
}

// Validate checks the ACL name and its rules.
func (a ACL) Validate() error {
	if err := validateObjectName("name", a.Name); err != nil {
		return err
	}
	for idx, r := range a.Egress {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("egress[%d]: %w", idx, err)
		}
	}
	for idx, r := range a.Ingress {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("ingress[%d]: %w", idx, err)
		}
	}
	return nil
}

// Validate checks a rule. Ports require a tcp or udp protocol.
func (r ACLRule) Validate() error {
	if !ValidACLActions[r.Action] {
		return fmt.Errorf("invalid action %q", r.Action)
	}
	if !ValidACLStates[r.State] {
		return fmt.Errorf("invalid state %q", r.State)
	}
	if !ValidACLProtocols[r.Protocol] {
		return fmt.Errorf("invalid protocol %q", r.Protocol)
	}

	hasPort := r.SourcePort != "" || r.DestinationPort != ""
	if hasPort && r.Protocol != "tcp" && r.Protocol != "udp" {
		return errors.New("protocol must be tcp or udp when source_port or destination_port is set")
	}
	for _, p := range []string{r.SourcePort, r.DestinationPort} {
		if p == "" {
			continue
		}
		if _, err := CountPorts(p); err != nil {
			return err
		}
	}
	return nil
}

// CountPorts parses a port list such as "80", "8000-8010" or "80,443" and
// returns the number of ports it covers.
func CountPorts(list string) (int, error) {
	if strings.TrimSpace(list) == "" {
		return 0, errors.New("port list is empty")
	}
	total := 0
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parsePort(lo)
		if err != nil {
			return 0, err
		}
		last := first
		if isRange {
			if last, err = parsePort(hi); err != nil {
				return 0, err
			}
			if last < first {
				return 0, fmt.Errorf("invalid port range %q", part)
			}
		}
		total += last - first + 1
	}
	return total, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be between 1 and 65535", s)
	}
	return p, nil
}

// SubnetOf returns the prefix declared by a network address key such as
// "10.0.3.1/24". Values like "auto" or "none" declare no usable subnet.
func SubnetOf(value string) (netip.Prefix, bool) {
	p, err := netip.ParsePrefix(strings.TrimSpace(value))
	if err != nil {
		return netip.Prefix{}, false
	}
	return p.Masked(), true
}

func validateSubnet(family string, o AddressOverride, declared string) error {
	if !o.Explicit() || declared == "" {
		return nil
	}
	subnet, ok := SubnetOf(declared)
	if !ok {
		return nil
	}
	if !subnet.Contains(o.Address) {
		return fmt.Errorf("%s %s is outside the network subnet %s", family, o.Address, subnet)
	}
	return nil
}

func validateObjectName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/ \t\n:") {
		return fmt.Errorf("invalid %s %q", field, name)
	}
	return nil
}
