package infrastructure

const phase = "infrastructure"

// Provisioner handles networks, ACLs, forwards and static addresses.
type Provisioner struct{}

// NewProvisioner creates a new infrastructure provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}
