package labels

import "maps"

// Prefix namespaces every key under the instance user config.
const Prefix = "user.chaldeploy."

// Standard keys.
const (
	// KeyDeployment is the deployment directory name.
	KeyDeployment = Prefix + "deployment"

	// KeyRun is the run id that created the instance.
	KeyRun = Prefix + "run"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = Prefix + "managed-by"
)

// ManagedByChaldeploy is the KeyManagedBy value.
const ManagedByChaldeploy = "chaldeploy"

// LabelBuilder provides a fluent interface for building instance labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the deployment and manager set.
// An empty deployment is left out.
func NewLabelBuilder(deployment string) *LabelBuilder {
	lb := &LabelBuilder{labels: map[string]string{KeyManagedBy: ManagedByChaldeploy}}
	if deployment != "" {
		lb.labels[KeyDeployment] = deployment
	}
	return lb
}

// WithRun adds the run id when it is non-empty.
func (lb *LabelBuilder) WithRun(id string) *LabelBuilder {
	if id != "" {
		lb.labels[KeyRun] = id
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	return maps.Clone(lb.labels)
}

// Apply returns a copy of cfg with the labels added. Keys the user set
// under Prefix themselves are overwritten.
func (lb *LabelBuilder) Apply(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg)+len(lb.labels))
	maps.Copy(out, cfg)
	maps.Copy(out, lb.labels)
	return out
}

// Managed reports whether an instance config carries the manager label.
func Managed(cfg map[string]string) bool {
	return cfg[KeyManagedBy] == ManagedByChaldeploy
}
