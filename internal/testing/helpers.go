package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// TestContext returns a context with a reasonable timeout for tests.
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewProvisioningContext returns a provisioning context for dep with a
// recording observer and fast test timeouts.
func NewProvisioningContext(t testing.TB, dep *config.Deployment) (*provisioning.Context, *RecordingObserver) {
	obs := NewRecordingObserver()
	return provisioning.NewContext(TestContext(t), dep, obs, config.TestTimeouts()), obs
}

// Bind resolves every target of ctx against h, as the scope phase does.
func Bind(t testing.TB, ctx *provisioning.Context, h *FakeHypervisor) {
	t.Helper()
	for _, target := range ctx.State.Targets {
		infra, err := h.Connect(ctx, target.Scope())
		if err != nil {
			t.Fatalf("bind %s: %v", target.Name(), err)
		}
		target.Infra = infra
	}
}

// WriteDeploymentDir creates a deployment directory named name under a
// temporary challenges dir, with the given config.yml content, an
// inventory and a playbook. It returns the challenges dir.
func WriteDeploymentDir(t testing.TB, name, configYAML string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	files := map[string]string{
		config.ConfigFileName:    configYAML,
		config.InventoryFileName: "[challenge]\n",
		config.PlaybookFileName:  "- hosts: all\n  tasks: []\n",
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
	return root
}
