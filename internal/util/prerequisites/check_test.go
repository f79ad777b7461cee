package prerequisites

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTool creates an executable script that prints output and returns
// its path.
func writeTool(t *testing.T, name, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\necho '" + output + "'\necho 'second line'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestCheck(t *testing.T) {
	path := writeTool(t, "ansible-runner", "2.4.0")

	results := Check(context.Background(), []Tool{RunnerTool(path)})

	if len(results.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results.Results))
	}
	got := results.Results[0]
	if !got.Found {
		t.Errorf("expected %s to be found", path)
	}
	if got.Path != path {
		t.Errorf("expected path %s, got %s", path, got.Path)
	}
	if got.Version != "2.4.0" {
		t.Errorf("expected first output line as version, got %q", got.Version)
	}
	if results.HasErrors() {
		t.Errorf("expected no errors")
	}
	if err := results.Error(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestCheckMissingTool(t *testing.T) {
	results := Check(context.Background(), []Tool{RunnerTool("nonexistent-runner-xyz123")})

	if len(results.Missing) != 1 {
		t.Errorf("expected 1 missing tool, got %d", len(results.Missing))
	}
	if !results.HasErrors() {
		t.Errorf("expected HasErrors to be true")
	}

	err := results.Error()
	if !errors.Is(err, ErrMissingTool) {
		t.Fatalf("expected ErrMissingTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "nonexistent-runner-xyz123") {
		t.Errorf("expected the tool name in %q", err)
	}
}

func TestCheckOptionalMissing(t *testing.T) {
	tools := []Tool{
		{
			Name:        "nonexistent-tool-xyz123",
			Required:    false,
			Description: "An optional tool that does not exist",
			InstallURL:  "https://example.com",
		},
	}

	results := Check(context.Background(), tools)

	if len(results.Missing) != 1 {
		t.Errorf("expected 1 missing tool, got %d", len(results.Missing))
	}
	// Optional tools don't cause errors
	if results.HasErrors() {
		t.Errorf("expected HasErrors to be false for optional tools")
	}
	if err := results.Error(); err != nil {
		t.Errorf("expected Error to return nil for optional tools, got %v", err)
	}
}

func TestCheckWithoutVersionArgs(t *testing.T) {
	path := writeTool(t, "tool", "1.0")

	results := Check(context.Background(), []Tool{{Name: path, Required: true}})

	if v := results.Results[0].Version; v != "" {
		t.Errorf("expected no version probe, got %q", v)
	}
}

func TestCheckDeploy(t *testing.T) {
	results := CheckDeploy(context.Background(), "nonexistent-runner-xyz123")

	if len(results.Results) != 1+len(OptionalTools()) {
		t.Fatalf("expected runner plus optional tools, got %d results", len(results.Results))
	}
	if results.Results[0].Tool.Name != "nonexistent-runner-xyz123" {
		t.Errorf("expected the runner first, got %s", results.Results[0].Tool.Name)
	}
	if !results.HasErrors() {
		t.Errorf("expected a missing runner to be an error")
	}
}

func TestOptionalTools(t *testing.T) {
	tools := OptionalTools()

	if len(tools) == 0 {
		t.Fatal("expected OptionalTools to return at least one tool")
	}
	for _, tool := range tools {
		if tool.Required {
			t.Errorf("optional tool %s should have Required = false", tool.Name)
		}
	}
	if tools[0].Name != "incus" {
		t.Errorf("expected incus in OptionalTools, got %s", tools[0].Name)
	}
}
