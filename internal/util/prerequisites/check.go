// Package prerequisites checks that the external programs a deployment
// shells out to are installed.
package prerequisites

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrMissingTool is wrapped by CheckResults.Error.
var ErrMissingTool = errors.New("missing required tools")

const versionTimeout = 5 * time.Second

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name (or path) to look for.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string

	// VersionArgs are passed to the tool to print its version.
	VersionArgs []string
}

// RunnerTool returns the workload runner, which every deploy needs.
func RunnerTool(binary string) Tool {
	return Tool{
		Name:        binary,
		Required:    true,
		Description: "Runs the challenge playbook against the provisioned instances",
		InstallURL:  "https://ansible.readthedocs.io/projects/runner/en/latest/install/",
		VersionArgs: []string{"--version"},
	}
}

// OptionalTools returns tools that are useful but not required.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "incus",
			Required:    false,
			Description: "Useful for inspecting instances and managing remotes",
			InstallURL:  "https://linuxcontainers.org/incus/docs/main/installing/",
			VersionArgs: []string{"version"},
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error wrapping ErrMissingTool if any required tools are
// missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingTool, strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(ctx context.Context, tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = toolVersion(ctx, path, tool.VersionArgs)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckDeploy checks the tools a deploy with the given runner binary needs.
func CheckDeploy(ctx context.Context, runner string) *CheckResults {
	return Check(ctx, append([]Tool{RunnerTool(runner)}, OptionalTools()...))
}

// toolVersion returns the first line the tool prints for its version
// arguments, or "" when it cannot be determined.
func toolVersion(ctx context.Context, path string, args []string) string {
	if len(args) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	// #nosec G204 - path was resolved by LookPath from a fixed tool list
	output, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first)
}
