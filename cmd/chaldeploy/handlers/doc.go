// Package handlers implements the business logic behind the CLI commands.
//
// Each handler wires the concrete hypervisor connector, workload runner and
// optional exporters into the orchestrator. The constructors are package
// variables so tests can substitute fakes.
package handlers
