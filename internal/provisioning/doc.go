// Package provisioning provides shared types and interfaces for deploying
// instances onto an Incus remote.
//
// # Subpackages
//
//   - compute/: instance creation, recreation and readiness waits
//   - infrastructure/: networks, ACLs, port forwards, static addresses
//   - destroy/: ordered instance teardown and orphan cleanup
//
// # Core Types
//
// Context carries the run's observer, timeouts and accumulated state.
// Phase defines a step with Name() and Provision() methods; RunPhases runs
// a list of them in order. Target pairs one desired instance with its
// resolved hypervisor scope and live handle.
package provisioning
