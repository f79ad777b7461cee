// Package testing provides test utilities, builders, and fixtures for unit and integration tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - FakeHypervisor: stateful in-memory Incus remotes implementing the full client contract
//   - InstanceBuilder: fluent builder for desired instances
//   - MockRunner, MockArchiver: testify mocks for the workload step
//   - RecordingObserver: provisioning.Observer that keeps events for assertions
//
// Usage:
//
//	lab := testing.NewLab()
//	dep := testing.NewDeployment(
//	    testing.NewInstance("web").WithACL("web-acl").WithForward(testing.TestListenAddress, "80", "8080"),
//	)
//	ctx, obs := testing.NewProvisioningContext(t, dep)
//	testing.Bind(t, ctx, lab)
package testing
