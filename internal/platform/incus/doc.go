// Package incus wraps the Incus Go client behind the narrow interfaces the
// provisioning layer depends on.
//
// # Architecture
//
//   - client.go: Manager interfaces and creation options
//   - connector.go: Remote and project scope resolution from the incus CLI config
//   - real_client.go: RealClient construction and operation waiting
//   - instance.go: Instance lifecycle, devices and exec
//   - network.go: Network get, create and update
//   - acl.go: Network ACL get-or-create and deletion
//   - forward.go: Port mappings on existing network forwards
//   - errors.go: Error classification into sentinel errors
//   - mock_client.go: Function-field mock for unit tests
//
// Every "get" method returns a nil resource and a nil error when the
// resource does not exist, so callers can branch on presence without
// inspecting transport errors.
//
// # Error Classification
//
// Incus reports "already in the target state" conditions as plain HTTP
// errors. They are mapped onto [ErrAlreadyStopped], [ErrNotRunning] and
// [ErrGuestNotReady] so the teardown and readiness code can tolerate them
// with errors.Is.
package incus
