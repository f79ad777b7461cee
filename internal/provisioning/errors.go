package provisioning

import "errors"

var (
	// ErrAlreadyExists is returned when an instance exists and redeploy was not forced.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned when a resource that must pre-exist is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig is returned for requests the hypervisor state makes impossible.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotRunning is returned when a wait requires a running instance.
	ErrNotRunning = errors.New("instance is not running")
	// ErrNoAddress is returned when an instance exposes no global-scope address.
	ErrNoAddress = errors.New("no global address")
	// ErrWorkloadFailed is returned when the workload runner reports failure.
	ErrWorkloadFailed = errors.New("workload failed")
)
