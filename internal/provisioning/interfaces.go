package provisioning

import "time"

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// PhaseRecorder receives the outcome of every phase run by RunPhases.
// Implemented by internal/metrics.Recorder.
type PhaseRecorder interface {
	ObservePhase(phase string, duration time.Duration, err error)
}
