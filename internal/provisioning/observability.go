package provisioning

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-logr/logr"
)

// Observer defines the interface for structured observability during a run.
type Observer interface {
	// Printf logs a free-form progress message.
	Printf(format string, v ...any)

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "network", "readiness")
	Message   string            // Human-readable message
	Resource  string            // Resource name if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"
	EventResourceUpdated  EventType = "resource.updated"
	EventResourceDeleting EventType = "resource.deleting"
	EventResourceDeleted  EventType = "resource.deleted"
	// EventResourceSkipped marks an operation the hypervisor reported as already done.
	EventResourceSkipped EventType = "resource.skipped"

	// EventWaiting is emitted on every unsuccessful readiness poll. Debug level.
	EventWaiting EventType = "wait.pending"
	EventReady   EventType = "wait.ready"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// Resource kinds used in event fields.
const (
	KindInstance = "instance"
	KindNetwork  = "network"
	KindACL      = "acl"
	KindForward  = "forward"
	KindAddress  = "address"
)

// LogrObserver implements Observer on top of a logr.Logger.
type LogrObserver struct {
	log    logr.Logger
	fields map[string]string
}

// NewLogrObserver creates an observer writing to log.
func NewLogrObserver(log logr.Logger) *LogrObserver {
	return &LogrObserver{log: log, fields: map[string]string{}}
}

// Printf implements Observer.
func (o *LogrObserver) Printf(format string, v ...any) {
	o.log.Info(fmt.Sprintf(format, v...), o.keysAndValues(nil)...)
}

// Event implements Observer.
func (o *LogrObserver) Event(event Event) {
	kv := []any{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	kv = append(kv, o.keysAndValues(event.Fields)...)

	switch event.Type {
	case EventWaiting, EventProgress:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// Progress implements Observer.
func (o *LogrObserver) Progress(phase string, current, total int) {
	o.Event(Event{
		Type:    EventProgress,
		Phase:   phase,
		Message: fmt.Sprintf("%d/%d", current, total),
	})
}

// WithFields implements Observer.
func (o *LogrObserver) WithFields(fields map[string]string) Observer {
	return &LogrObserver{log: o.log, fields: merge(o.fields, fields)}
}

// keysAndValues flattens context fields and extra, with extra winning.
func (o *LogrObserver) keysAndValues(extra map[string]string) []any {
	all := merge(o.fields, extra)
	kv := make([]any, 0, 2*len(all))
	for _, k := range slices.Sorted(maps.Keys(all)) {
		kv = append(kv, k, all[k])
	}
	return kv
}

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogResourceCreating logs a resource creation start event.
func LogResourceCreating(observer Observer, phase, kind, name string) {
	logResource(observer, EventResourceCreating, phase, kind, name, "creating "+kind)
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, phase, kind, name string) {
	logResource(observer, EventResourceCreated, phase, kind, name, kind+" created")
}

// LogResourceExists logs when a resource already exists and is reused.
func LogResourceExists(observer Observer, phase, kind, name string) {
	logResource(observer, EventResourceExists, phase, kind, name, kind+" already exists")
}

// LogResourceUpdated logs an in-place modification of a resource.
func LogResourceUpdated(observer Observer, phase, kind, name, what string) {
	logResource(observer, EventResourceUpdated, phase, kind, name, kind+" updated: "+what)
}

// LogResourceDeleting logs a resource deletion start event.
func LogResourceDeleting(observer Observer, phase, kind, name string) {
	logResource(observer, EventResourceDeleting, phase, kind, name, "deleting "+kind)
}

// LogResourceDeleted logs a successful resource deletion event.
func LogResourceDeleted(observer Observer, phase, kind, name string) {
	logResource(observer, EventResourceDeleted, phase, kind, name, kind+" deleted")
}

// LogResourceSkipped logs an operation swallowed because the resource was
// already in the requested state.
func LogResourceSkipped(observer Observer, phase, kind, name string, reason error) {
	logResource(observer, EventResourceSkipped, phase, kind, name, fmt.Sprintf("skipped: %v", reason))
}

func logResource(observer Observer, typ EventType, phase, kind, name, msg string) {
	observer.Event(Event{
		Type:     typ,
		Phase:    phase,
		Resource: name,
		Message:  msg,
		Fields:   map[string]string{"kind": kind},
	})
}
