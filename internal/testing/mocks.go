package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// MockRunner is a mock workload runner.
type MockRunner struct {
	mock.Mock
}

// Run records the call and returns the configured error.
func (m *MockRunner) Run(ctx context.Context, dir, playbook string) error {
	args := m.Called(ctx, dir, playbook)
	return args.Error(0)
}

// MockArchiver is a mock artifact archiver.
type MockArchiver struct {
	mock.Mock
}

// Archive records the call and returns the configured results.
func (m *MockArchiver) Archive(ctx context.Context, dir, prefix string) (int, error) {
	args := m.Called(ctx, dir, prefix)
	return args.Int(0), args.Error(1)
}

// RecordingObserver is a provisioning.Observer that keeps every event and
// message. Safe for concurrent use.
type RecordingObserver struct {
	mu       sync.Mutex
	events   []provisioning.Event
	messages []string
}

var _ provisioning.Observer = (*RecordingObserver)(nil)

// NewRecordingObserver creates an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

// Printf implements provisioning.Observer.
func (o *RecordingObserver) Printf(format string, v ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, fmt.Sprintf(format, v...))
}

// Event implements provisioning.Observer.
func (o *RecordingObserver) Event(event provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

// Progress implements provisioning.Observer.
func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{Type: provisioning.EventProgress, Phase: phase, Message: fmt.Sprintf("%d/%d", current, total)})
}

// WithFields implements provisioning.Observer. Fields are not recorded.
func (o *RecordingObserver) WithFields(map[string]string) provisioning.Observer {
	return o
}

// Events returns the recorded events of the given types, or all events
// when none are given.
func (o *RecordingObserver) Events(types ...provisioning.EventType) []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []provisioning.Event
	for _, e := range o.events {
		if len(types) == 0 {
			out = append(out, e)
			continue
		}
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Messages returns the recorded Printf messages.
func (o *RecordingObserver) Messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.messages...)
}
