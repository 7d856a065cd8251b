package scan

import (
	"sync"
	"time"
)

// EventKind discriminates events on the session bus.
type EventKind string

const (
	EventStateChanged       EventKind = "state_changed"
	EventSettingsUpdated    EventKind = "settings_updated"
	EventMetricsPublished   EventKind = "metrics_published"
	EventGuidance           EventKind = "guidance"
	EventCheckpointSaved    EventKind = "checkpoint_saved"
	EventCheckpointWarning  EventKind = "checkpoint_warning"
	EventOptimizationAction EventKind = "optimization_action"
)

// Event is one typed notification published by pipeline components and
// consumed by the session owner. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	State    string
	Settings *QualitySettings
	Analysis *QualityAnalysis
	Guidance string
	Action   string
	Err      error
}

// Bus is a bounded publish/subscribe channel for pipeline events. When
// the subscriber stalls, the oldest buffered event is dropped to make
// room; the pipeline never blocks on a slow consumer.
type Bus struct {
	mu      sync.Mutex
	ch      chan Event
	dropped int64
	closed  bool
}

// NewBus creates a bus buffering up to capacity events (minimum 1).
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Publish enqueues an event, evicting the oldest buffered event if the
// buffer is full. Safe for concurrent use; a no-op after Close.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- e:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped++
		default:
		}
	}
}

// Events returns the receive side of the bus.
func (b *Bus) Events() <-chan Event { return b.ch }

// Dropped returns how many events were evicted due to a stalled subscriber.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes the bus. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
