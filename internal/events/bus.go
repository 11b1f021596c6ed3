// Package events provides a small in-process pub/sub bus for agent
// activity. The API server's websocket stream and the optional MQTT
// mirror both feed from it.
package events

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	// KindTurnStarted fires when a chat turn begins.
	KindTurnStarted Kind = "turn.started"
	// KindToolCalled fires after each tool invocation completes.
	KindToolCalled Kind = "tool.called"
	// KindTurnCompleted fires when a chat turn produces its answer.
	KindTurnCompleted Kind = "turn.completed"
	// KindTurnFailed fires when a chat turn errors out.
	KindTurnFailed Kind = "turn.failed"
)

// Event is one bus message.
type Event struct {
	Kind     Kind           `json:"kind"`
	ThreadID string         `json:"thread_id,omitempty"`
	At       time.Time      `json:"at"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Bus fans events out to subscribers. A nil *Bus is valid and drops
// everything, so callers never need to guard Publish.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// New creates a bus.
func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers. Slow subscribers with full
// buffers miss the event rather than blocking the publisher.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size.
// Call the returned cancel function to unsubscribe and close the
// channel.
func (b *Bus) Subscribe(bufSize int) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 16
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
