// Package eventbus is an in-memory, fire-and-forget publish/subscribe bus.
//
// Each subscriber owns a buffered channel. Publish never blocks: when a
// subscriber's buffer is full the event is dropped and counted.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus is the publishing and subscribing surface used by services.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

const defaultBufferSize = 100

// Bus is the in-memory EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	closed      bool
	dropped     atomic.Uint64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving every later event on topic. The
// channel is closed by Close. Subscribing to a closed bus returns a closed channel.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// Publish delivers payload to all current subscribers of topic.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped is the number of events discarded because a buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}
