// Package eventsink carries strategy records out of the loops: an
// in-process fan-out bus, a batching recorder that persists to a
// RecordStore, and bridges to Redis and the dashboard.
package eventsink

import (
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and its drop counter increments.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	name    string
	ch      chan domain.Event
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a consumer with a buffer of size buf. The returned
// cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(name string, buf int) (<-chan domain.Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	s := &subscriber{name: name, ch: make(chan domain.Event, buf)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber with buffer space.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped returns per-subscriber drop counts.
func (b *Bus) Dropped() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.subs))
	for _, s := range b.subs {
		out[s.name] += s.dropped.Load()
	}
	return out
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
