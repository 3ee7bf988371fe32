package bus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose queue is full misses the event and the drop is counted.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int

	published atomic.Int64
	dropped   atomic.Int64
}

type subscription struct {
	ch     chan Event
	topics map[string]bool // empty means all topics
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe returns a channel receiving events on the given topics (all
// topics when none are given) and a cancel func that closes it.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.buffer), topics: make(map[string]bool, len(topics))}
	for _, t := range topics {
		sub.topics[t] = true
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to every matching subscriber.
func (h *Hub) Publish(e Event) {
	h.published.Add(1)
	topic := e.Topic()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if len(sub.topics) > 0 && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
			log.Debug().Str("topic", topic).Str("event_id", e.Base().EventID).Msg("bus: subscriber full, event dropped")
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns published and dropped event counts.
func (h *Hub) Stats() (published, dropped int64) {
	return h.published.Load(), h.dropped.Load()
}
