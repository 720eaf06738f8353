package broadcast

import (
	"sync"
)

const subscriberBuffer = 64

// Hub is the in-process Broadcaster: per-session subscriber channels with
// non-blocking sends. A subscriber that falls behind its buffer misses
// events rather than stalling the schedulers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Event
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

// Publish fans ev out to every subscriber of the session.
func (h *Hub) Publish(sessionCode string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[sessionCode] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener for one session. The returned cancel
// function closes the channel and removes the subscription.
func (h *Hub) Subscribe(sessionCode string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[sessionCode] == nil {
		h.subs[sessionCode] = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[sessionCode][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[sessionCode][id]; ok {
			delete(h.subs[sessionCode], id)
			if len(h.subs[sessionCode]) == 0 {
				delete(h.subs, sessionCode)
			}
			close(sub)
		}
	}
	return ch, cancel
}
