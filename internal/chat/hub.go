package chat

import (
	"sync"
)

// Subscriber receives live channel events.
type Subscriber interface {
	OnOpen()
	OnMessage(raw []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Hub fans session events out to registered subscribers in registration order.
type Hub struct {
	subscribers []Subscriber
	mu          sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register adds a subscriber to the hub.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, sub)
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subscribers {
		if s == sub {
			h.subscribers = append(h.subscribers[:i:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Open notifies every subscriber that the connection opened.
func (h *Hub) Open() {
	for _, s := range h.snapshot() {
		s.OnOpen()
	}
}

// Message delivers a raw inbound frame to every subscriber.
func (h *Hub) Message(raw []byte) {
	for _, s := range h.snapshot() {
		s.OnMessage(raw)
	}
}

// Error notifies every subscriber of a connection-level error.
func (h *Hub) Error(err error) {
	for _, s := range h.snapshot() {
		s.OnError(err)
	}
}

// Close notifies every subscriber that the connection closed.
func (h *Hub) Close(code int, reason string) {
	for _, s := range h.snapshot() {
		s.OnClose(code, reason)
	}
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, len(h.subscribers))
	copy(out, h.subscribers)
	return out
}
