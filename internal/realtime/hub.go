// Package realtime fans inventory updates out to connected websocket
// clients. Delivery is at-most-once to connections that are open at the
// moment of publish; nothing is queued for later or retried.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/joao-fontenele/monocart/internal/domain"
)

// Subscriber receives serialized events. Send must not block; it reports
// false when the message was not accepted.
type Subscriber interface {
	Open() bool
	Send(msg []byte) bool
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[Subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

// Publish delivers events to every currently open subscriber and returns the
// number of successful deliveries. A subscriber that panics or refuses a
// message does not affect the others.
func (h *Hub) Publish(events ...domain.InventoryUpdateEvent) int {
	if len(events) == 0 {
		return 0
	}

	payloads := make([][]byte, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode inventory event", "error", err, "product_id", ev.ProductID)
			continue
		}
		payloads = append(payloads, data)
	}

	delivered := 0
	for _, s := range h.snapshot() {
		for _, p := range payloads {
			if h.deliver(s, p) {
				delivered++
			}
		}
	}
	return delivered
}

func (h *Hub) deliver(s Subscriber, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("subscriber send panicked", "panic", r)
			ok = false
		}
	}()

	if !s.Open() {
		return false
	}
	if !s.Send(payload) {
		h.logger.Debug("dropped inventory event for slow subscriber")
		return false
	}
	return true
}
