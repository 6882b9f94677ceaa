// Package hub is the in-process publish hub: same-process listeners (the
// dashboard SSE stream) react to decoded events without a second network
// round trip.
package hub

import (
	"sync"

	"github.com/carelink/notify-gateway/internal/model"
	"go.uber.org/zap"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[chan model.Envelope]struct{}
	log  *zap.Logger
}

func New(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[chan model.Envelope]struct{}),
		log:  log,
	}
}

// Subscribe returns a receive channel and a cancel func. The channel is
// closed on cancel.
func (h *Hub) Subscribe(buffer int) (<-chan model.Envelope, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.Envelope, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans env out to all subscribers. Sends never block: a listener
// with a full buffer misses the event (SSE clients catch up via
// /dashboard/history).
func (h *Hub) Publish(env model.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- env:
		default:
			h.log.Debug("hub subscriber buffer full, dropping event",
				zap.String("event_id", env.ID))
		}
	}
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
