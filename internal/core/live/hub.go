package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cardmarket/internal/logger"
)

// EventListingUpdated is emitted after an enrichment job writes its result.
const EventListingUpdated = "post.updated"

// Message is one encoded event as delivered to subscribers.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscription is a listener's inbox. C is closed on Unsubscribe or when the
// hub shuts down.
type Subscription struct {
	C  <-chan Message
	ch chan Message
}

// Hub fans events out to the subscribers of this process. Delivery is best
// effort: a subscriber whose buffer is full misses the event.
type Hub struct {
	log    *logger.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{log: logger.New("LiveHub"), buffer: buffer, subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Message, h.buffer)
	s := &Subscription{C: ch, ch: ch}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}

// Publish encodes payload and delivers it locally.
func (h *Hub) Publish(_ context.Context, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	h.Deliver(Message{Event: event, Data: b})
	return nil
}

// Deliver hands m to every current subscriber without blocking.
func (h *Hub) Deliver(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for s := range h.subs {
		select {
		case s.ch <- m:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.log.LogDebugf("%s dropped for %d slow subscribers", m.Event, dropped)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}
