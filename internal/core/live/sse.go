package live

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"cardmarket/internal/logger"
)

// Handler streams hub events as server-sent events.
type Handler struct {
	log       *logger.Logger
	hub       *Hub
	keepAlive time.Duration
}

func NewHandler(hub *Hub, keepAlive time.Duration) *Handler {
	return &Handler{log: logger.New("LiveSSE"), hub: hub, keepAlive: keepAlive}
}

func (h *Handler) HandleEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		h.stream(w, sub)
	})
	return nil
}

// stream writes events for sub until the hub closes it or a flush fails.
// fasthttp gives no close notification, so an idle client that went away is
// only noticed at the next keep-alive; until then its subscription stays
// registered and its buffer may fill and drop events.
func (h *Handler) stream(w *bufio.Writer, sub *Subscription) {
	defer h.hub.Unsubscribe(sub)
	h.log.LogDebugf("subscriber connected (%d total)", h.hub.Count())

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil || w.Flush() != nil {
		return
	}

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case m, ok := <-sub.C:
			if !ok {
				return
			}
			if err := WriteEvent(w, m); err != nil {
				return
			}
		case <-tick:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := w.Flush(); err != nil {
			h.log.LogDebug("subscriber disconnected")
			return
		}
	}
}

// WriteEvent renders m as one SSE frame.
func WriteEvent(w io.Writer, m Message) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Event, m.Data)
	return err
}
