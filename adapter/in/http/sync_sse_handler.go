package http

import (
	"bufio"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailsync/adapter/out/realtime"
)

// =============================================================================
// SSE Handler - queue event stream
// =============================================================================

const heartbeatInterval = 30 * time.Second

// SSEHandler streams queue events to mail clients.
type SSEHandler struct {
	hub *realtime.SSEAdapter
	log zerolog.Logger
}

func NewSSEHandler(hub *realtime.SSEAdapter, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub: hub,
		log: log.With().Str("handler", "sse").Logger(),
	}
}

// Register mounts the event stream routes.
func (h *SSEHandler) Register(app fiber.Router) {
	app.Get("/events", h.Stream)
}

// Stream opens a Server-Sent Events connection scoped to the account.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	events := h.hub.Subscribe(accountID)

	h.log.Info().
		Str("account_id", accountID).
		Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer func() {
			h.hub.Unsubscribe(accountID, events)
			h.log.Info().
				Str("account_id", accountID).
				Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		w.Flush()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}
				w.WriteString("event: ")
				w.WriteString(string(event.Kind))
				w.WriteString("\ndata: ")
				w.Write(data)
				w.WriteString("\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
