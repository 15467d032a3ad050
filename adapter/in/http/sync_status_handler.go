package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailsync/adapter/out/realtime"
	"mailsync/core/service/processor"
	"mailsync/pkg/httputil"
	"mailsync/pkg/ratelimit"
	"mailsync/pkg/resilience"
)

// =============================================================================
// Status Handler - limiter, breaker and pool visibility
// =============================================================================

type StatusHandler struct {
	buckets  *ratelimit.Registry
	breakers *resilience.Registry
	proc     *processor.Processor
	sse      *realtime.SSEAdapter
	log      zerolog.Logger
}

func NewStatusHandler(buckets *ratelimit.Registry, breakers *resilience.Registry, proc *processor.Processor, sse *realtime.SSEAdapter, log zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		buckets:  buckets,
		breakers: breakers,
		proc:     proc,
		sse:      sse,
		log:      log.With().Str("handler", "status").Logger(),
	}
}

// Register mounts the status routes.
func (h *StatusHandler) Register(app fiber.Router) {
	app.Get("/status", h.Overview)
	app.Get("/status/limits", h.Limits)
	app.Get("/status/breakers", h.Breakers)
	app.Post("/breakers/:provider/probe", h.ForceProbe)
}

// Overview reports engine-wide state in one response.
func (h *StatusHandler) Overview(c *fiber.Ctx) error {
	sent, dropped := h.sse.Stats()
	return SuccessResponse(c, fiber.Map{
		"online":          h.proc.IsOnline(),
		"limits":          h.buckets.Snapshot(),
		"breakers":        h.breakers.Snapshot(),
		"http_pools":      httputil.GetAllPoolStats(),
		"sse_connections": h.sse.ConnectedCount(),
		"sse_sent":        sent,
		"sse_dropped":     dropped,
	})
}

func (h *StatusHandler) Limits(c *fiber.Ctx) error {
	return SuccessResponse(c, fiber.Map{"limits": h.buckets.Snapshot()})
}

func (h *StatusHandler) Breakers(c *fiber.Ctx) error {
	return SuccessResponse(c, fiber.Map{"breakers": h.breakers.Snapshot()})
}

// ForceProbe pushes an open breaker into half-open so the next replay sends
// a probe immediately instead of waiting out the cooldown.
func (h *StatusHandler) ForceProbe(c *fiber.Ctx) error {
	provider := c.Params("provider")
	h.breakers.ForceProbe(provider)
	h.proc.Trigger()
	h.log.Info().Str("provider", provider).Msg("breaker probe forced")
	return SuccessResponse(c, fiber.Map{"provider": provider, "state": "half-open"})
}
