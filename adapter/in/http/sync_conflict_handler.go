package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	syncsvc "mailsync/core/service/sync"
)

// =============================================================================
// Conflict Handler - inspect and resolve sync conflicts
// =============================================================================

type ConflictHandler struct {
	conflicts  out.ConflictRepository
	reconciler *syncsvc.Reconciler
	resolver   *syncsvc.Resolver
	log        zerolog.Logger
}

func NewConflictHandler(conflicts out.ConflictRepository, reconciler *syncsvc.Reconciler, resolver *syncsvc.Resolver, log zerolog.Logger) *ConflictHandler {
	return &ConflictHandler{
		conflicts:  conflicts,
		reconciler: reconciler,
		resolver:   resolver,
		log:        log.With().Str("handler", "conflict").Logger(),
	}
}

// Register mounts the conflict routes.
func (h *ConflictHandler) Register(app fiber.Router) {
	app.Get("/conflicts", h.List)
	app.Get("/conflicts/:id", h.Get)
	app.Post("/conflicts/:id/resolve", h.Resolve)
	app.Post("/sync/reconcile", h.Reconcile)
}

func (h *ConflictHandler) List(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	conflicts, err := h.conflicts.GetByAccount(c.Context(), accountID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"conflicts": conflicts, "count": len(conflicts)})
}

func (h *ConflictHandler) Get(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	conflict, err := h.conflicts.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, conflict)
}

type resolveRequest struct {
	Resolution string                `json:"resolution"`
	Merged     *domain.EmailDocument `json:"merged,omitempty"`
}

// Resolve applies the user's decision to a detected conflict and unblocks
// the entity's queue.
func (h *ConflictHandler) Resolve(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	resolution := domain.Resolution(req.Resolution)
	switch resolution {
	case domain.ResolutionLocal, domain.ResolutionServer, domain.ResolutionMerged:
	default:
		return ErrorResponse(c, fiber.StatusBadRequest, "resolution must be local, server or merged")
	}

	if err := h.resolver.Resolve(c.Context(), c.Params("id"), resolution, req.Merged); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"resolved": c.Params("id"), "resolution": resolution})
}

// Reconcile pulls the server view for every entity with pending work and
// records any divergence as conflicts.
func (h *ConflictHandler) Reconcile(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	prov := domain.Provider(c.Query("provider"))
	if prov != domain.ProviderGmail && prov != domain.ProviderOutlook {
		return ErrorResponse(c, fiber.StatusBadRequest, "provider must be gmail or outlook")
	}
	conflicts, err := h.reconciler.ReconcileAccount(c.Context(), prov, accountID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"conflicts": conflicts, "detected": len(conflicts)})
}
