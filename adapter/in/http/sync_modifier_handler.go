package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/core/service/processor"
	"mailsync/core/service/queue"
	"mailsync/pkg/apperr"
)

// =============================================================================
// Modifier Handler - record mutations, inspect the queue
// =============================================================================

type ModifierHandler struct {
	intake    *queue.Intake
	queue     *queue.Service
	proc      *processor.Processor
	completed out.CompletedCache
	log       zerolog.Logger
}

func NewModifierHandler(intake *queue.Intake, q *queue.Service, proc *processor.Processor, completed out.CompletedCache, log zerolog.Logger) *ModifierHandler {
	return &ModifierHandler{
		intake:    intake,
		queue:     q,
		proc:      proc,
		completed: completed,
		log:       log.With().Str("handler", "modifier").Logger(),
	}
}

// Register mounts the modifier routes.
func (h *ModifierHandler) Register(app fiber.Router) {
	app.Post("/modifiers", h.Enqueue)
	app.Get("/modifiers/pending", h.Pending)
	app.Get("/modifiers/recent", h.Recent)
	app.Delete("/modifiers/:id", h.Remove)

	app.Get("/emails/:id", h.FoldedEmail)
	app.Get("/drafts/:id", h.FoldedDraft)

	app.Post("/queue/online", h.SetOnline)
	app.Post("/queue/trigger", h.Trigger)
}

// =============================================================================
// Enqueue
// =============================================================================

type enqueueRequest struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	Provider string `json:"provider"`

	// move
	TargetFolder string `json:"target_folder,omitempty"`
	TargetID     string `json:"target_id,omitempty"`

	// unarchive / undelete
	RestoreFolder string   `json:"restore_folder,omitempty"`
	RestoreLabels []string `json:"restore_labels,omitempty"`

	// draft_update
	Draft *domain.DraftUpdatePayload `json:"draft,omitempty"`
}

// Enqueue records one local mutation: the cache is patched optimistically
// and the durable record is queued for replay.
func (h *ModifierHandler) Enqueue(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.EntityID == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "entity_id is required")
	}
	prov := domain.Provider(req.Provider)
	if prov != domain.ProviderGmail && prov != domain.ProviderOutlook {
		return ErrorResponse(c, fiber.StatusBadRequest, "provider must be gmail or outlook")
	}

	ctx := c.Context()
	ref := queue.EmailRef{AccountID: accountID, Provider: prov, EmailID: req.EntityID}

	var rec *domain.ModifierRecord
	switch domain.ModifierType(req.Type) {
	case domain.ModifierArchive:
		rec, err = h.intake.Archive(ctx, ref)
	case domain.ModifierUnarchive:
		rec, err = h.intake.Unarchive(ctx, ref, req.RestoreFolder, req.RestoreLabels)
	case domain.ModifierDelete:
		rec, err = h.intake.Delete(ctx, ref)
	case domain.ModifierUndelete:
		rec, err = h.intake.Undelete(ctx, ref, req.RestoreFolder)
	case domain.ModifierMarkRead:
		rec, err = h.intake.MarkRead(ctx, ref)
	case domain.ModifierMarkUnread:
		rec, err = h.intake.MarkUnread(ctx, ref)
	case domain.ModifierMove:
		rec, err = h.intake.Move(ctx, ref, domain.MovePayload{
			TargetFolder: req.TargetFolder,
			TargetID:     req.TargetID,
		})
	case domain.ModifierStar:
		rec, err = h.intake.Star(ctx, ref)
	case domain.ModifierUnstar:
		rec, err = h.intake.Unstar(ctx, ref)
	case domain.ModifierDraftUpdate:
		if req.Draft == nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "draft content is required")
		}
		rec, err = h.intake.UpdateDraft(ctx, ref, *req.Draft)
	case domain.ModifierDraftDelete:
		rec, err = h.intake.DeleteDraft(ctx, ref)
	default:
		return ErrorResponse(c, fiber.StatusBadRequest, "unknown modifier type")
	}
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(APIResponse{
		Success: true,
		Data:    rec,
	})
}

// =============================================================================
// Queue inspection
// =============================================================================

func (h *ModifierHandler) Pending(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	records, err := h.queue.PendingForAccount(c.Context(), accountID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"pending": records, "count": len(records)})
}

// Recent lists recently completed modifiers from the short-lived feedback
// cache, so clients can show sync confirmations.
func (h *ModifierHandler) Recent(c *fiber.Ctx) error {
	accountID, err := AccountID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if h.completed == nil {
		return SuccessResponse(c, fiber.Map{"completed": []any{}})
	}
	records, err := h.completed.Recent(c.Context(), accountID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"completed": records, "count": len(records)})
}

func (h *ModifierHandler) Remove(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	id := c.Params("id")
	if err := h.queue.Remove(c.Context(), id); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"removed": id})
}

// =============================================================================
// Folded entity state
// =============================================================================

// FoldedEmail returns the cached email with pending modifiers applied, the
// state the client should render.
func (h *ModifierHandler) FoldedEmail(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	email, err := h.intake.FoldedEmail(c.Context(), c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, email)
}

func (h *ModifierHandler) FoldedDraft(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	draft, err := h.intake.FoldedDraft(c.Context(), c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, draft)
}

// =============================================================================
// Processor control
// =============================================================================

type onlineRequest struct {
	Online *bool `json:"online"`
}

// SetOnline flips connectivity. Going online triggers a queue drain.
func (h *ModifierHandler) SetOnline(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	var req onlineRequest
	if err := c.BodyParser(&req); err != nil || req.Online == nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "online flag is required")
	}
	h.proc.SetOnline(*req.Online)
	return SuccessResponse(c, fiber.Map{"online": *req.Online})
}

func (h *ModifierHandler) Trigger(c *fiber.Ctx) error {
	if _, err := AccountID(c); err != nil {
		return AppErrorResponse(c, err)
	}
	if !h.proc.IsOnline() {
		return AppErrorResponse(c, apperr.Conflict("processor is offline"))
	}
	h.proc.Trigger()
	return SuccessResponse(c, fiber.Map{"triggered": true})
}
