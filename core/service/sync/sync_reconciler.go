package sync

import (
	"context"

	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/modifier"
	"mailsync/core/port/out"
	"mailsync/core/service/queue"
)

// =============================================================================
// Reconciler - sync pull + conflict check
// =============================================================================

// Reconciler pulls the provider's copy of entities that have queued local
// work and runs conflict detection before replay touches them.
type Reconciler struct {
	queue     *queue.Service
	emails    out.EmailRepository
	conflicts out.ConflictRepository
	factory   out.MailboxFactory
	log       zerolog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(q *queue.Service, emails out.EmailRepository, conflicts out.ConflictRepository, factory out.MailboxFactory, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		queue:     q,
		emails:    emails,
		conflicts: conflicts,
		factory:   factory,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcileEmail pulls the server copy of one email and checks it against
// the local view. On conflict the entity's queue is paused and the conflict
// stored; otherwise the server copy becomes the new cached base.
func (r *Reconciler) ReconcileEmail(ctx context.Context, provider domain.Provider, accountID, emailID string) (*domain.PendingConflict, error) {
	mailbox, err := r.factory.Mailbox(ctx, provider, accountID)
	if err != nil {
		return nil, err
	}

	server, err := mailbox.GetMessage(ctx, emailID)
	if err != nil {
		return nil, err
	}

	base, err := r.emails.Get(ctx, emailID)
	if err != nil {
		// First sighting: the server copy is the base.
		if uerr := r.emails.Upsert(ctx, server); uerr != nil {
			return nil, uerr
		}
		return nil, nil
	}

	mods, err := r.queue.PendingForEntity(ctx, emailID)
	if err != nil {
		return nil, err
	}

	if len(mods) == 0 {
		// Nothing queued locally; adopt the server copy.
		return nil, r.emails.Upsert(ctx, server)
	}

	local := modifier.FoldEmail(*base, mods)
	conflict := Detect(*base, local, *server)
	if conflict == nil {
		// Server-only changes merge in; pending modifiers re-fold over
		// the new base and replay as usual.
		return nil, r.emails.Upsert(ctx, server)
	}

	if existing, err := r.conflicts.GetByEmail(ctx, emailID); err == nil && existing != nil {
		// Already flagged on an earlier pull; keep the original record.
		return existing, nil
	}

	if err := r.conflicts.Create(ctx, conflict); err != nil {
		return nil, err
	}
	r.queue.PauseEntity(emailID)
	r.queue.NotifyConflict(domain.QueueEventConflictDetected, conflict)

	r.log.Warn().
		Str("email_id", emailID).
		Strs("fields", conflict.ConflictingFields).
		Msg("conflict detected, entity queue paused")
	return conflict, nil
}

// ReconcileAccount runs conflict checks for every entity of the account
// that has pending modifiers. Returns the conflicts found on this pass.
func (r *Reconciler) ReconcileAccount(ctx context.Context, provider domain.Provider, accountID string) ([]*domain.PendingConflict, error) {
	recs, err := r.queue.PendingForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var found []*domain.PendingConflict
	for _, rec := range recs {
		if rec.EntityType != domain.EntityEmail {
			continue
		}
		if _, ok := seen[rec.EntityID]; ok {
			continue
		}
		seen[rec.EntityID] = struct{}{}

		conflict, err := r.ReconcileEmail(ctx, provider, accountID, rec.EntityID)
		if err != nil {
			r.log.Warn().Err(err).Str("email_id", rec.EntityID).Msg("reconcile skipped")
			continue
		}
		if conflict != nil {
			found = append(found, conflict)
		}
	}
	return found, nil
}
