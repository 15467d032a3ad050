package sync

import (
	"context"

	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/core/service/queue"
	"mailsync/pkg/apperr"
)

// =============================================================================
// Resolver - apply a user's conflict decision
// =============================================================================

// Resolver applies conflict resolutions and unblocks the entity queue.
type Resolver struct {
	queue     *queue.Service
	emails    out.EmailRepository
	conflicts out.ConflictRepository
	log       zerolog.Logger

	// onResolved lets the bootstrap kick the processor once the entity is
	// unblocked.
	onResolved func(entityID string)
}

// NewResolver creates a resolver.
func NewResolver(q *queue.Service, emails out.EmailRepository, conflicts out.ConflictRepository, log zerolog.Logger) *Resolver {
	return &Resolver{
		queue:     q,
		emails:    emails,
		conflicts: conflicts,
		log:       log.With().Str("component", "conflict_resolver").Logger(),
	}
}

// OnResolved registers a callback fired after each successful resolution.
func (r *Resolver) OnResolved(fn func(entityID string)) {
	r.onResolved = fn
}

// Resolve settles a conflict.
//
//   - local: the local view wins; pending modifiers stay queued and replay
//     to push the local changes out.
//   - server: the server copy becomes the cache verbatim and the entity's
//     pending modifiers are discarded.
//   - merged: the supplied document becomes the cache verbatim and pending
//     modifiers are discarded, since the merge already embodies them.
func (r *Resolver) Resolve(ctx context.Context, conflictID string, resolution domain.Resolution, merged *domain.EmailDocument) error {
	conflict, err := r.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return err
	}

	switch resolution {
	case domain.ResolutionLocal:
		// The cache base stays; queued modifiers carry the local intent.

	case domain.ResolutionServer:
		server := conflict.ServerVersion.Clone()
		if err := r.emails.Upsert(ctx, &server); err != nil {
			return err
		}
		if err := r.discardPending(ctx, conflict.EmailID); err != nil {
			return err
		}

	case domain.ResolutionMerged:
		if merged == nil {
			return apperr.BadPayload("merged resolution requires a merged document")
		}
		if merged.ID != conflict.EmailID {
			return apperr.BadPayload("merged document id does not match conflict")
		}
		doc := merged.Clone()
		if err := r.emails.Upsert(ctx, &doc); err != nil {
			return err
		}
		if err := r.discardPending(ctx, conflict.EmailID); err != nil {
			return err
		}

	default:
		return apperr.BadPayload("unknown resolution")
	}

	if err := r.conflicts.Delete(ctx, conflictID); err != nil {
		return err
	}
	r.queue.ResumeEntity(conflict.EmailID)
	r.queue.NotifyConflict(domain.QueueEventConflictResolved, conflict)

	r.log.Info().
		Str("conflict_id", conflictID).
		Str("email_id", conflict.EmailID).
		Str("resolution", string(resolution)).
		Msg("conflict resolved")

	if r.onResolved != nil {
		r.onResolved(conflict.EmailID)
	}
	return nil
}

func (r *Resolver) discardPending(ctx context.Context, entityID string) error {
	recs, err := r.queue.PendingRecordsForEntity(ctx, entityID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := r.queue.Remove(ctx, rec.ID); err != nil {
			return err
		}
	}
	return nil
}
