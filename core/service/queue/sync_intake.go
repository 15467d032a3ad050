package queue

import (
	"context"

	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/modifier"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// Intake - record a local mutation
// =============================================================================
//
// Intake is the write path the UI talks to. Each call captures whatever
// prior state the inverse operation needs, patches the local cache
// optimistically, enqueues the durable record and nudges the processor.
// The cache patch and the enqueue are not atomic; the queue record is the
// source of truth and a replayed record is idempotent against the cache.

// EmailRef identifies one cached email under one account.
type EmailRef struct {
	AccountID string
	Provider  domain.Provider
	EmailID   string
}

type Intake struct {
	queue  *Service
	emails out.EmailRepository
	drafts out.DraftRepository
	log    zerolog.Logger

	// onEnqueued nudges the processor after a successful enqueue.
	onEnqueued func()
}

func NewIntake(queue *Service, emails out.EmailRepository, drafts out.DraftRepository, log zerolog.Logger) *Intake {
	return &Intake{
		queue:  queue,
		emails: emails,
		drafts: drafts,
		log:    log.With().Str("component", "intake").Logger(),
	}
}

// OnEnqueued registers the processor trigger.
func (i *Intake) OnEnqueued(fn func()) {
	i.onEnqueued = fn
}

// =============================================================================
// Email mutations
// =============================================================================

func (i *Intake) Archive(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	email := i.cachedEmail(ctx, ref.EmailID)
	var prevFolder string
	var prevLabels []string
	if email != nil {
		prevFolder = email.Folder
		prevLabels = append([]string(nil), email.Labels...)
	}
	m := modifier.NewArchive(ref.EmailID, ref.AccountID, ref.Provider, prevFolder, prevLabels)
	return i.submitEmail(ctx, m, email)
}

func (i *Intake) Unarchive(ctx context.Context, ref EmailRef, restoreFolder string, restoreLabels []string) (*domain.ModifierRecord, error) {
	m := modifier.NewUnarchive(ref.EmailID, ref.AccountID, ref.Provider, restoreFolder, restoreLabels)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

func (i *Intake) Delete(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	email := i.cachedEmail(ctx, ref.EmailID)
	var prevFolder string
	if email != nil {
		prevFolder = email.Folder
	}
	m := modifier.NewDelete(ref.EmailID, ref.AccountID, ref.Provider, prevFolder)
	return i.submitEmail(ctx, m, email)
}

func (i *Intake) Undelete(ctx context.Context, ref EmailRef, restoreFolder string) (*domain.ModifierRecord, error) {
	m := modifier.NewUndelete(ref.EmailID, ref.AccountID, ref.Provider, restoreFolder)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

func (i *Intake) MarkRead(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	m := modifier.NewMarkRead(ref.EmailID, ref.AccountID, ref.Provider)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

func (i *Intake) MarkUnread(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	m := modifier.NewMarkUnread(ref.EmailID, ref.AccountID, ref.Provider)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

func (i *Intake) Move(ctx context.Context, ref EmailRef, target domain.MovePayload) (*domain.ModifierRecord, error) {
	if target.TargetFolder == "" && target.TargetID == "" {
		return nil, apperr.BadPayload("move requires a target folder")
	}
	email := i.cachedEmail(ctx, ref.EmailID)
	if email != nil && target.SourceFolder == "" {
		target.SourceFolder = email.Folder
	}
	m := modifier.NewMove(ref.EmailID, ref.AccountID, ref.Provider, target)
	return i.submitEmail(ctx, m, email)
}

func (i *Intake) Star(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	m := modifier.NewStar(ref.EmailID, ref.AccountID, ref.Provider)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

func (i *Intake) Unstar(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	m := modifier.NewUnstar(ref.EmailID, ref.AccountID, ref.Provider)
	return i.submitEmail(ctx, m, i.cachedEmail(ctx, ref.EmailID))
}

// =============================================================================
// Draft mutations
// =============================================================================

func (i *Intake) UpdateDraft(ctx context.Context, ref EmailRef, content domain.DraftUpdatePayload) (*domain.ModifierRecord, error) {
	m := modifier.NewDraftUpdate(ref.EmailID, ref.AccountID, ref.Provider, content)
	return i.submitDraft(ctx, m)
}

func (i *Intake) DeleteDraft(ctx context.Context, ref EmailRef) (*domain.ModifierRecord, error) {
	m := modifier.NewDraftDelete(ref.EmailID, ref.AccountID, ref.Provider)
	return i.submitDraft(ctx, m)
}

// =============================================================================
// Folded reads
// =============================================================================

// FoldedEmail returns the cached email with all pending modifiers applied,
// the state the UI should display.
func (i *Intake) FoldedEmail(ctx context.Context, emailID string) (*domain.EmailDocument, error) {
	email, err := i.emails.Get(ctx, emailID)
	if err != nil {
		return nil, err
	}
	mods, err := i.queue.PendingForEntity(ctx, emailID)
	if err != nil {
		return nil, err
	}
	folded := modifier.FoldEmail(*email, mods)
	return &folded, nil
}

// FoldedDraft returns the cached draft with pending edits applied.
func (i *Intake) FoldedDraft(ctx context.Context, draftID string) (*domain.DraftDocument, error) {
	draft, err := i.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	mods, err := i.queue.PendingForEntity(ctx, draftID)
	if err != nil {
		return nil, err
	}
	folded := modifier.FoldDraft(*draft, mods)
	return &folded, nil
}

// =============================================================================
// Internals
// =============================================================================

func (i *Intake) submitEmail(ctx context.Context, m modifier.EmailModifier, cached *domain.EmailDocument) (*domain.ModifierRecord, error) {
	rec, err := i.queue.Enqueue(ctx, m)
	if err != nil {
		return nil, err
	}

	// Optimistic cache patch. A miss is fine; the processor patches the
	// cache again once the provider confirms.
	if cached != nil {
		updated := m.Modify(*cached)
		if err := i.emails.Upsert(ctx, &updated); err != nil {
			i.log.Warn().Err(err).
				Str("email_id", m.EntityID()).
				Msg("optimistic cache patch failed")
		}
	}

	i.nudge()
	return rec, nil
}

func (i *Intake) submitDraft(ctx context.Context, m modifier.DraftModifier) (*domain.ModifierRecord, error) {
	rec, err := i.queue.Enqueue(ctx, m)
	if err != nil {
		return nil, err
	}

	draft, err := i.drafts.Get(ctx, m.EntityID())
	if err == nil {
		updated := m.ModifyDraft(*draft)
		if err := i.drafts.Upsert(ctx, &updated); err != nil {
			i.log.Warn().Err(err).
				Str("draft_id", m.EntityID()).
				Msg("optimistic cache patch failed")
		}
	} else if m.Type() == domain.ModifierDraftUpdate {
		// First local edit of a draft the cache has never seen.
		skeleton := domain.DraftDocument{
			ID:        m.EntityID(),
			AccountID: m.AccountID(),
			Provider:  m.Provider(),
		}
		updated := m.ModifyDraft(skeleton)
		if err := i.drafts.Upsert(ctx, &updated); err != nil {
			i.log.Warn().Err(err).
				Str("draft_id", m.EntityID()).
				Msg("optimistic cache create failed")
		}
	}

	i.nudge()
	return rec, nil
}

func (i *Intake) cachedEmail(ctx context.Context, emailID string) *domain.EmailDocument {
	email, err := i.emails.Get(ctx, emailID)
	if err != nil {
		return nil
	}
	return email
}

func (i *Intake) nudge() {
	if i.onEnqueued != nil {
		i.onEnqueued()
	}
}
