// Package queue implements the durable offline modifier queue.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/modifier"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// Queue Service
// =============================================================================

// Service is the durable modifier queue. Every accepted modifier is written
// through to the repository before the caller returns, so nothing queued is
// lost on restart. Subscribers observe lifecycle events in the order the
// transitions happened for any single entity.
type Service struct {
	repo out.ModifierRepository
	log  zerolog.Logger

	mu             sync.Mutex
	nextSubID      int
	subs           map[int]func(*domain.QueueEvent)
	pausedEntities map[string]struct{}
	pausedAccounts map[string]struct{}
}

// NewService creates the queue service.
func NewService(repo out.ModifierRepository, log zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		log:            log.With().Str("component", "modifier_queue").Logger(),
		subs:           make(map[int]func(*domain.QueueEvent)),
		pausedEntities: make(map[string]struct{}),
		pausedAccounts: make(map[string]struct{}),
	}
}

// Enqueue durably records a modifier and returns its queue record.
func (s *Service) Enqueue(ctx context.Context, m modifier.Modifier) (*domain.ModifierRecord, error) {
	rec, err := modifier.ToRecord(m)
	if err != nil {
		return nil, apperr.BadPayload(err.Error())
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("modifier_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("entity_id", rec.EntityID).
		Msg("modifier enqueued")

	s.emit(&domain.QueueEvent{
		Kind:     domain.QueueEventAdded,
		EntityID: rec.EntityID,
		Modifier: rec,
		At:       time.Now().UTC(),
	})
	return rec, nil
}

// Remove deletes a still-pending modifier, e.g. when the user cancels.
func (s *Service) Remove(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.IsTerminal() {
		return apperr.Conflict("modifier already settled")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.emit(&domain.QueueEvent{
		Kind:     domain.QueueEventRemoved,
		EntityID: rec.EntityID,
		Modifier: rec,
		At:       time.Now().UTC(),
	})
	return nil
}

// BeginAttempt transitions a record to processing and consumes an attempt.
func (s *Service) BeginAttempt(ctx context.Context, rec *domain.ModifierRecord) error {
	rec.Status = domain.ModifierStatusProcessing
	rec.Attempts++
	rec.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, rec)
}

// Complete settles a record as successfully persisted.
func (s *Service) Complete(ctx context.Context, rec *domain.ModifierRecord) error {
	rec.Status = domain.ModifierStatusCompleted
	rec.UpdatedAt = time.Now().UTC()
	rec.NextAttemptAt = nil
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}

	s.emit(&domain.QueueEvent{
		Kind:     domain.QueueEventCompleted,
		EntityID: rec.EntityID,
		Modifier: rec,
		At:       rec.UpdatedAt,
	})
	return nil
}

// Fail settles a record as permanently failed.
func (s *Service) Fail(ctx context.Context, rec *domain.ModifierRecord, cause error) error {
	rec.Status = domain.ModifierStatusFailed
	rec.UpdatedAt = time.Now().UTC()
	rec.NextAttemptAt = nil
	if cause != nil {
		rec.LastError = cause.Error()
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}

	s.log.Warn().
		Str("modifier_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("entity_id", rec.EntityID).
		Str("error", rec.LastError).
		Msg("modifier failed permanently")

	s.emit(&domain.QueueEvent{
		Kind:     domain.QueueEventFailed,
		EntityID: rec.EntityID,
		Modifier: rec,
		At:       rec.UpdatedAt,
	})
	return nil
}

// Reschedule records a transient failure and the next attempt time.
func (s *Service) Reschedule(ctx context.Context, rec *domain.ModifierRecord, cause error, nextAttempt time.Time) error {
	rec.Status = domain.ModifierStatusPending
	rec.UpdatedAt = time.Now().UTC()
	rec.NextAttemptAt = &nextAttempt
	if cause != nil {
		rec.LastError = cause.Error()
	}
	return s.repo.Update(ctx, rec)
}

// =============================================================================
// Queries
// =============================================================================

// PendingForEntity returns the entity's pending modifiers, oldest first, as
// rebuilt modifiers ready to fold or persist.
func (s *Service) PendingForEntity(ctx context.Context, entityID string) ([]modifier.Modifier, error) {
	recs, err := s.repo.GetPendingByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return modifier.FromRecords(recs)
}

// PendingRecordsForEntity returns the raw queue records, oldest first.
func (s *Service) PendingRecordsForEntity(ctx context.Context, entityID string) ([]*domain.ModifierRecord, error) {
	return s.repo.GetPendingByEntity(ctx, entityID)
}

// PendingForAccount returns all pending records for one account.
func (s *Service) PendingForAccount(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error) {
	return s.repo.GetPendingByAccount(ctx, accountID)
}

// AllPending returns every pending record across accounts.
func (s *Service) AllPending(ctx context.Context) ([]*domain.ModifierRecord, error) {
	return s.repo.GetAllPending(ctx)
}

// HasPending reports whether the entity has queued work.
func (s *Service) HasPending(ctx context.Context, entityID string) (bool, error) {
	return s.repo.HasPending(ctx, entityID)
}

// CleanupFailed drops failed records older than the cutoff.
func (s *Service) CleanupFailed(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.DeleteFailedBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("stale failed modifiers cleaned up")
	}
	return n, nil
}

// =============================================================================
// Pause / Resume
// =============================================================================

// PauseEntity stops replay for one entity, e.g. while a conflict is open.
func (s *Service) PauseEntity(entityID string) {
	s.mu.Lock()
	s.pausedEntities[entityID] = struct{}{}
	s.mu.Unlock()
}

// ResumeEntity lifts an entity pause.
func (s *Service) ResumeEntity(entityID string) {
	s.mu.Lock()
	delete(s.pausedEntities, entityID)
	s.mu.Unlock()
}

// PauseAccount stops replay for a whole account, e.g. pending re-auth.
func (s *Service) PauseAccount(accountID string) {
	s.mu.Lock()
	s.pausedAccounts[accountID] = struct{}{}
	s.mu.Unlock()
}

// ResumeAccount lifts an account pause.
func (s *Service) ResumeAccount(accountID string) {
	s.mu.Lock()
	delete(s.pausedAccounts, accountID)
	s.mu.Unlock()
}

// IsPaused reports whether replay is blocked for the entity or its account.
func (s *Service) IsPaused(entityID, accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pausedEntities[entityID]; ok {
		return true
	}
	_, ok := s.pausedAccounts[accountID]
	return ok
}

// =============================================================================
// Event subscription
// =============================================================================

// Subscribe registers a lifecycle event callback and returns an unsubscribe
// function. Callbacks run synchronously on the emitting goroutine; slow
// consumers should hand off to their own channel.
func (s *Service) Subscribe(fn func(*domain.QueueEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// NotifyConflict publishes a conflict lifecycle event to the same
// subscribers that receive modifier transitions, so the UI learns about
// detection and resolution over one stream.
func (s *Service) NotifyConflict(kind domain.QueueEventKind, conflict *domain.PendingConflict) {
	s.emit(&domain.QueueEvent{
		Kind:     kind,
		EntityID: conflict.EmailID,
		Conflict: conflict,
		At:       time.Now().UTC(),
	})
}

func (s *Service) emit(ev *domain.QueueEvent) {
	s.mu.Lock()
	fns := make([]func(*domain.QueueEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
