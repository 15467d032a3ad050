package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// =============================================================================
// Offline-First Modifier Queue
// =============================================================================
//
// A ModifierRecord is the durable form of one locally-recorded mutation.
// The record's type plus payload are sufficient to rebuild a fully
// functional modifier after a process restart; nothing lives only in memory.

// ModifierType discriminates the mutation kinds.
type ModifierType string

const (
	ModifierArchive     ModifierType = "archive"
	ModifierUnarchive   ModifierType = "unarchive"
	ModifierDelete      ModifierType = "delete"
	ModifierUndelete    ModifierType = "undelete"
	ModifierMarkRead    ModifierType = "mark_read"
	ModifierMarkUnread  ModifierType = "mark_unread"
	ModifierMove        ModifierType = "move"
	ModifierStar        ModifierType = "star"
	ModifierUnstar      ModifierType = "unstar"
	ModifierDraftUpdate ModifierType = "draft_update"
	ModifierDraftDelete ModifierType = "draft_delete"
)

// ModifierStatus tracks a record through its lifecycle.
type ModifierStatus string

const (
	ModifierStatusPending    ModifierStatus = "pending"
	ModifierStatusProcessing ModifierStatus = "processing"
	ModifierStatusCompleted  ModifierStatus = "completed"
	ModifierStatusFailed     ModifierStatus = "failed"
)

// DefaultMaxAttempts bounds automatic retries of transient failures.
const DefaultMaxAttempts = 5

// ModifierRecord is the persisted mutation request.
type ModifierRecord struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entity_id"`
	EntityType EntityType     `json:"entity_type"`
	AccountID  string         `json:"account_id"`
	Provider   Provider       `json:"provider"`
	Type       ModifierType   `json:"type"`
	Status     ModifierStatus `json:"status"`

	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastError string    `json:"last_error,omitempty"`

	// Type-specific data needed to replay the mutation (prior label set,
	// target folder, draft content, ...).
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsPending returns true if the record is waiting to be persisted.
func (m *ModifierRecord) IsPending() bool {
	return m.Status == ModifierStatusPending
}

// IsTerminal returns true once the record will never be retried.
func (m *ModifierRecord) IsTerminal() bool {
	return m.Status == ModifierStatusCompleted || m.Status == ModifierStatusFailed
}

// Eligible reports whether a pending record may be attempted at t.
func (m *ModifierRecord) Eligible(t time.Time) bool {
	if m.Status != ModifierStatusPending {
		return false
	}
	return m.NextAttemptAt == nil || !m.NextAttemptAt.After(t)
}

// =============================================================================
// Modifier Payloads
// =============================================================================

// ArchivePayload remembers where the message was so unarchive can restore it.
type ArchivePayload struct {
	PrevFolder string   `json:"prev_folder,omitempty"`
	PrevLabels []string `json:"prev_labels,omitempty"`
}

// DeletePayload remembers the pre-trash location for undelete.
type DeletePayload struct {
	PrevFolder string `json:"prev_folder,omitempty"`
}

// MovePayload carries the source and destination of a move.
type MovePayload struct {
	TargetFolder string `json:"target_folder"`
	SourceFolder string `json:"source_folder,omitempty"`
	// Provider folder/label ids when the folder is not a well-known one.
	TargetID string `json:"target_id,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// DraftUpdatePayload carries the full draft content to push.
type DraftUpdatePayload struct {
	Subject  string   `json:"subject"`
	BodyText string   `json:"body_text,omitempty"`
	BodyHTML string   `json:"body_html,omitempty"`
	To       []string `json:"to,omitempty"`
	Cc       []string `json:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty"`
}

// =============================================================================
// Queue Events
// =============================================================================

// QueueEventKind enumerates the modifier lifecycle events.
type QueueEventKind string

const (
	QueueEventAdded     QueueEventKind = "added"
	QueueEventRemoved   QueueEventKind = "removed"
	QueueEventCompleted QueueEventKind = "completed"
	QueueEventFailed    QueueEventKind = "failed"

	// Out-of-band notifications pushed over the same stream.
	QueueEventConflictDetected QueueEventKind = "conflict_detected"
	QueueEventConflictResolved QueueEventKind = "conflict_resolved"
	QueueEventReauthRequired   QueueEventKind = "reauth_required"
)

// QueueEvent is delivered to queue subscribers. Events for one entity are
// delivered in the order the underlying transitions happened. Seq is
// assigned by the realtime layer when the event is pushed to clients.
type QueueEvent struct {
	Kind     QueueEventKind   `json:"kind"`
	EntityID string           `json:"entity_id"`
	Modifier *ModifierRecord  `json:"modifier,omitempty"`
	Conflict *PendingConflict `json:"conflict,omitempty"`
	Seq      int64            `json:"seq,omitempty"`
	At       time.Time        `json:"at"`
}
