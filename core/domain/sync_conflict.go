package domain

import (
	"time"
)

// =============================================================================
// Conflict Detection & Resolution
// =============================================================================

// ConflictType classifies which aspect of the entity diverged.
type ConflictType string

const (
	ConflictContent  ConflictType = "content"  // subject or body
	ConflictMetadata ConflictType = "metadata" // read or starred
	ConflictLabels   ConflictType = "labels"   // label set
)

// Resolution is the user's choice for a detected conflict.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"  // local version overwrites server
	ResolutionServer Resolution = "server" // adopt server, drop pending work
	ResolutionMerged Resolution = "merged" // caller-supplied record is canonical
)

// PendingConflict records a disagreement between the local and server copies
// of one email, discovered during a sync pull. It blocks the entity's
// modifier queue until explicitly resolved.
type PendingConflict struct {
	ID        string `json:"id"`
	EmailID   string `json:"email_id"`
	AccountID string `json:"account_id"`

	// A single conflict may span multiple types; ConflictingFields lists
	// every differing field.
	Types             []ConflictType `json:"types"`
	ConflictingFields []string       `json:"conflicting_fields"`

	LocalVersion  EmailDocument `json:"local_version"`
	ServerVersion EmailDocument `json:"server_version"`

	DetectedAt time.Time `json:"detected_at"`
}

// HasType reports whether the conflict includes the given classification.
func (c *PendingConflict) HasType(t ConflictType) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}
