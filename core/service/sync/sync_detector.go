// Package sync reconciles the local cache with the provider's copy and
// surfaces conflicts for the user to resolve.
package sync

import (
	"time"

	"github.com/google/uuid"

	"mailsync/core/domain"
)

// =============================================================================
// Three-way Conflict Detection
// =============================================================================
//
// base is the last state both sides agreed on (the cached document), local
// is base with pending modifiers folded in, and server is the freshly pulled
// copy. Metadata and labels conflict only when both sides moved them away
// from base and disagree on the result; a one-sided change syncs in the
// usual direction. Content fields (subject, bodies) have no local mutation
// path, so any local/server disagreement on them while work is queued means
// the server edited content the user is still acting on and must be flagged.

// Field names reported in PendingConflict.ConflictingFields.
const (
	FieldSubject  = "subject"
	FieldBodyText = "body_text"
	FieldBodyHTML = "body_html"
	FieldRead     = "read"
	FieldStarred  = "starred"
	FieldLabels   = "labels"
)

// Detect compares the three versions of one email. It returns nil when
// nothing conflicts.
func Detect(base, local, server domain.EmailDocument) *domain.PendingConflict {
	var fields []string
	var types []domain.ConflictType

	addType := func(t domain.ConflictType) {
		for _, have := range types {
			if have == t {
				return
			}
		}
		types = append(types, t)
	}

	checkContent := func(field string, localV, serverV string) {
		if localV != serverV {
			fields = append(fields, field)
			addType(domain.ConflictContent)
		}
	}

	checkContent(FieldSubject, local.Subject, server.Subject)
	checkContent(FieldBodyText, local.BodyText, server.BodyText)
	checkContent(FieldBodyHTML, local.BodyHTML, server.BodyHTML)

	checkBool := func(field string, t domain.ConflictType, baseV, localV, serverV bool) {
		if baseV != localV && baseV != serverV && localV != serverV {
			fields = append(fields, field)
			addType(t)
		}
	}
	checkBool(FieldRead, domain.ConflictMetadata, base.Read, local.Read, server.Read)
	checkBool(FieldStarred, domain.ConflictMetadata, base.Starred, local.Starred, server.Starred)

	if !labelsEqual(base.Labels, local.Labels) &&
		!labelsEqual(base.Labels, server.Labels) &&
		!labelsEqual(local.Labels, server.Labels) {
		fields = append(fields, FieldLabels)
		addType(domain.ConflictLabels)
	}

	if len(fields) == 0 {
		return nil
	}

	return &domain.PendingConflict{
		ID:                uuid.NewString(),
		EmailID:           base.ID,
		AccountID:         base.AccountID,
		Types:             types,
		ConflictingFields: fields,
		LocalVersion:      local,
		ServerVersion:     server,
		DetectedAt:        time.Now().UTC(),
	}
}

// labelsEqual compares label sets ignoring order and duplicates.
func labelsEqual(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, l := range a {
		setA[l] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, l := range b {
		setB[l] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for l := range setA {
		if _, ok := setB[l]; !ok {
			return false
		}
	}
	return true
}
