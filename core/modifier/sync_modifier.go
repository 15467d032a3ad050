// Package modifier implements the offline mutation vocabulary. Each modifier
// carries everything needed to (a) patch the cached document optimistically
// and (b) replay the mutation against the provider once connectivity allows.
package modifier

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"mailsync/core/domain"
	"mailsync/core/port/out"
)

// =============================================================================
// Modifier Contract
// =============================================================================

// Modifier is one queued mutation. Implementations are immutable after
// construction; the same value may be folded over the cache any number of
// times and persisted at most once.
type Modifier interface {
	ID() string
	Type() domain.ModifierType
	EntityID() string
	EntityType() domain.EntityType
	AccountID() string
	Provider() domain.Provider
	CreatedAt() time.Time

	// Payload serializes the type-specific data for durable storage.
	Payload() (json.RawMessage, error)

	// Persist replays the mutation against the provider.
	Persist(ctx context.Context, mailbox out.MailboxPort) error
}

// EmailModifier additionally transforms a cached email document.
type EmailModifier interface {
	Modifier

	// Modify returns the document as it should look after this mutation.
	// The input is not mutated.
	Modify(email domain.EmailDocument) domain.EmailDocument
}

// DraftModifier additionally transforms a cached draft document.
type DraftModifier interface {
	Modifier

	ModifyDraft(draft domain.DraftDocument) domain.DraftDocument
}

// =============================================================================
// Shared base
// =============================================================================

type base struct {
	id        string
	entityID  string
	accountID string
	provider  domain.Provider
	createdAt time.Time
}

func newBase(entityID, accountID string, provider domain.Provider) base {
	return base{
		id:        uuid.NewString(),
		entityID:  entityID,
		accountID: accountID,
		provider:  provider,
		createdAt: time.Now().UTC(),
	}
}

func baseFromRecord(rec *domain.ModifierRecord) base {
	return base{
		id:        rec.ID,
		entityID:  rec.EntityID,
		accountID: rec.AccountID,
		provider:  rec.Provider,
		createdAt: rec.CreatedAt,
	}
}

func (b base) ID() string                { return b.id }
func (b base) EntityID() string          { return b.entityID }
func (b base) AccountID() string         { return b.accountID }
func (b base) Provider() domain.Provider { return b.provider }
func (b base) CreatedAt() time.Time      { return b.createdAt }

// =============================================================================
// Folding
// =============================================================================

// FoldEmail applies pending email modifiers over the cached base, oldest
// first, and returns the display state. Non-email modifiers are skipped.
func FoldEmail(email domain.EmailDocument, mods []Modifier) domain.EmailDocument {
	result := email.Clone()
	for _, m := range mods {
		if em, ok := m.(EmailModifier); ok {
			result = em.Modify(result)
		}
	}
	return result
}

// FoldDraft applies pending draft modifiers over the cached base, oldest
// first.
func FoldDraft(draft domain.DraftDocument, mods []Modifier) domain.DraftDocument {
	result := draft.Clone()
	for _, m := range mods {
		if dm, ok := m.(DraftModifier); ok {
			result = dm.ModifyDraft(result)
		}
	}
	return result
}
