package modifier

import (
	"context"

	"github.com/goccy/go-json"

	"mailsync/core/domain"
	"mailsync/core/port/out"
)

// =============================================================================
// Draft Update
// =============================================================================

type draftUpdateModifier struct {
	base
	payload domain.DraftUpdatePayload
}

// NewDraftUpdate queues a full-content draft save. The payload carries the
// complete draft so replay does not depend on the cache surviving.
func NewDraftUpdate(entityID, accountID string, provider domain.Provider, payload domain.DraftUpdatePayload) DraftModifier {
	return &draftUpdateModifier{
		base:    newBase(entityID, accountID, provider),
		payload: payload,
	}
}

func (m *draftUpdateModifier) Type() domain.ModifierType     { return domain.ModifierDraftUpdate }
func (m *draftUpdateModifier) EntityType() domain.EntityType { return domain.EntityDraft }
func (m *draftUpdateModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *draftUpdateModifier) ModifyDraft(draft domain.DraftDocument) domain.DraftDocument {
	draft.Subject = m.payload.Subject
	draft.BodyText = m.payload.BodyText
	draft.BodyHTML = m.payload.BodyHTML
	draft.To = append([]string(nil), m.payload.To...)
	draft.Cc = append([]string(nil), m.payload.Cc...)
	draft.Bcc = append([]string(nil), m.payload.Bcc...)
	draft.Deleted = false
	return draft
}

func (m *draftUpdateModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	_, err := mailbox.UpsertDraft(ctx, &domain.DraftDocument{
		ID:        m.entityID,
		AccountID: m.accountID,
		Provider:  m.provider,
		Subject:   m.payload.Subject,
		BodyText:  m.payload.BodyText,
		BodyHTML:  m.payload.BodyHTML,
		To:        m.payload.To,
		Cc:        m.payload.Cc,
		Bcc:       m.payload.Bcc,
	})
	return err
}

// =============================================================================
// Draft Delete
// =============================================================================

type draftDeleteModifier struct {
	base
}

// NewDraftDelete queues a draft deletion.
func NewDraftDelete(entityID, accountID string, provider domain.Provider) DraftModifier {
	return &draftDeleteModifier{base: newBase(entityID, accountID, provider)}
}

func (m *draftDeleteModifier) Type() domain.ModifierType        { return domain.ModifierDraftDelete }
func (m *draftDeleteModifier) EntityType() domain.EntityType    { return domain.EntityDraft }
func (m *draftDeleteModifier) Payload() (json.RawMessage, error) { return nil, nil }

func (m *draftDeleteModifier) ModifyDraft(draft domain.DraftDocument) domain.DraftDocument {
	draft.Deleted = true
	return draft
}

func (m *draftDeleteModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.DeleteDraft(ctx, m.entityID)
}
