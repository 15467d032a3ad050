package modifier

import (
	"context"

	"github.com/goccy/go-json"

	"mailsync/core/domain"
	"mailsync/core/port/out"
)

// =============================================================================
// Archive / Unarchive
// =============================================================================

type archiveModifier struct {
	base
	payload domain.ArchivePayload
}

// NewArchive queues an archive. prevFolder and prevLabels capture the
// message's current location so a later unarchive can restore it.
func NewArchive(entityID, accountID string, provider domain.Provider, prevFolder string, prevLabels []string) EmailModifier {
	return &archiveModifier{
		base: newBase(entityID, accountID, provider),
		payload: domain.ArchivePayload{
			PrevFolder: prevFolder,
			PrevLabels: append([]string(nil), prevLabels...),
		},
	}
}

func (m *archiveModifier) Type() domain.ModifierType      { return domain.ModifierArchive }
func (m *archiveModifier) EntityType() domain.EntityType  { return domain.EntityEmail }
func (m *archiveModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *archiveModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Folder = domain.FolderArchive
	return email
}

func (m *archiveModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Archive(ctx, m.entityID)
}

type unarchiveModifier struct {
	base
	payload domain.ArchivePayload
}

// NewUnarchive queues an unarchive restoring the pre-archive location.
// An empty prevFolder falls back to the inbox.
func NewUnarchive(entityID, accountID string, provider domain.Provider, prevFolder string, prevLabels []string) EmailModifier {
	return &unarchiveModifier{
		base: newBase(entityID, accountID, provider),
		payload: domain.ArchivePayload{
			PrevFolder: prevFolder,
			PrevLabels: append([]string(nil), prevLabels...),
		},
	}
}

func (m *unarchiveModifier) Type() domain.ModifierType     { return domain.ModifierUnarchive }
func (m *unarchiveModifier) EntityType() domain.EntityType { return domain.EntityEmail }
func (m *unarchiveModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *unarchiveModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Folder = m.payload.PrevFolder
	if email.Folder == "" {
		email.Folder = domain.FolderInbox
	}
	if len(m.payload.PrevLabels) > 0 {
		email.Labels = append([]string(nil), m.payload.PrevLabels...)
	}
	return email
}

func (m *unarchiveModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Unarchive(ctx, m.entityID)
}

// =============================================================================
// Delete / Undelete (trash)
// =============================================================================

type deleteModifier struct {
	base
	payload domain.DeletePayload
}

// NewDelete queues a move-to-trash.
func NewDelete(entityID, accountID string, provider domain.Provider, prevFolder string) EmailModifier {
	return &deleteModifier{
		base:    newBase(entityID, accountID, provider),
		payload: domain.DeletePayload{PrevFolder: prevFolder},
	}
}

func (m *deleteModifier) Type() domain.ModifierType     { return domain.ModifierDelete }
func (m *deleteModifier) EntityType() domain.EntityType { return domain.EntityEmail }
func (m *deleteModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *deleteModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Folder = domain.FolderTrash
	return email
}

func (m *deleteModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Trash(ctx, m.entityID)
}

type undeleteModifier struct {
	base
	payload domain.DeletePayload
}

// NewUndelete queues a restore from trash.
func NewUndelete(entityID, accountID string, provider domain.Provider, prevFolder string) EmailModifier {
	return &undeleteModifier{
		base:    newBase(entityID, accountID, provider),
		payload: domain.DeletePayload{PrevFolder: prevFolder},
	}
}

func (m *undeleteModifier) Type() domain.ModifierType     { return domain.ModifierUndelete }
func (m *undeleteModifier) EntityType() domain.EntityType { return domain.EntityEmail }
func (m *undeleteModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *undeleteModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Folder = m.payload.PrevFolder
	if email.Folder == "" {
		email.Folder = domain.FolderInbox
	}
	return email
}

func (m *undeleteModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Untrash(ctx, m.entityID)
}

// =============================================================================
// Read state
// =============================================================================

type markReadModifier struct {
	base
}

// NewMarkRead queues a mark-as-read.
func NewMarkRead(entityID, accountID string, provider domain.Provider) EmailModifier {
	return &markReadModifier{base: newBase(entityID, accountID, provider)}
}

func (m *markReadModifier) Type() domain.ModifierType        { return domain.ModifierMarkRead }
func (m *markReadModifier) EntityType() domain.EntityType    { return domain.EntityEmail }
func (m *markReadModifier) Payload() (json.RawMessage, error) { return nil, nil }

func (m *markReadModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Read = true
	return email
}

func (m *markReadModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.MarkRead(ctx, m.entityID)
}

type markUnreadModifier struct {
	base
}

// NewMarkUnread queues a mark-as-unread.
func NewMarkUnread(entityID, accountID string, provider domain.Provider) EmailModifier {
	return &markUnreadModifier{base: newBase(entityID, accountID, provider)}
}

func (m *markUnreadModifier) Type() domain.ModifierType        { return domain.ModifierMarkUnread }
func (m *markUnreadModifier) EntityType() domain.EntityType    { return domain.EntityEmail }
func (m *markUnreadModifier) Payload() (json.RawMessage, error) { return nil, nil }

func (m *markUnreadModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Read = false
	return email
}

func (m *markUnreadModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.MarkUnread(ctx, m.entityID)
}

// =============================================================================
// Move
// =============================================================================

type moveModifier struct {
	base
	payload domain.MovePayload
}

// NewMove queues a move to another folder.
func NewMove(entityID, accountID string, provider domain.Provider, payload domain.MovePayload) EmailModifier {
	return &moveModifier{
		base:    newBase(entityID, accountID, provider),
		payload: payload,
	}
}

func (m *moveModifier) Type() domain.ModifierType     { return domain.ModifierMove }
func (m *moveModifier) EntityType() domain.EntityType { return domain.EntityEmail }
func (m *moveModifier) Payload() (json.RawMessage, error) {
	return json.Marshal(m.payload)
}

func (m *moveModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Folder = m.payload.TargetFolder
	return email
}

func (m *moveModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	target := m.payload.TargetID
	if target == "" {
		target = m.payload.TargetFolder
	}
	return mailbox.Move(ctx, m.entityID, target)
}

// =============================================================================
// Star / Unstar
// =============================================================================

type starModifier struct {
	base
}

// NewStar queues a star/flag.
func NewStar(entityID, accountID string, provider domain.Provider) EmailModifier {
	return &starModifier{base: newBase(entityID, accountID, provider)}
}

func (m *starModifier) Type() domain.ModifierType        { return domain.ModifierStar }
func (m *starModifier) EntityType() domain.EntityType    { return domain.EntityEmail }
func (m *starModifier) Payload() (json.RawMessage, error) { return nil, nil }

func (m *starModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Starred = true
	return email
}

func (m *starModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Star(ctx, m.entityID)
}

type unstarModifier struct {
	base
}

// NewUnstar queues an unstar/unflag.
func NewUnstar(entityID, accountID string, provider domain.Provider) EmailModifier {
	return &unstarModifier{base: newBase(entityID, accountID, provider)}
}

func (m *unstarModifier) Type() domain.ModifierType        { return domain.ModifierUnstar }
func (m *unstarModifier) EntityType() domain.EntityType    { return domain.EntityEmail }
func (m *unstarModifier) Payload() (json.RawMessage, error) { return nil, nil }

func (m *unstarModifier) Modify(email domain.EmailDocument) domain.EmailDocument {
	email.Starred = false
	return email
}

func (m *unstarModifier) Persist(ctx context.Context, mailbox out.MailboxPort) error {
	return mailbox.Unstar(ctx, m.entityID)
}
