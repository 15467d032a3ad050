package out

import (
	"context"

	"mailsync/core/domain"
)

// =============================================================================
// Mailbox Port (Gmail, Outlook)
// =============================================================================

// MailboxPort defines the outbound port for provider mailbox mutations.
// One instance is bound to a single account; token handling and refresh
// live behind the implementation.
type MailboxPort interface {
	// Provider returns "gmail" or "outlook".
	Provider() domain.Provider

	// AccountID returns the bound account.
	AccountID() string

	// GetMessage fetches the server view of a message for conflict checks.
	GetMessage(ctx context.Context, externalID string) (*domain.EmailDocument, error)

	// Read state
	MarkRead(ctx context.Context, externalID string) error
	MarkUnread(ctx context.Context, externalID string) error

	// Folders
	Archive(ctx context.Context, externalID string) error
	Unarchive(ctx context.Context, externalID string) error
	Trash(ctx context.Context, externalID string) error
	Untrash(ctx context.Context, externalID string) error
	Move(ctx context.Context, externalID, targetFolder string) error

	// Flags
	Star(ctx context.Context, externalID string) error
	Unstar(ctx context.Context, externalID string) error

	// Drafts. UpsertDraft creates the draft when the provider reports the
	// draft ID missing, so queued edits to never-synced drafts still land.
	UpsertDraft(ctx context.Context, draft *domain.DraftDocument) (string, error)
	DeleteDraft(ctx context.Context, draftID string) error
}

// MailboxFactory resolves a MailboxPort for an account.
type MailboxFactory interface {
	Mailbox(ctx context.Context, provider domain.Provider, accountID string) (MailboxPort, error)
}
