// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"mailsync/core/domain"
)

// =============================================================================
// EmailRepository - local email cache
// =============================================================================

// EmailRepository stores the locally cached view of emails. Modifiers are
// applied to this cache optimistically before the provider confirms them.
type EmailRepository interface {
	Get(ctx context.Context, id string) (*domain.EmailDocument, error)
	Upsert(ctx context.Context, email *domain.EmailDocument) error
	Delete(ctx context.Context, id string) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.EmailDocument, error)
}

// =============================================================================
// DraftRepository - local draft cache
// =============================================================================

// DraftRepository stores the locally cached view of drafts.
type DraftRepository interface {
	Get(ctx context.Context, id string) (*domain.DraftDocument, error)
	Upsert(ctx context.Context, draft *domain.DraftDocument) error
	Delete(ctx context.Context, id string) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.DraftDocument, error)
}
