package out

import (
	"context"

	"golang.org/x/oauth2"

	"mailsync/core/domain"
)

// =============================================================================
// TokenStore - per-account OAuth tokens
// =============================================================================

// TokenStore persists OAuth tokens per provider account.
type TokenStore interface {
	Get(ctx context.Context, provider domain.Provider, accountID string) (*oauth2.Token, error)
	Save(ctx context.Context, provider domain.Provider, accountID string, token *oauth2.Token) error
	Delete(ctx context.Context, provider domain.Provider, accountID string) error
}
