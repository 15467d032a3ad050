// Package auth manages per-account OAuth tokens for the providers.
package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
	"mailsync/pkg/httputil"
)

// =============================================================================
// Token Service
// =============================================================================

// TokenService hands out valid access tokens and performs refreshes against
// the provider's token endpoint. Refreshes for one account are serialized so
// a burst of 401s produces a single refresh.
type TokenService struct {
	store   out.TokenStore
	configs map[domain.Provider]*oauth2.Config
	log     zerolog.Logger

	mu         sync.Mutex
	refreshing map[string]*sync.Mutex // provider:account -> refresh lock
}

// NewTokenService creates the service. configs maps each provider to its
// OAuth client configuration.
func NewTokenService(store out.TokenStore, configs map[domain.Provider]*oauth2.Config, log zerolog.Logger) *TokenService {
	return &TokenService{
		store:      store,
		configs:    configs,
		log:        log.With().Str("component", "token_service").Logger(),
		refreshing: make(map[string]*sync.Mutex),
	}
}

// Token returns the stored token for an account, refreshing it first when it
// is already expired.
func (s *TokenService) Token(ctx context.Context, provider domain.Provider, accountID string) (*oauth2.Token, error) {
	tok, err := s.store.Get(ctx, provider, accountID)
	if err != nil {
		return nil, apperr.AuthRequired(accountID, err)
	}
	if tok.Valid() {
		return tok, nil
	}
	return s.Refresh(ctx, provider, accountID, tok.AccessToken)
}

// Refresh exchanges the refresh token for a new access token and persists
// the result. staleAccessToken is the token the caller just failed with; a
// provider can reject a token that still looks unexpired locally, so the
// exchange is forced unless another caller already replaced it.
func (s *TokenService) Refresh(ctx context.Context, provider domain.Provider, accountID, staleAccessToken string) (*oauth2.Token, error) {
	lock := s.accountLock(provider, accountID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.Get(ctx, provider, accountID)
	if err != nil {
		return nil, apperr.AuthRequired(accountID, err)
	}
	// Another caller may have refreshed while we waited on the lock.
	if current.AccessToken != staleAccessToken && current.Valid() {
		return current, nil
	}

	cfg, ok := s.configs[provider]
	if !ok {
		return nil, apperr.ConfigError("no oauth config for provider " + string(provider))
	}

	// The exchange goes over the shared pooled client instead of
	// http.DefaultClient.
	if ctx.Value(oauth2.HTTPClient) == nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.DefaultClient())
	}
	seed := &oauth2.Token{RefreshToken: current.RefreshToken}
	refreshed, err := cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		s.log.Warn().
			Str("provider", string(provider)).
			Str("account_id", accountID).
			Err(err).
			Msg("token refresh failed")
		return nil, apperr.AuthRequired(accountID, err)
	}

	if refreshed.AccessToken != current.AccessToken {
		if err := s.store.Save(ctx, provider, accountID, refreshed); err != nil {
			return nil, err
		}
	}
	return refreshed, nil
}

// Save stores a token obtained out of band, e.g. from the authorization
// code exchange.
func (s *TokenService) Save(ctx context.Context, provider domain.Provider, accountID string, tok *oauth2.Token) error {
	return s.store.Save(ctx, provider, accountID, tok)
}

// Revoke drops the stored token; the account needs a fresh sign-in.
func (s *TokenService) Revoke(ctx context.Context, provider domain.Provider, accountID string) error {
	return s.store.Delete(ctx, provider, accountID)
}

func (s *TokenService) accountLock(provider domain.Provider, accountID string) *sync.Mutex {
	key := string(provider) + ":" + accountID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.refreshing[key]
	if !ok {
		lock = &sync.Mutex{}
		s.refreshing[key] = lock
	}
	return lock
}
