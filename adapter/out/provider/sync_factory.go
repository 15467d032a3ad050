package provider

import (
	"context"
	"fmt"
	"sync"

	"mailsync/adapter/out/provider/gmail"
	"mailsync/adapter/out/provider/outlook"
	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/core/service/auth"
	"mailsync/pkg/apperr"
	"mailsync/pkg/httputil"
)

// Factory builds and caches one mailbox per provider:account pair. Cached
// mailboxes reuse their HTTP client's connection pool across replays.
type Factory struct {
	tokens *auth.TokenService

	mu        sync.RWMutex
	mailboxes map[string]out.MailboxPort
}

var _ out.MailboxFactory = (*Factory)(nil)

func NewFactory(tokens *auth.TokenService) *Factory {
	return &Factory{
		tokens:    tokens,
		mailboxes: make(map[string]out.MailboxPort),
	}
}

func (f *Factory) Mailbox(ctx context.Context, provider domain.Provider, accountID string) (out.MailboxPort, error) {
	key := string(provider) + ":" + accountID

	f.mu.RLock()
	mb, ok := f.mailboxes[key]
	f.mu.RUnlock()
	if ok {
		return mb, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if mb, ok := f.mailboxes[key]; ok {
		return mb, nil
	}

	mb, err := f.build(ctx, provider, accountID)
	if err != nil {
		return nil, err
	}
	f.mailboxes[key] = mb
	return mb, nil
}

func (f *Factory) build(ctx context.Context, provider domain.Provider, accountID string) (out.MailboxPort, error) {
	switch provider {
	case domain.ProviderGmail:
		client := NewAuthClient(httputil.GmailClient(), f.tokens, provider, accountID)
		return gmail.NewMailbox(ctx, client, accountID)
	case domain.ProviderOutlook:
		client := NewAuthClient(httputil.OutlookClient(), f.tokens, provider, accountID)
		return outlook.NewMailbox(client, accountID), nil
	default:
		return nil, apperr.ConfigError(fmt.Sprintf("unknown provider %q", provider))
	}
}

// Evict drops the cached mailbox for an account, forcing a rebuild on the
// next replay. Called after token revocation.
func (f *Factory) Evict(provider domain.Provider, accountID string) {
	f.mu.Lock()
	delete(f.mailboxes, string(provider)+":"+accountID)
	f.mu.Unlock()
}
