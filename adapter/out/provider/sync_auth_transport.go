// Package provider wires provider mailbox adapters behind the MailboxPort.
package provider

import (
	"net/http"

	"mailsync/core/domain"
	"mailsync/core/service/auth"
)

// =============================================================================
// Refresh-and-retry transport
// =============================================================================
//
// Both provider adapters share this round tripper: it attaches the account's
// access token and, on a 401, refreshes once and retries the request. A 401
// that survives the retry reaches the adapter, which surfaces it as an
// auth-required error and pauses the account upstream.

type refreshTransport struct {
	base      http.RoundTripper
	tokens    *auth.TokenService
	provider  domain.Provider
	accountID string
}

// NewAuthClient wraps base with token injection and the single 401
// refresh-and-retry.
func NewAuthClient(base *http.Client, tokens *auth.TokenService, provider domain.Provider, accountID string) *http.Client {
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: &refreshTransport{
			base:      transport,
			tokens:    tokens,
			provider:  provider,
			accountID: accountID,
		},
		Timeout: base.Timeout,
	}
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.tokens.Token(req.Context(), t.provider, t.accountID)
	if err != nil {
		return nil, err
	}

	resp, err := t.roundTripWithToken(req, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh, one retry. Requests without a rewindable body cannot be
	// replayed and keep the 401.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	refreshed, rerr := t.tokens.Refresh(req.Context(), t.provider, t.accountID, tok.AccessToken)
	if rerr != nil {
		return resp, nil
	}
	resp.Body.Close()

	return t.roundTripWithToken(req, refreshed.AccessToken)
}

func (t *refreshTransport) roundTripWithToken(req *http.Request, accessToken string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+accessToken)
	return t.base.RoundTrip(clone)
}
