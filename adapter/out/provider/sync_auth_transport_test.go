package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"mailsync/adapter/out/persistence"
	"mailsync/core/domain"
	"mailsync/core/service/auth"
	"mailsync/pkg/apperr"
)

func newTransportHarness(t *testing.T, tokenURL string, stored *oauth2.Token) *auth.TokenService {
	t.Helper()
	store := persistence.NewMemoryTokenStore()
	if stored != nil {
		if err := store.Save(context.Background(), domain.ProviderGmail, "acct-1", stored); err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}
	configs := map[domain.Provider]*oauth2.Config{
		domain.ProviderGmail: {
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
	return auth.NewTokenService(store, configs, zerolog.Nop())
}

func TestAuthClientInjectsBearerToken(t *testing.T) {
	var got string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	tokens := newTransportHarness(t, "http://unused.invalid/token", &oauth2.Token{
		AccessToken: "valid-token",
		Expiry:      time.Now().Add(time.Hour),
	})
	client := NewAuthClient(&http.Client{}, tokens, domain.ProviderGmail, "acct-1")

	resp, err := client.Get(backend.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got != "Bearer valid-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer valid-token")
	}
}

func TestAuthClientRefreshesOn401(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`)
	}))
	defer tokenSrv.Close()

	var calls []string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		calls = append(calls, authz)
		if authz != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	// Token looks unexpired locally but the backend rejects it.
	tokens := newTransportHarness(t, tokenSrv.URL, &oauth2.Token{
		AccessToken:  "revoked-token",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(time.Hour),
	})
	client := NewAuthClient(&http.Client{}, tokens, domain.ProviderGmail, "acct-1")

	resp, err := client.Post(backend.URL, "application/json", strings.NewReader(`{"isRead":true}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(calls) != 2 {
		t.Fatalf("backend saw %d calls, want 2: %v", len(calls), calls)
	}
	if calls[1] != "Bearer fresh-token" {
		t.Errorf("retry Authorization = %q, want refreshed token", calls[1])
	}

	// The refreshed token is persisted for the next mailbox call.
	tok, err := tokens.Token(context.Background(), domain.ProviderGmail, "acct-1")
	if err != nil {
		t.Fatalf("token after refresh: %v", err)
	}
	if tok.AccessToken != "fresh-token" {
		t.Errorf("stored token = %q, want fresh-token", tok.AccessToken)
	}
}

func TestAuthClientKeeps401WhenRefreshFails(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenSrv.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	tokens := newTransportHarness(t, tokenSrv.URL, &oauth2.Token{
		AccessToken:  "revoked-token",
		RefreshToken: "dead",
		Expiry:       time.Now().Add(time.Hour),
	})
	client := NewAuthClient(&http.Client{}, tokens, domain.ProviderGmail, "acct-1")

	resp, err := client.Get(backend.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want the original 401", resp.StatusCode)
	}
}

func TestAuthClientMissingTokenIsAuthError(t *testing.T) {
	tokens := newTransportHarness(t, "http://unused.invalid/token", nil)
	client := NewAuthClient(&http.Client{}, tokens, domain.ProviderGmail, "acct-1")

	_, err := client.Get("http://unused.invalid/")
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	if !apperr.IsAuth(err) {
		t.Errorf("error = %v, want auth required", err)
	}
}
