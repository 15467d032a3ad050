package outlook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"mailsync/core/domain"
	"mailsync/pkg/apperr"
)

type capturedCall struct {
	Method string
	Path   string
	Body   map[string]any
}

type graphRecorder struct {
	mu      sync.Mutex
	calls   []capturedCall
	handler http.HandlerFunc
}

func (r *graphRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	call := capturedCall{Method: req.Method, Path: req.URL.Path}
	if raw, _ := io.ReadAll(req.Body); len(raw) > 0 {
		json.Unmarshal(raw, &call.Body)
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	r.handler(w, req)
}

func (r *graphRecorder) Calls() []capturedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedCall(nil), r.calls...)
}

func newTestMailbox(t *testing.T, handler http.HandlerFunc) (*Mailbox, *graphRecorder) {
	t.Helper()
	rec := &graphRecorder{handler: handler}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	m := NewMailbox(srv.Client(), "acc-1")
	m.baseURL = srv.URL
	return m, rec
}

func graphError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message},
	})
}

func TestArchiveMovesToWellKnownFolder(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"moved-copy"}`))
	})

	if err := m.Archive(context.Background(), "msg-1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Method != http.MethodPost || calls[0].Path != "/me/messages/msg-1/move" {
		t.Errorf("request = %s %s, want POST /me/messages/msg-1/move", calls[0].Method, calls[0].Path)
	}
	if calls[0].Body["destinationId"] != "archive" {
		t.Errorf("destinationId = %v, want archive", calls[0].Body["destinationId"])
	}
}

func TestMarkReadPatchesIsRead(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := m.MarkRead(context.Background(), "msg-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Method != http.MethodPatch || calls[0].Path != "/me/messages/msg-1" {
		t.Fatalf("calls = %+v, want single PATCH /me/messages/msg-1", calls)
	}
	if calls[0].Body["isRead"] != true {
		t.Errorf("isRead = %v, want true", calls[0].Body["isRead"])
	}
}

func TestStarSetsFlagStatus(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := m.Star(context.Background(), "msg-1"); err != nil {
		t.Fatalf("Star: %v", err)
	}

	flag, ok := rec.Calls()[0].Body["flag"].(map[string]any)
	if !ok || flag["flagStatus"] != "flagged" {
		t.Errorf("flag = %v, want flagStatus flagged", rec.Calls()[0].Body["flag"])
	}
}

func TestUpsertDraftCreatesWhenMissing(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			graphError(w, http.StatusNotFound, "The specified object was not found in the store.")
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"AAMk-new"}`))
	})

	id, err := m.UpsertDraft(context.Background(), &domain.DraftDocument{
		ID:       "draft-local",
		Subject:  "hello",
		BodyText: "typed offline",
		To:       []string{"a@example.com"},
	})
	if err != nil {
		t.Fatalf("UpsertDraft: %v", err)
	}
	if id != "AAMk-new" {
		t.Errorf("id = %q, want AAMk-new", id)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want PATCH then POST", len(calls))
	}
	if calls[0].Method != http.MethodPatch || calls[0].Path != "/me/messages/draft-local" {
		t.Errorf("first call = %s %s", calls[0].Method, calls[0].Path)
	}
	if calls[1].Method != http.MethodPost || calls[1].Path != "/me/messages" {
		t.Errorf("second call = %s %s, want POST /me/messages", calls[1].Method, calls[1].Path)
	}
	if calls[1].Body["subject"] != "hello" {
		t.Errorf("created subject = %v", calls[1].Body["subject"])
	}
}

func TestUpsertDraftSurfacesOtherErrors(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		graphError(w, http.StatusBadRequest, "malformed request")
	})

	_, err := m.UpsertDraft(context.Background(), &domain.DraftDocument{ID: "draft-1", Subject: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.AsAppError(err).Code != apperr.CodePermanent {
		t.Errorf("code = %s, want permanent", apperr.AsAppError(err).Code)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("calls = %d, want no create after a non-404 failure", len(rec.Calls()))
	}
}

func TestDeleteDraftToleratesMissing(t *testing.T) {
	m, _ := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		graphError(w, http.StatusNotFound, "gone")
	})

	if err := m.DeleteDraft(context.Background(), "draft-1"); err != nil {
		t.Fatalf("DeleteDraft on missing draft: %v", err)
	}
}

func TestRateLimitClassification(t *testing.T) {
	m, _ := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		graphError(w, http.StatusTooManyRequests, "throttled")
	})

	err := m.MarkRead(context.Background(), "msg-1")
	if err == nil {
		t.Fatal("expected error")
	}
	app := apperr.AsAppError(err)
	if app.Code != apperr.CodeRateLimited {
		t.Errorf("code = %s, want rate limited", app.Code)
	}
	if !apperr.IsRetryable(err) {
		t.Error("429 should stay retryable")
	}
}
