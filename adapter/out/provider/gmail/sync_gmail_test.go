package gmail

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"google.golang.org/api/option"

	"mailsync/core/domain"
	"mailsync/pkg/apperr"
)

type capturedCall struct {
	Method string
	Path   string
	Body   map[string]any
}

type apiRecorder struct {
	mu      sync.Mutex
	calls   []capturedCall
	handler http.HandlerFunc
}

func (r *apiRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	call := capturedCall{Method: req.Method, Path: req.URL.Path}
	if raw, _ := io.ReadAll(req.Body); len(raw) > 0 {
		json.Unmarshal(raw, &call.Body)
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	r.handler(w, req)
}

func (r *apiRecorder) Calls() []capturedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedCall(nil), r.calls...)
}

func newTestMailbox(t *testing.T, handler http.HandlerFunc) (*Mailbox, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{handler: handler}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	m, err := NewMailbox(context.Background(), srv.Client(), "acc-1", option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewMailbox: %v", err)
	}
	return m, rec
}

func labelIDs(body map[string]any, key string) []string {
	raw, _ := body[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestArchiveRemovesInboxLabel(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	if err := m.Archive(context.Background(), "msg-1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Method != http.MethodPost || !strings.HasSuffix(calls[0].Path, "/users/me/messages/msg-1/modify") {
		t.Errorf("request = %s %s, want modify call", calls[0].Method, calls[0].Path)
	}
	if got := labelIDs(calls[0].Body, "removeLabelIds"); len(got) != 1 || got[0] != labelInbox {
		t.Errorf("removeLabelIds = %v, want [INBOX]", got)
	}
	if got := labelIDs(calls[0].Body, "addLabelIds"); len(got) != 0 {
		t.Errorf("addLabelIds = %v, want empty", got)
	}
}

func TestMarkReadRemovesUnreadLabel(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	if err := m.MarkRead(context.Background(), "msg-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if got := labelIDs(rec.Calls()[0].Body, "removeLabelIds"); len(got) != 1 || got[0] != labelUnread {
		t.Errorf("removeLabelIds = %v, want [UNREAD]", got)
	}
}

func TestStarAddsStarredLabel(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	if err := m.Star(context.Background(), "msg-1"); err != nil {
		t.Fatalf("Star: %v", err)
	}

	if got := labelIDs(rec.Calls()[0].Body, "addLabelIds"); len(got) != 1 || got[0] != labelStarred {
		t.Errorf("addLabelIds = %v, want [STARRED]", got)
	}
}

func TestMoveToUserLabelDropsInbox(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	if err := m.Move(context.Background(), "msg-1", "Label_42"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	body := rec.Calls()[0].Body
	if got := labelIDs(body, "addLabelIds"); len(got) != 1 || got[0] != "Label_42" {
		t.Errorf("addLabelIds = %v, want [Label_42]", got)
	}
	if got := labelIDs(body, "removeLabelIds"); len(got) != 1 || got[0] != labelInbox {
		t.Errorf("removeLabelIds = %v, want [INBOX]", got)
	}
}

func TestUpsertDraftCreatesWhenMissing(t *testing.T) {
	m, rec := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"Draft not found"}}`))
			return
		}
		w.Write([]byte(`{"id":"draft-server"}`))
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
	if id != "draft-server" {
		t.Errorf("id = %q, want draft-server", id)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want update then create", len(calls))
	}
	if calls[1].Method != http.MethodPost || !strings.HasSuffix(calls[1].Path, "/users/me/drafts") {
		t.Errorf("second call = %s %s, want drafts create", calls[1].Method, calls[1].Path)
	}

	msg, _ := calls[1].Body["message"].(map[string]any)
	raw, _ := msg["raw"].(string)
	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw not base64url: %v", err)
	}
	rfc := string(decoded)
	if !strings.Contains(rfc, "Subject: hello\r\n") || !strings.Contains(rfc, "To: a@example.com\r\n") {
		t.Errorf("rfc2822 payload missing headers:\n%s", rfc)
	}
	if !strings.Contains(rfc, "typed offline") {
		t.Error("rfc2822 payload missing body")
	}
}

func TestDeleteDraftToleratesMissing(t *testing.T) {
	m, _ := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"gone"}}`))
	})

	if err := m.DeleteDraft(context.Background(), "draft-1"); err != nil {
		t.Fatalf("DeleteDraft on missing draft: %v", err)
	}
}

func TestServerErrorStaysRetryable(t *testing.T) {
	m, _ := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
	})

	err := m.Archive(context.Background(), "msg-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperr.IsRetryable(err) {
		t.Errorf("503 should be retryable, got %v", err)
	}
}
