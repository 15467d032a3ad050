// Package outlook implements the mailbox port against the Microsoft Graph API.
package outlook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
	"mailsync/pkg/httputil"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Graph accepts well-known folder names as move destinations.
const (
	folderInbox   = "inbox"
	folderArchive = "archive"
	folderTrash   = "deleteditems"
)

// Mailbox is a per-account Graph client implementing out.MailboxPort.
type Mailbox struct {
	client    *http.Client
	accountID string
	baseURL   string

	mu        sync.Mutex
	folderIDs map[string]string // well-known name -> folder id
}

var _ out.MailboxPort = (*Mailbox)(nil)

// NewMailbox builds a mailbox over an already-authenticated HTTP client.
func NewMailbox(client *http.Client, accountID string) *Mailbox {
	return &Mailbox{
		client:    client,
		accountID: accountID,
		baseURL:   graphBaseURL,
		folderIDs: make(map[string]string),
	}
}

func (m *Mailbox) Provider() domain.Provider { return domain.ProviderOutlook }
func (m *Mailbox) AccountID() string         { return m.accountID }

// =============================================================================
// Messages
// =============================================================================

type graphMessage struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	Subject        string   `json:"subject"`
	BodyPreview    string   `json:"bodyPreview"`
	IsRead         bool     `json:"isRead"`
	Categories     []string `json:"categories"`
	ParentFolderID string   `json:"parentFolderId"`
	Body           *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Flag *struct {
		FlagStatus string `json:"flagStatus"`
	} `json:"flag"`
}

func (m *Mailbox) GetMessage(ctx context.Context, externalID string) (*domain.EmailDocument, error) {
	var msg graphMessage
	path := fmt.Sprintf("/me/messages/%s?$select=id,conversationId,subject,bodyPreview,body,isRead,flag,categories,parentFolderId", externalID)
	if err := m.get(ctx, path, &msg); err != nil {
		return nil, err
	}
	return m.toDocument(ctx, &msg), nil
}

func (m *Mailbox) MarkRead(ctx context.Context, externalID string) error {
	return m.patch(ctx, "/me/messages/"+externalID, map[string]any{"isRead": true})
}

func (m *Mailbox) MarkUnread(ctx context.Context, externalID string) error {
	return m.patch(ctx, "/me/messages/"+externalID, map[string]any{"isRead": false})
}

func (m *Mailbox) Archive(ctx context.Context, externalID string) error {
	return m.move(ctx, externalID, folderArchive)
}

func (m *Mailbox) Unarchive(ctx context.Context, externalID string) error {
	return m.move(ctx, externalID, folderInbox)
}

func (m *Mailbox) Trash(ctx context.Context, externalID string) error {
	return m.move(ctx, externalID, folderTrash)
}

func (m *Mailbox) Untrash(ctx context.Context, externalID string) error {
	return m.move(ctx, externalID, folderInbox)
}

func (m *Mailbox) Move(ctx context.Context, externalID, targetFolder string) error {
	switch targetFolder {
	case domain.FolderInbox:
		targetFolder = folderInbox
	case domain.FolderArchive:
		targetFolder = folderArchive
	case domain.FolderTrash:
		targetFolder = folderTrash
	}
	return m.move(ctx, externalID, targetFolder)
}

func (m *Mailbox) Star(ctx context.Context, externalID string) error {
	return m.patch(ctx, "/me/messages/"+externalID, map[string]any{
		"flag": map[string]any{"flagStatus": "flagged"},
	})
}

func (m *Mailbox) Unstar(ctx context.Context, externalID string) error {
	return m.patch(ctx, "/me/messages/"+externalID, map[string]any{
		"flag": map[string]any{"flagStatus": "notFlagged"},
	})
}

// move relocates the message and ignores the moved copy Graph returns. The
// returned message carries a new id, which callers track separately during
// sync pulls.
func (m *Mailbox) move(ctx context.Context, externalID, destinationID string) error {
	body := map[string]any{"destinationId": destinationID}
	return m.post(ctx, "/me/messages/"+externalID+"/move", body, nil)
}

// =============================================================================
// Drafts
// =============================================================================

func (m *Mailbox) UpsertDraft(ctx context.Context, draft *domain.DraftDocument) (string, error) {
	payload := draftPayload(draft)

	err := m.patch(ctx, "/me/messages/"+draft.ID, payload)
	if err == nil {
		return draft.ID, nil
	}
	if app := apperr.AsAppError(err); app == nil || app.Code != apperr.CodeNotFound {
		return "", err
	}

	var created graphMessage
	if err := m.post(ctx, "/me/messages", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (m *Mailbox) DeleteDraft(ctx context.Context, draftID string) error {
	err := m.delete(ctx, "/me/messages/"+draftID)
	if app := apperr.AsAppError(err); app != nil && app.Code == apperr.CodeNotFound {
		return nil
	}
	return err
}

func draftPayload(d *domain.DraftDocument) map[string]any {
	contentType, content := "text", d.BodyText
	if d.BodyHTML != "" {
		contentType, content = "html", d.BodyHTML
	}
	payload := map[string]any{
		"subject": d.Subject,
		"body": map[string]any{
			"contentType": contentType,
			"content":     content,
		},
	}
	if len(d.To) > 0 {
		payload["toRecipients"] = recipients(d.To)
	}
	if len(d.Cc) > 0 {
		payload["ccRecipients"] = recipients(d.Cc)
	}
	if len(d.Bcc) > 0 {
		payload["bccRecipients"] = recipients(d.Bcc)
	}
	return payload
}

func recipients(addrs []string) []map[string]any {
	out := make([]map[string]any, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, map[string]any{
			"emailAddress": map[string]any{"address": a},
		})
	}
	return out
}

// =============================================================================
// Mapping
// =============================================================================

func (m *Mailbox) toDocument(ctx context.Context, msg *graphMessage) *domain.EmailDocument {
	doc := &domain.EmailDocument{
		ID:        msg.ID,
		AccountID: m.accountID,
		Provider:  domain.ProviderOutlook,
		ThreadID:  msg.ConversationID,
		Subject:   msg.Subject,
		BodyText:  msg.BodyPreview,
		Read:      msg.IsRead,
		Labels:    msg.Categories,
		Folder:    m.resolveFolder(ctx, msg.ParentFolderID),
	}
	if msg.Body != nil {
		if msg.Body.ContentType == "html" {
			doc.BodyHTML = msg.Body.Content
		} else {
			doc.BodyText = msg.Body.Content
		}
	}
	if msg.Flag != nil && msg.Flag.FlagStatus == "flagged" {
		doc.Starred = true
	}
	return doc
}

// resolveFolder matches a parent folder id against the well-known folders,
// resolving and caching their ids on first use. Unmatched folders keep the
// raw Graph folder id.
func (m *Mailbox) resolveFolder(ctx context.Context, parentFolderID string) string {
	wellKnown := map[string]string{
		folderInbox:   domain.FolderInbox,
		folderArchive: domain.FolderArchive,
		folderTrash:   domain.FolderTrash,
	}
	for name, folder := range wellKnown {
		id, err := m.folderID(ctx, name)
		if err == nil && id == parentFolderID {
			return folder
		}
	}
	return parentFolderID
}

func (m *Mailbox) folderID(ctx context.Context, wellKnownName string) (string, error) {
	m.mu.Lock()
	if id, ok := m.folderIDs[wellKnownName]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	var folder struct {
		ID string `json:"id"`
	}
	if err := m.get(ctx, "/me/mailFolders/"+wellKnownName, &folder); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.folderIDs[wellKnownName] = folder.ID
	m.mu.Unlock()
	return folder.ID, nil
}

// =============================================================================
// HTTP helpers
// =============================================================================

func (m *Mailbox) get(ctx context.Context, path string, result any) error {
	return m.do(ctx, http.MethodGet, path, nil, result)
}

func (m *Mailbox) post(ctx context.Context, path string, body, result any) error {
	return m.do(ctx, http.MethodPost, path, body, result)
}

func (m *Mailbox) patch(ctx context.Context, path string, body any) error {
	return m.do(ctx, http.MethodPatch, path, body, nil)
}

func (m *Mailbox) delete(ctx context.Context, path string) error {
	return m.do(ctx, http.MethodDelete, path, nil, nil)
}

func (m *Mailbox) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.BadPayload("encode graph request: " + err.Error())
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, m.baseURL+path, reader)
	if err != nil {
		return apperr.Transient("outlook", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httputil.DoWithContext(ctx, m.client, req)
	if err != nil {
		return apperr.Transient("outlook", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus("outlook", m.accountID, resp.StatusCode, raw)
	}
	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return apperr.BadPayload("decode graph response: " + err.Error())
		}
	}
	return nil
}
