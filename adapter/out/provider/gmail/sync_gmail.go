// Package gmail implements the mailbox port against the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// Gmail models mutable message state as labels. Read, starred and the
// well-known folders all map onto label add/remove on Users.Messages.Modify.
const (
	labelUnread  = "UNREAD"
	labelStarred = "STARRED"
	labelInbox   = "INBOX"
	labelTrash   = "TRASH"
)

// Mailbox is a per-account Gmail client implementing out.MailboxPort.
type Mailbox struct {
	service   *gmail.Service
	accountID string
}

var _ out.MailboxPort = (*Mailbox)(nil)

// NewMailbox builds a mailbox over an already-authenticated HTTP client.
// Extra options override API defaults, e.g. the endpoint.
func NewMailbox(ctx context.Context, client *http.Client, accountID string, opts ...option.ClientOption) (*Mailbox, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Transient("gmail", err)
	}
	return &Mailbox{service: service, accountID: accountID}, nil
}

func (m *Mailbox) Provider() domain.Provider { return domain.ProviderGmail }
func (m *Mailbox) AccountID() string         { return m.accountID }

// =============================================================================
// Messages
// =============================================================================

func (m *Mailbox) GetMessage(ctx context.Context, externalID string) (*domain.EmailDocument, error) {
	msg, err := m.service.Users.Messages.Get("me", externalID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, m.classify(err)
	}
	return m.toDocument(msg), nil
}

func (m *Mailbox) MarkRead(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, nil, []string{labelUnread})
}

func (m *Mailbox) MarkUnread(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, []string{labelUnread}, nil)
}

func (m *Mailbox) Archive(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, nil, []string{labelInbox})
}

func (m *Mailbox) Unarchive(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, []string{labelInbox}, nil)
}

func (m *Mailbox) Trash(ctx context.Context, externalID string) error {
	_, err := m.service.Users.Messages.Trash("me", externalID).Context(ctx).Do()
	return m.classify(err)
}

func (m *Mailbox) Untrash(ctx context.Context, externalID string) error {
	_, err := m.service.Users.Messages.Untrash("me", externalID).Context(ctx).Do()
	return m.classify(err)
}

// Move maps well-known folders onto their system labels and treats anything
// else as a user label id. The source folder label is dropped so the message
// does not appear in both places.
func (m *Mailbox) Move(ctx context.Context, externalID, targetFolder string) error {
	switch targetFolder {
	case domain.FolderInbox:
		return m.modify(ctx, externalID, []string{labelInbox}, nil)
	case domain.FolderArchive:
		return m.modify(ctx, externalID, nil, []string{labelInbox})
	case domain.FolderTrash:
		return m.Trash(ctx, externalID)
	default:
		return m.modify(ctx, externalID, []string{targetFolder}, []string{labelInbox})
	}
}

func (m *Mailbox) Star(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, []string{labelStarred}, nil)
}

func (m *Mailbox) Unstar(ctx context.Context, externalID string) error {
	return m.modify(ctx, externalID, nil, []string{labelStarred})
}

func (m *Mailbox) modify(ctx context.Context, externalID string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	_, err := m.service.Users.Messages.Modify("me", externalID, req).Context(ctx).Do()
	return m.classify(err)
}

// =============================================================================
// Drafts
// =============================================================================

func (m *Mailbox) UpsertDraft(ctx context.Context, draft *domain.DraftDocument) (string, error) {
	payload := &gmail.Draft{
		Message: &gmail.Message{Raw: encodeDraftRaw(draft)},
	}

	updated, err := m.service.Users.Drafts.Update("me", draft.ID, payload).Context(ctx).Do()
	if err == nil {
		return updated.Id, nil
	}
	if !isNotFound(err) {
		return "", m.classify(err)
	}

	created, err := m.service.Users.Drafts.Create("me", payload).Context(ctx).Do()
	if err != nil {
		return "", m.classify(err)
	}
	return created.Id, nil
}

func (m *Mailbox) DeleteDraft(ctx context.Context, draftID string) error {
	err := m.service.Users.Drafts.Delete("me", draftID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return m.classify(err)
	}
	return nil
}

// encodeDraftRaw renders the draft as a base64url RFC 2822 message, which is
// the only shape the drafts endpoint accepts.
func encodeDraftRaw(d *domain.DraftDocument) string {
	var b strings.Builder
	if len(d.To) > 0 {
		fmt.Fprintf(&b, "To: %s\r\n", strings.Join(d.To, ", "))
	}
	if len(d.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(d.Cc, ", "))
	}
	if len(d.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\r\n", strings.Join(d.Bcc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", d.Subject)
	if d.BodyHTML != "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(d.BodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(d.BodyText)
	}
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// =============================================================================
// Mapping
// =============================================================================

func (m *Mailbox) toDocument(msg *gmail.Message) *domain.EmailDocument {
	doc := &domain.EmailDocument{
		ID:        msg.Id,
		AccountID: m.accountID,
		Provider:  domain.ProviderGmail,
		ThreadID:  msg.ThreadId,
		BodyText:  msg.Snippet,
		Read:      true,
		Folder:    domain.FolderArchive,
	}
	for _, label := range msg.LabelIds {
		switch label {
		case labelUnread:
			doc.Read = false
		case labelStarred:
			doc.Starred = true
		case labelInbox:
			doc.Folder = domain.FolderInbox
		case labelTrash:
			doc.Folder = domain.FolderTrash
		}
		doc.Labels = append(doc.Labels, label)
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h.Name == "Subject" {
				doc.Subject = h.Value
				break
			}
		}
		extractBodies(msg.Payload, doc)
	}
	return doc
}

func extractBodies(part *gmail.MessagePart, doc *domain.EmailDocument) {
	if part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/plain":
				doc.BodyText = string(decoded)
			case "text/html":
				doc.BodyHTML = string(decoded)
			}
		}
	}
	for _, child := range part.Parts {
		extractBodies(child, doc)
	}
}

// =============================================================================
// Error classification
// =============================================================================

func (m *Mailbox) classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return apperr.FromStatus("gmail", m.accountID, gerr.Code, []byte(gerr.Body))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Transient("gmail", err)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
