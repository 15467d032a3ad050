package domain

import (
	"time"
)

// =============================================================================
// Cached Mail Entities
// =============================================================================
//
// EmailDocument and DraftDocument are the locally cached copies of the remote
// records. They are the base that pending modifiers fold over to produce the
// state shown to the user.

// Provider identifies a remote mail backend.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// EntityType discriminates between the mutable record kinds.
type EntityType string

const (
	EntityEmail EntityType = "email"
	EntityDraft EntityType = "draft"
)

// Well-known folders. Custom folders use the provider folder/label id.
const (
	FolderInbox   = "inbox"
	FolderArchive = "archive"
	FolderTrash   = "trash"
)

// EmailDocument is the cached copy of a remote message.
type EmailDocument struct {
	ID        string    `json:"id" bson:"_id"`
	AccountID string    `json:"account_id" bson:"account_id"`
	Provider  Provider  `json:"provider" bson:"provider"`
	ThreadID  string    `json:"thread_id,omitempty" bson:"thread_id,omitempty"`

	Subject  string `json:"subject" bson:"subject"`
	BodyText string `json:"body_text,omitempty" bson:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty" bson:"body_html,omitempty"`

	Read    bool     `json:"read" bson:"read"`
	Starred bool     `json:"starred" bson:"starred"`
	Labels  []string `json:"labels,omitempty" bson:"labels,omitempty"`
	Folder  string   `json:"folder" bson:"folder"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy. Modifier transforms operate on copies so the
// cached base is never mutated in place.
func (e EmailDocument) Clone() EmailDocument {
	c := e
	if e.Labels != nil {
		c.Labels = make([]string, len(e.Labels))
		copy(c.Labels, e.Labels)
	}
	return c
}

// HasLabel reports whether the document carries the given label.
func (e *EmailDocument) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AddLabel adds a label if not present.
func (e *EmailDocument) AddLabel(label string) {
	if !e.HasLabel(label) {
		e.Labels = append(e.Labels, label)
	}
}

// RemoveLabel removes a label if present.
func (e *EmailDocument) RemoveLabel(label string) {
	out := e.Labels[:0]
	for _, l := range e.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	e.Labels = out
}

// DraftDocument is the cached copy of a draft message.
type DraftDocument struct {
	ID        string   `json:"id" bson:"_id"`
	AccountID string   `json:"account_id" bson:"account_id"`
	Provider  Provider `json:"provider" bson:"provider"`

	Subject  string   `json:"subject" bson:"subject"`
	BodyText string   `json:"body_text,omitempty" bson:"body_text,omitempty"`
	BodyHTML string   `json:"body_html,omitempty" bson:"body_html,omitempty"`
	To       []string `json:"to,omitempty" bson:"to,omitempty"`
	Cc       []string `json:"cc,omitempty" bson:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty" bson:"bcc,omitempty"`

	Deleted bool `json:"deleted,omitempty" bson:"deleted,omitempty"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy of the draft.
func (d DraftDocument) Clone() DraftDocument {
	c := d
	c.To = append([]string(nil), d.To...)
	c.Cc = append([]string(nil), d.Cc...)
	c.Bcc = append([]string(nil), d.Bcc...)
	return c
}
