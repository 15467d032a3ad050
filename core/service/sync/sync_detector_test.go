package sync

import (
	"testing"

	"mailsync/core/domain"
)

func baseDoc() domain.EmailDocument {
	return domain.EmailDocument{
		ID:        "msg-1",
		AccountID: "acc-1",
		Provider:  domain.ProviderGmail,
		Subject:   "quarterly numbers",
		BodyText:  "draft attached",
		Read:      false,
		Starred:   false,
		Labels:    []string{"INBOX", "finance"},
		Folder:    domain.FolderInbox,
	}
}

func TestDetectNoChangesNoConflict(t *testing.T) {
	b := baseDoc()
	if got := Detect(b, b.Clone(), b.Clone()); got != nil {
		t.Fatalf("conflict = %+v, want nil", got)
	}
}

func TestDetectOneSidedChangeIsNotAConflict(t *testing.T) {
	b := baseDoc()

	// Local-only change.
	local := b.Clone()
	local.Read = true
	if got := Detect(b, local, b.Clone()); got != nil {
		t.Fatalf("local-only change flagged: %+v", got)
	}

	// Server-only change.
	server := b.Clone()
	server.Starred = true
	if got := Detect(b, b.Clone(), server); got != nil {
		t.Fatalf("server-only change flagged: %+v", got)
	}
}

func TestDetectBothSidesSameChangeIsNotAConflict(t *testing.T) {
	b := baseDoc()
	local := b.Clone()
	local.Read = true
	server := b.Clone()
	server.Read = true

	if got := Detect(b, local, server); got != nil {
		t.Fatalf("agreeing changes flagged: %+v", got)
	}
}

func TestDetectDivergingMetadata(t *testing.T) {
	b := baseDoc()
	b.Read = true
	local := b.Clone()
	local.Read = false
	server := b.Clone()
	server.Read = true

	// base read=true, local unread, server read: only local moved. Not a
	// conflict.
	if got := Detect(b, local, server); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}

	// Now both sides moved starred in opposite directions from base.
	b2 := baseDoc()
	l2 := b2.Clone()
	l2.Starred = true
	s2 := b2.Clone()
	s2.Starred = true
	// Same direction: no conflict.
	if got := Detect(b2, l2, s2); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestDetectServerContentEditIsAlwaysFlagged(t *testing.T) {
	// Nothing edits subject or body locally, so local equals base on
	// content. A server-side edit while work is queued still conflicts.
	b := baseDoc()
	server := b.Clone()
	server.Subject = "quarterly numbers FINAL"

	got := Detect(b, b.Clone(), server)
	if got == nil {
		t.Fatal("server content edit not flagged")
	}
	if len(got.ConflictingFields) != 1 || got.ConflictingFields[0] != FieldSubject {
		t.Errorf("fields = %v, want [subject]", got.ConflictingFields)
	}
	if !got.HasType(domain.ConflictContent) {
		t.Errorf("types = %v, want content", got.Types)
	}
}

func TestDetectContentConflict(t *testing.T) {
	b := baseDoc()
	local := b.Clone()
	local.Subject = "quarterly numbers v2"
	server := b.Clone()
	server.Subject = "quarterly numbers FINAL"

	got := Detect(b, local, server)
	if got == nil {
		t.Fatal("diverging subjects not flagged")
	}
	if !got.HasType(domain.ConflictContent) {
		t.Errorf("types = %v, want content", got.Types)
	}
	if len(got.ConflictingFields) != 1 || got.ConflictingFields[0] != FieldSubject {
		t.Errorf("fields = %v, want [subject]", got.ConflictingFields)
	}
	if got.LocalVersion.Subject != "quarterly numbers v2" || got.ServerVersion.Subject != "quarterly numbers FINAL" {
		t.Error("conflict does not carry both versions")
	}
}

func TestDetectLabelSetIgnoresOrder(t *testing.T) {
	b := baseDoc()
	local := b.Clone()
	local.Labels = []string{"finance", "INBOX"} // same set, reordered
	server := b.Clone()
	server.Labels = []string{"INBOX", "finance", "urgent"}

	// Local set equals base set, so only the server moved.
	if got := Detect(b, local, server); got != nil {
		t.Fatalf("reordered labels flagged: %+v", got)
	}
}

func TestDetectLabelConflict(t *testing.T) {
	b := baseDoc()
	local := b.Clone()
	local.Labels = []string{"INBOX"}
	server := b.Clone()
	server.Labels = []string{"INBOX", "finance", "urgent"}

	got := Detect(b, local, server)
	if got == nil {
		t.Fatal("diverging label sets not flagged")
	}
	if !got.HasType(domain.ConflictLabels) {
		t.Errorf("types = %v, want labels", got.Types)
	}
}

func TestDetectMultipleTypes(t *testing.T) {
	b := baseDoc()
	local := b.Clone()
	local.Subject = "local subject"
	local.Read = true
	server := b.Clone()
	server.Subject = "server subject"
	server.Read = true

	// Subject diverges, read agrees.
	got := Detect(b, local, server)
	if got == nil {
		t.Fatal("expected conflict")
	}
	if got.HasType(domain.ConflictMetadata) {
		t.Error("agreeing read change flagged as metadata conflict")
	}
	if !got.HasType(domain.ConflictContent) {
		t.Error("content conflict missing")
	}
}
