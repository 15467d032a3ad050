package modifier

import (
	"context"
	"testing"

	"mailsync/core/domain"
	"mailsync/core/port/out"
)

func baseEmail() domain.EmailDocument {
	return domain.EmailDocument{
		ID:        "msg-1",
		AccountID: "acc-1",
		Provider:  domain.ProviderGmail,
		Subject:   "hello",
		Read:      false,
		Starred:   false,
		Labels:    []string{"INBOX", "work"},
		Folder:    domain.FolderInbox,
	}
}

func TestModifyIsPureAndIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		mod   EmailModifier
		check func(t *testing.T, got domain.EmailDocument)
	}{
		{
			name: "archive moves to archive folder",
			mod:  NewArchive("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox, []string{"INBOX"}),
			check: func(t *testing.T, got domain.EmailDocument) {
				if got.Folder != domain.FolderArchive {
					t.Errorf("folder = %q, want archive", got.Folder)
				}
			},
		},
		{
			name: "unarchive restores previous folder",
			mod:  NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, "custom", []string{"custom-label"}),
			check: func(t *testing.T, got domain.EmailDocument) {
				if got.Folder != "custom" {
					t.Errorf("folder = %q, want custom", got.Folder)
				}
				if len(got.Labels) != 1 || got.Labels[0] != "custom-label" {
					t.Errorf("labels = %v, want [custom-label]", got.Labels)
				}
			},
		},
		{
			name: "unarchive without prev folder falls back to inbox",
			mod:  NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, "", nil),
			check: func(t *testing.T, got domain.EmailDocument) {
				if got.Folder != domain.FolderInbox {
					t.Errorf("folder = %q, want inbox", got.Folder)
				}
			},
		},
		{
			name: "delete moves to trash",
			mod:  NewDelete("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox),
			check: func(t *testing.T, got domain.EmailDocument) {
				if got.Folder != domain.FolderTrash {
					t.Errorf("folder = %q, want trash", got.Folder)
				}
			},
		},
		{
			name: "mark read sets read",
			mod:  NewMarkRead("msg-1", "acc-1", domain.ProviderGmail),
			check: func(t *testing.T, got domain.EmailDocument) {
				if !got.Read {
					t.Error("read = false, want true")
				}
			},
		},
		{
			name: "star sets starred",
			mod:  NewStar("msg-1", "acc-1", domain.ProviderGmail),
			check: func(t *testing.T, got domain.EmailDocument) {
				if !got.Starred {
					t.Error("starred = false, want true")
				}
			},
		},
		{
			name: "move sets target folder",
			mod:  NewMove("msg-1", "acc-1", domain.ProviderGmail, domain.MovePayload{TargetFolder: "receipts"}),
			check: func(t *testing.T, got domain.EmailDocument) {
				if got.Folder != "receipts" {
					t.Errorf("folder = %q, want receipts", got.Folder)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseEmail()
			once := tt.mod.Modify(in)
			twice := tt.mod.Modify(once)
			tt.check(t, once)
			tt.check(t, twice)

			// Input must not be mutated.
			if in.Folder != domain.FolderInbox || in.Read || in.Starred {
				t.Errorf("input mutated: %+v", in)
			}
		})
	}
}

func TestFoldEmailOrderMatters(t *testing.T) {
	in := baseEmail()

	archive := NewArchive("msg-1", "acc-1", domain.ProviderGmail, in.Folder, in.Labels)
	del := NewDelete("msg-1", "acc-1", domain.ProviderGmail, in.Folder)

	got := FoldEmail(in, []Modifier{archive, del})
	if got.Folder != domain.FolderTrash {
		t.Errorf("archive then delete: folder = %q, want trash", got.Folder)
	}

	got = FoldEmail(in, []Modifier{del, archive})
	if got.Folder != domain.FolderArchive {
		t.Errorf("delete then archive: folder = %q, want archive", got.Folder)
	}
}

func TestFoldEmailCombinesIndependentFields(t *testing.T) {
	in := baseEmail()

	got := FoldEmail(in, []Modifier{
		NewMarkRead("msg-1", "acc-1", domain.ProviderGmail),
		NewStar("msg-1", "acc-1", domain.ProviderGmail),
		NewArchive("msg-1", "acc-1", domain.ProviderGmail, in.Folder, in.Labels),
	})

	if !got.Read || !got.Starred || got.Folder != domain.FolderArchive {
		t.Errorf("fold = read:%v starred:%v folder:%q, want true/true/archive", got.Read, got.Starred, got.Folder)
	}
	if in.Read || in.Starred || in.Folder != domain.FolderInbox {
		t.Errorf("base mutated: %+v", in)
	}
}

func TestFoldDraft(t *testing.T) {
	draft := domain.DraftDocument{
		ID:        "draft-1",
		AccountID: "acc-1",
		Provider:  domain.ProviderOutlook,
		Subject:   "old",
	}

	update := NewDraftUpdate("draft-1", "acc-1", domain.ProviderOutlook, domain.DraftUpdatePayload{
		Subject:  "new",
		BodyText: "body",
		To:       []string{"a@example.com"},
	})

	got := FoldDraft(draft, []Modifier{update})
	if got.Subject != "new" || got.BodyText != "body" || len(got.To) != 1 {
		t.Errorf("folded draft = %+v", got)
	}

	got = FoldDraft(draft, []Modifier{update, NewDraftDelete("draft-1", "acc-1", domain.ProviderOutlook)})
	if !got.Deleted {
		t.Error("deleted = false after draft delete")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	mods := []Modifier{
		NewArchive("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox, []string{"INBOX"}),
		NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, "custom", nil),
		NewDelete("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox),
		NewUndelete("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox),
		NewMarkRead("msg-1", "acc-1", domain.ProviderGmail),
		NewMarkUnread("msg-1", "acc-1", domain.ProviderGmail),
		NewMove("msg-1", "acc-1", domain.ProviderGmail, domain.MovePayload{TargetFolder: "receipts"}),
		NewStar("msg-1", "acc-1", domain.ProviderGmail),
		NewUnstar("msg-1", "acc-1", domain.ProviderGmail),
		NewDraftUpdate("draft-1", "acc-1", domain.ProviderOutlook, domain.DraftUpdatePayload{Subject: "s"}),
		NewDraftDelete("draft-1", "acc-1", domain.ProviderOutlook),
	}

	for _, m := range mods {
		rec, err := ToRecord(m)
		if err != nil {
			t.Fatalf("%s: ToRecord: %v", m.Type(), err)
		}
		if rec.Status != domain.ModifierStatusPending {
			t.Errorf("%s: status = %q, want pending", m.Type(), rec.Status)
		}
		if rec.MaxAttempts != domain.DefaultMaxAttempts {
			t.Errorf("%s: max attempts = %d", m.Type(), rec.MaxAttempts)
		}

		rebuilt, err := FromRecord(rec)
		if err != nil {
			t.Fatalf("%s: FromRecord: %v", m.Type(), err)
		}
		if rebuilt.ID() != m.ID() || rebuilt.Type() != m.Type() ||
			rebuilt.EntityID() != m.EntityID() || rebuilt.EntityType() != m.EntityType() ||
			rebuilt.AccountID() != m.AccountID() || rebuilt.Provider() != m.Provider() {
			t.Errorf("%s: rebuilt identity differs", m.Type())
		}
	}
}

func TestRebuiltModifierBehavesLikeOriginal(t *testing.T) {
	in := baseEmail()
	orig := NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, "custom", []string{"keep"})

	rec, err := ToRecord(orig)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := FromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}

	want := orig.Modify(in)
	got := rebuilt.(EmailModifier).Modify(in)
	if got.Folder != want.Folder || len(got.Labels) != len(want.Labels) {
		t.Errorf("rebuilt Modify = %+v, want %+v", got, want)
	}
}

func TestFromRecordRejectsUnknownType(t *testing.T) {
	_, err := FromRecord(&domain.ModifierRecord{ID: "x", Type: "explode"})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestFromRecordRejectsMoveWithoutTarget(t *testing.T) {
	_, err := FromRecord(&domain.ModifierRecord{
		ID:      "x",
		Type:    domain.ModifierMove,
		Payload: []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected error for move without target")
	}
}

// recordingMailbox captures Persist calls for assertion.
type recordingMailbox struct {
	calls []string
}

func (r *recordingMailbox) Provider() domain.Provider { return domain.ProviderGmail }
func (r *recordingMailbox) AccountID() string         { return "acc-1" }

func (r *recordingMailbox) GetMessage(ctx context.Context, id string) (*domain.EmailDocument, error) {
	r.calls = append(r.calls, "get:"+id)
	return nil, nil
}
func (r *recordingMailbox) MarkRead(ctx context.Context, id string) error {
	r.calls = append(r.calls, "read:"+id)
	return nil
}
func (r *recordingMailbox) MarkUnread(ctx context.Context, id string) error {
	r.calls = append(r.calls, "unread:"+id)
	return nil
}
func (r *recordingMailbox) Archive(ctx context.Context, id string) error {
	r.calls = append(r.calls, "archive:"+id)
	return nil
}
func (r *recordingMailbox) Unarchive(ctx context.Context, id string) error {
	r.calls = append(r.calls, "unarchive:"+id)
	return nil
}
func (r *recordingMailbox) Trash(ctx context.Context, id string) error {
	r.calls = append(r.calls, "trash:"+id)
	return nil
}
func (r *recordingMailbox) Untrash(ctx context.Context, id string) error {
	r.calls = append(r.calls, "untrash:"+id)
	return nil
}
func (r *recordingMailbox) Move(ctx context.Context, id, target string) error {
	r.calls = append(r.calls, "move:"+id+":"+target)
	return nil
}
func (r *recordingMailbox) Star(ctx context.Context, id string) error {
	r.calls = append(r.calls, "star:"+id)
	return nil
}
func (r *recordingMailbox) Unstar(ctx context.Context, id string) error {
	r.calls = append(r.calls, "unstar:"+id)
	return nil
}
func (r *recordingMailbox) UpsertDraft(ctx context.Context, d *domain.DraftDocument) (string, error) {
	r.calls = append(r.calls, "upsert_draft:"+d.ID)
	return d.ID, nil
}
func (r *recordingMailbox) DeleteDraft(ctx context.Context, id string) error {
	r.calls = append(r.calls, "delete_draft:"+id)
	return nil
}

var _ out.MailboxPort = (*recordingMailbox)(nil)

func TestPersistCallsProviderPrimitive(t *testing.T) {
	tests := []struct {
		mod  Modifier
		want string
	}{
		{NewArchive("m", "acc-1", domain.ProviderGmail, "", nil), "archive:m"},
		{NewUnarchive("m", "acc-1", domain.ProviderGmail, "", nil), "unarchive:m"},
		{NewDelete("m", "acc-1", domain.ProviderGmail, ""), "trash:m"},
		{NewUndelete("m", "acc-1", domain.ProviderGmail, ""), "untrash:m"},
		{NewMarkRead("m", "acc-1", domain.ProviderGmail), "read:m"},
		{NewMarkUnread("m", "acc-1", domain.ProviderGmail), "unread:m"},
		{NewMove("m", "acc-1", domain.ProviderGmail, domain.MovePayload{TargetFolder: "receipts"}), "move:m:receipts"},
		{NewStar("m", "acc-1", domain.ProviderGmail), "star:m"},
		{NewUnstar("m", "acc-1", domain.ProviderGmail), "unstar:m"},
		{NewDraftUpdate("d", "acc-1", domain.ProviderGmail, domain.DraftUpdatePayload{}), "upsert_draft:d"},
		{NewDraftDelete("d", "acc-1", domain.ProviderGmail), "delete_draft:d"},
	}

	for _, tt := range tests {
		mb := &recordingMailbox{}
		if err := tt.mod.Persist(context.Background(), mb); err != nil {
			t.Fatalf("%s: Persist: %v", tt.mod.Type(), err)
		}
		if len(mb.calls) != 1 || mb.calls[0] != tt.want {
			t.Errorf("%s: calls = %v, want [%s]", tt.mod.Type(), mb.calls, tt.want)
		}
	}
}

func TestMovePersistPrefersFolderID(t *testing.T) {
	mb := &recordingMailbox{}
	mod := NewMove("m", "acc-1", domain.ProviderOutlook, domain.MovePayload{
		TargetFolder: "receipts",
		TargetID:     "AAMkAD=",
	})
	if err := mod.Persist(context.Background(), mb); err != nil {
		t.Fatal(err)
	}
	if mb.calls[0] != "move:m:AAMkAD=" {
		t.Errorf("calls = %v, want provider folder id", mb.calls)
	}
}
