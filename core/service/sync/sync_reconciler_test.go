package sync

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"mailsync/adapter/out/persistence"
	"mailsync/core/domain"
	"mailsync/core/modifier"
	"mailsync/core/port/out"
	"mailsync/core/service/queue"
	"mailsync/pkg/apperr"
)

// stubMailbox serves a fixed server copy.
type stubMailbox struct {
	server *domain.EmailDocument
}

func (s *stubMailbox) Provider() domain.Provider { return domain.ProviderGmail }
func (s *stubMailbox) AccountID() string         { return "acc-1" }

func (s *stubMailbox) GetMessage(ctx context.Context, id string) (*domain.EmailDocument, error) {
	if s.server == nil || s.server.ID != id {
		return nil, apperr.NotFound("message")
	}
	c := s.server.Clone()
	return &c, nil
}

func (s *stubMailbox) MarkRead(context.Context, string) error            { return nil }
func (s *stubMailbox) MarkUnread(context.Context, string) error          { return nil }
func (s *stubMailbox) Archive(context.Context, string) error             { return nil }
func (s *stubMailbox) Unarchive(context.Context, string) error           { return nil }
func (s *stubMailbox) Trash(context.Context, string) error               { return nil }
func (s *stubMailbox) Untrash(context.Context, string) error             { return nil }
func (s *stubMailbox) Move(context.Context, string, string) error        { return nil }
func (s *stubMailbox) Star(context.Context, string) error                { return nil }
func (s *stubMailbox) Unstar(context.Context, string) error              { return nil }
func (s *stubMailbox) DeleteDraft(context.Context, string) error         { return nil }
func (s *stubMailbox) UpsertDraft(ctx context.Context, d *domain.DraftDocument) (string, error) {
	return d.ID, nil
}

type stubFactory struct{ mailbox out.MailboxPort }

func (f *stubFactory) Mailbox(context.Context, domain.Provider, string) (out.MailboxPort, error) {
	return f.mailbox, nil
}

type reconcilerHarness struct {
	rec       *Reconciler
	res       *Resolver
	queue     *queue.Service
	emails    *persistence.MemoryEmailRepository
	conflicts *persistence.MemoryConflictRepository
	mailbox   *stubMailbox
}

func newReconcilerHarness(t *testing.T) *reconcilerHarness {
	t.Helper()
	q := queue.NewService(persistence.NewMemoryModifierRepository(), zerolog.Nop())
	emails := persistence.NewMemoryEmailRepository()
	conflicts := persistence.NewMemoryConflictRepository()
	mb := &stubMailbox{}
	return &reconcilerHarness{
		rec:       NewReconciler(q, emails, conflicts, &stubFactory{mailbox: mb}, zerolog.Nop()),
		res:       NewResolver(q, emails, conflicts, zerolog.Nop()),
		queue:     q,
		emails:    emails,
		conflicts: conflicts,
		mailbox:   mb,
	}
}

func TestReconcileAdoptsServerWhenNoLocalWork(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	h.emails.Upsert(ctx, &b)

	server := b.Clone()
	server.Read = true
	h.mailbox.server = &server

	conflict, err := h.rec.ReconcileEmail(ctx, domain.ProviderGmail, "acc-1", "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if conflict != nil {
		t.Fatalf("conflict = %+v, want nil", conflict)
	}

	cached, _ := h.emails.Get(ctx, "msg-1")
	if !cached.Read {
		t.Error("server change not adopted into cache")
	}
}

func TestReconcileNoConflictWithCompatiblePendingWork(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	h.emails.Upsert(ctx, &b)

	// Local queued a star; server only marked read. Different fields, no
	// conflict, and the server copy becomes the new base.
	h.queue.Enqueue(ctx, modifier.NewStar("msg-1", "acc-1", domain.ProviderGmail))
	server := b.Clone()
	server.Read = true
	h.mailbox.server = &server

	conflict, err := h.rec.ReconcileEmail(ctx, domain.ProviderGmail, "acc-1", "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if conflict != nil {
		t.Fatalf("conflict = %+v, want nil", conflict)
	}

	cached, _ := h.emails.Get(ctx, "msg-1")
	if !cached.Read {
		t.Error("server read change lost")
	}
	if h.queue.IsPaused("msg-1", "acc-1") {
		t.Error("entity paused without a conflict")
	}
}

func TestReconcileDetectsConflictAndPauses(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	b.Starred = true
	h.emails.Upsert(ctx, &b)

	// Local queued unstar; server also changed starred away from base in
	// a disagreeing way is impossible for booleans, so use labels: local
	// archive restores prev labels while server grew the set.
	h.queue.Enqueue(ctx, modifier.NewMove("msg-1", "acc-1", domain.ProviderGmail, domain.MovePayload{TargetFolder: "receipts"}))
	h.queue.Enqueue(ctx, modifier.NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox, []string{"INBOX"}))
	server := b.Clone()
	server.Labels = []string{"INBOX", "finance", "urgent"}
	h.mailbox.server = &server

	conflict, err := h.rec.ReconcileEmail(ctx, domain.ProviderGmail, "acc-1", "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if conflict == nil {
		t.Fatal("expected label conflict")
	}
	if !conflict.HasType(domain.ConflictLabels) {
		t.Errorf("types = %v, want labels", conflict.Types)
	}
	if !h.queue.IsPaused("msg-1", "acc-1") {
		t.Error("entity not paused on conflict")
	}

	stored, err := h.conflicts.GetByEmail(ctx, "msg-1")
	if err != nil {
		t.Fatalf("conflict not stored: %v", err)
	}
	if stored.ID != conflict.ID {
		t.Error("stored conflict differs")
	}

	// A second pull keeps the original conflict record.
	again, err := h.rec.ReconcileEmail(ctx, domain.ProviderGmail, "acc-1", "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != conflict.ID {
		t.Error("duplicate conflict created on repeat pull")
	}
}

func TestResolveServerDiscardsPendingAndResumes(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	h.emails.Upsert(ctx, &b)
	h.queue.Enqueue(ctx, modifier.NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox, []string{"INBOX"}))

	server := b.Clone()
	server.Labels = []string{"INBOX", "urgent"}
	server.Subject = "server wins"

	conflict := &domain.PendingConflict{
		ID:            "conf-1",
		EmailID:       "msg-1",
		AccountID:     "acc-1",
		Types:         []domain.ConflictType{domain.ConflictLabels},
		LocalVersion:  b.Clone(),
		ServerVersion: server,
	}
	h.conflicts.Create(ctx, conflict)
	h.queue.PauseEntity("msg-1")

	var resumed string
	h.res.OnResolved(func(entityID string) { resumed = entityID })

	if err := h.res.Resolve(ctx, "conf-1", domain.ResolutionServer, nil); err != nil {
		t.Fatal(err)
	}

	cached, _ := h.emails.Get(ctx, "msg-1")
	if cached.Subject != "server wins" {
		t.Error("server version not adopted")
	}
	pending, _ := h.queue.PendingRecordsForEntity(ctx, "msg-1")
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after server resolution", len(pending))
	}
	if h.queue.IsPaused("msg-1", "acc-1") {
		t.Error("entity still paused")
	}
	if resumed != "msg-1" {
		t.Errorf("onResolved entity = %q, want msg-1", resumed)
	}
	if _, err := h.conflicts.GetByID(ctx, "conf-1"); err == nil {
		t.Error("conflict record not deleted")
	}
}

func TestResolveLocalKeepsPending(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	h.emails.Upsert(ctx, &b)
	h.queue.Enqueue(ctx, modifier.NewStar("msg-1", "acc-1", domain.ProviderGmail))

	h.conflicts.Create(ctx, &domain.PendingConflict{
		ID:        "conf-1",
		EmailID:   "msg-1",
		AccountID: "acc-1",
	})
	h.queue.PauseEntity("msg-1")

	if err := h.res.Resolve(ctx, "conf-1", domain.ResolutionLocal, nil); err != nil {
		t.Fatal(err)
	}

	pending, _ := h.queue.PendingRecordsForEntity(ctx, "msg-1")
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 (local resolution keeps queue)", len(pending))
	}
	if h.queue.IsPaused("msg-1", "acc-1") {
		t.Error("entity still paused")
	}
}

func TestResolveMergedAdoptsSuppliedDocument(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	b := baseDoc()
	h.emails.Upsert(ctx, &b)
	h.queue.Enqueue(ctx, modifier.NewStar("msg-1", "acc-1", domain.ProviderGmail))

	h.conflicts.Create(ctx, &domain.PendingConflict{
		ID:        "conf-1",
		EmailID:   "msg-1",
		AccountID: "acc-1",
	})

	merged := b.Clone()
	merged.Subject = "hand merged"
	merged.Starred = true

	if err := h.res.Resolve(ctx, "conf-1", domain.ResolutionMerged, &merged); err != nil {
		t.Fatal(err)
	}

	cached, _ := h.emails.Get(ctx, "msg-1")
	if cached.Subject != "hand merged" || !cached.Starred {
		t.Error("merged document not adopted verbatim")
	}
	pending, _ := h.queue.PendingRecordsForEntity(ctx, "msg-1")
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after merged resolution", len(pending))
	}
}

func TestConflictLifecycleReachesQueueSubscribers(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	var events []*domain.QueueEvent
	unsub := h.queue.Subscribe(func(ev *domain.QueueEvent) {
		if ev.Conflict != nil {
			events = append(events, ev)
		}
	})
	defer unsub()

	b := baseDoc()
	b.Starred = true
	h.emails.Upsert(ctx, &b)

	h.queue.Enqueue(ctx, modifier.NewUnarchive("msg-1", "acc-1", domain.ProviderGmail, domain.FolderInbox, []string{"INBOX"}))
	server := b.Clone()
	server.Labels = []string{"INBOX", "finance", "urgent"}
	h.mailbox.server = &server

	conflict, err := h.rec.ReconcileEmail(ctx, domain.ProviderGmail, "acc-1", "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict")
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 after detection", len(events))
	}
	if events[0].Kind != domain.QueueEventConflictDetected {
		t.Errorf("kind = %q, want %q", events[0].Kind, domain.QueueEventConflictDetected)
	}
	if events[0].EntityID != "msg-1" || events[0].Conflict.AccountID != "acc-1" {
		t.Errorf("event routing fields = (%q, %q), want (msg-1, acc-1)", events[0].EntityID, events[0].Conflict.AccountID)
	}

	if err := h.res.Resolve(ctx, conflict.ID, domain.ResolutionServer, nil); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 after resolution", len(events))
	}
	if events[1].Kind != domain.QueueEventConflictResolved {
		t.Errorf("kind = %q, want %q", events[1].Kind, domain.QueueEventConflictResolved)
	}
	if events[1].Conflict.ID != conflict.ID {
		t.Error("resolved event carries a different conflict record")
	}
}

func TestResolveMergedRequiresDocument(t *testing.T) {
	h := newReconcilerHarness(t)
	ctx := context.Background()

	h.conflicts.Create(ctx, &domain.PendingConflict{ID: "conf-1", EmailID: "msg-1", AccountID: "acc-1"})

	if err := h.res.Resolve(ctx, "conf-1", domain.ResolutionMerged, nil); err == nil {
		t.Fatal("expected error for merged resolution without document")
	}

	wrong := baseDoc()
	wrong.ID = "other"
	if err := h.res.Resolve(ctx, "conf-1", domain.ResolutionMerged, &wrong); err == nil {
		t.Fatal("expected error for mismatched merged document")
	}
}
