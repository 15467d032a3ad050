package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// In-memory repositories
// =============================================================================
//
// Used in dev mode and by service tests. Semantics match the Postgres
// adapter: pending records come back oldest first per entity.

// MemoryModifierRepository is a map-backed ModifierRepository.
type MemoryModifierRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.ModifierRecord
}

// NewMemoryModifierRepository creates an empty repository.
func NewMemoryModifierRepository() *MemoryModifierRepository {
	return &MemoryModifierRepository{records: make(map[string]*domain.ModifierRecord)}
}

var _ out.ModifierRepository = (*MemoryModifierRepository)(nil)

func cloneRecord(rec *domain.ModifierRecord) *domain.ModifierRecord {
	c := *rec
	if rec.NextAttemptAt != nil {
		t := *rec.NextAttemptAt
		c.NextAttemptAt = &t
	}
	if rec.Payload != nil {
		c.Payload = append([]byte(nil), rec.Payload...)
	}
	return &c
}

func (r *MemoryModifierRepository) Create(ctx context.Context, rec *domain.ModifierRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return apperr.Conflict("modifier already exists")
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *MemoryModifierRepository) GetByID(ctx context.Context, id string) (*domain.ModifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperr.NotFound("modifier")
	}
	return cloneRecord(rec), nil
}

func (r *MemoryModifierRepository) Update(ctx context.Context, rec *domain.ModifierRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return apperr.NotFound("modifier")
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *MemoryModifierRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return apperr.NotFound("modifier")
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryModifierRepository) pendingWhere(match func(*domain.ModifierRecord) bool) []*domain.ModifierRecord {
	var recs []*domain.ModifierRecord
	for _, rec := range r.records {
		if rec.Status == domain.ModifierStatusPending && match(rec) {
			recs = append(recs, cloneRecord(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs
}

func (r *MemoryModifierRepository) GetPendingByEntity(ctx context.Context, entityID string) ([]*domain.ModifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingWhere(func(rec *domain.ModifierRecord) bool { return rec.EntityID == entityID }), nil
}

func (r *MemoryModifierRepository) GetPendingByAccount(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingWhere(func(rec *domain.ModifierRecord) bool { return rec.AccountID == accountID }), nil
}

func (r *MemoryModifierRepository) GetAllPending(ctx context.Context) ([]*domain.ModifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingWhere(func(*domain.ModifierRecord) bool { return true }), nil
}

func (r *MemoryModifierRepository) HasPending(ctx context.Context, entityID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.EntityID == entityID && rec.Status == domain.ModifierStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryModifierRepository) ResetProcessing(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.Status == domain.ModifierStatusProcessing {
			rec.Status = domain.ModifierStatusPending
			rec.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *MemoryModifierRepository) DeleteFailedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.Status == domain.ModifierStatusFailed && rec.UpdatedAt.Before(before) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryModifierRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		if rec.AccountID == accountID {
			delete(r.records, id)
		}
	}
	return nil
}

// =============================================================================
// MemoryConflictRepository
// =============================================================================

// MemoryConflictRepository is a map-backed ConflictRepository.
type MemoryConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[string]*domain.PendingConflict
}

// NewMemoryConflictRepository creates an empty repository.
func NewMemoryConflictRepository() *MemoryConflictRepository {
	return &MemoryConflictRepository{conflicts: make(map[string]*domain.PendingConflict)}
}

var _ out.ConflictRepository = (*MemoryConflictRepository)(nil)

func (r *MemoryConflictRepository) Create(ctx context.Context, c *domain.PendingConflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conflicts[c.ID]; ok {
		return apperr.Conflict("conflict already exists")
	}
	cp := *c
	r.conflicts[c.ID] = &cp
	return nil
}

func (r *MemoryConflictRepository) GetByID(ctx context.Context, id string) (*domain.PendingConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conflicts[id]
	if !ok {
		return nil, apperr.NotFound("conflict")
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryConflictRepository) GetByEmail(ctx context.Context, emailID string) (*domain.PendingConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conflicts {
		if c.EmailID == emailID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("conflict for email")
}

func (r *MemoryConflictRepository) GetByAccount(ctx context.Context, accountID string) ([]*domain.PendingConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*domain.PendingConflict
	for _, c := range r.conflicts {
		if c.AccountID == accountID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DetectedAt.Before(res[j].DetectedAt) })
	return res, nil
}

func (r *MemoryConflictRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conflicts[id]; !ok {
		return apperr.NotFound("conflict")
	}
	delete(r.conflicts, id)
	return nil
}

// =============================================================================
// MemoryEmailRepository / MemoryDraftRepository
// =============================================================================

// MemoryEmailRepository is a map-backed EmailRepository.
type MemoryEmailRepository struct {
	mu     sync.RWMutex
	emails map[string]*domain.EmailDocument
}

// NewMemoryEmailRepository creates an empty repository.
func NewMemoryEmailRepository() *MemoryEmailRepository {
	return &MemoryEmailRepository{emails: make(map[string]*domain.EmailDocument)}
}

var _ out.EmailRepository = (*MemoryEmailRepository)(nil)

func (r *MemoryEmailRepository) Get(ctx context.Context, id string) (*domain.EmailDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.emails[id]
	if !ok {
		return nil, apperr.NotFound("email")
	}
	c := e.Clone()
	return &c, nil
}

func (r *MemoryEmailRepository) Upsert(ctx context.Context, email *domain.EmailDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := email.Clone()
	r.emails[email.ID] = &c
	return nil
}

func (r *MemoryEmailRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.emails, id)
	return nil
}

func (r *MemoryEmailRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.EmailDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*domain.EmailDocument
	for _, e := range r.emails {
		if e.AccountID == accountID {
			c := e.Clone()
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// MemoryDraftRepository is a map-backed DraftRepository.
type MemoryDraftRepository struct {
	mu     sync.RWMutex
	drafts map[string]*domain.DraftDocument
}

// NewMemoryDraftRepository creates an empty repository.
func NewMemoryDraftRepository() *MemoryDraftRepository {
	return &MemoryDraftRepository{drafts: make(map[string]*domain.DraftDocument)}
}

var _ out.DraftRepository = (*MemoryDraftRepository)(nil)

func (r *MemoryDraftRepository) Get(ctx context.Context, id string) (*domain.DraftDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drafts[id]
	if !ok {
		return nil, apperr.NotFound("draft")
	}
	c := d.Clone()
	return &c, nil
}

func (r *MemoryDraftRepository) Upsert(ctx context.Context, draft *domain.DraftDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := draft.Clone()
	r.drafts[draft.ID] = &c
	return nil
}

func (r *MemoryDraftRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, id)
	return nil
}

func (r *MemoryDraftRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.DraftDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*domain.DraftDocument
	for _, d := range r.drafts {
		if d.AccountID == accountID {
			c := d.Clone()
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// MemoryTokenStore is a map-backed TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*oauth2.Token
}

var _ out.TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an empty token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*oauth2.Token)}
}

func tokenKey(provider domain.Provider, accountID string) string {
	return string(provider) + ":" + accountID
}

func (s *MemoryTokenStore) Get(ctx context.Context, provider domain.Provider, accountID string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[tokenKey(provider, accountID)]
	if !ok {
		return nil, apperr.NotFound("token")
	}
	c := *tok
	return &c, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, provider domain.Provider, accountID string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *token
	s.tokens[tokenKey(provider, accountID)] = &c
	return nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context, provider domain.Provider, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey(provider, accountID))
	return nil
}
