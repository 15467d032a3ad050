package out

import (
	"context"
	"time"

	"mailsync/core/domain"
)

// =============================================================================
// ModifierRepository - durable modifier queue
// =============================================================================

// ModifierRepository persists queued modifiers. Pending modifiers for one
// entity are always returned oldest-first so replay preserves user intent.
type ModifierRepository interface {
	// CRUD
	Create(ctx context.Context, record *domain.ModifierRecord) error
	GetByID(ctx context.Context, id string) (*domain.ModifierRecord, error)
	Update(ctx context.Context, record *domain.ModifierRecord) error
	Delete(ctx context.Context, id string) error

	// Queue operations
	GetPendingByEntity(ctx context.Context, entityID string) ([]*domain.ModifierRecord, error)
	GetPendingByAccount(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error)
	GetAllPending(ctx context.Context) ([]*domain.ModifierRecord, error)
	HasPending(ctx context.Context, entityID string) (bool, error)

	// Recovery. Records stranded in 'processing' by a crash return to
	// 'pending' so the next drain replays them.
	ResetProcessing(ctx context.Context) (int64, error)

	// Cleanup
	DeleteFailedBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}

// =============================================================================
// ConflictRepository
// =============================================================================

// ConflictRepository persists detected conflicts awaiting user resolution.
type ConflictRepository interface {
	Create(ctx context.Context, conflict *domain.PendingConflict) error
	GetByID(ctx context.Context, id string) (*domain.PendingConflict, error)
	GetByEmail(ctx context.Context, emailID string) (*domain.PendingConflict, error)
	GetByAccount(ctx context.Context, accountID string) ([]*domain.PendingConflict, error)
	Delete(ctx context.Context, id string) error
}
