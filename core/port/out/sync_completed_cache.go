package out

import (
	"context"
	"time"

	"mailsync/core/domain"
)

// =============================================================================
// CompletedCache - short-lived feedback records
// =============================================================================

// CompletedCache retains recently completed modifiers for a short TTL so
// clients can show sync feedback after the durable record is gone.
type CompletedCache interface {
	Put(ctx context.Context, record *domain.ModifierRecord, ttl time.Duration) error
	Recent(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error)
}
