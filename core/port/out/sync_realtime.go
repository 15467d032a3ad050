package out

import (
	"context"

	"mailsync/core/domain"
)

// =============================================================================
// RealtimePort - push queue events to connected clients
// =============================================================================

// RealtimePort pushes queue and conflict events to connected clients.
type RealtimePort interface {
	// Subscribe opens a channel for one account's events.
	Subscribe(accountID string) <-chan *domain.QueueEvent

	// Unsubscribe closes the channel.
	Unsubscribe(accountID string, ch <-chan *domain.QueueEvent)

	// Push delivers an event to one account's subscribers.
	Push(ctx context.Context, accountID string, event *domain.QueueEvent) error

	// ConnectedCount returns the number of open subscriptions.
	ConnectedCount() int

	// IsConnected reports whether the account has any subscriber.
	IsConnected(accountID string) bool
}
