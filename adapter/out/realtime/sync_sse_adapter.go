// Package realtime provides real-time communication adapters.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/port/out"
)

// =============================================================================
// SSE Adapter - RealtimePort
// =============================================================================

// SSEAdapter implements out.RealtimePort using Server-Sent Events. Queue
// lifecycle events fan out to every open stream for the account.
type SSEAdapter struct {
	clients map[string]map[chan *domain.QueueEvent]struct{} // accountID -> channels
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    int64
	messagesDropped int64
	seqCounter      int64
}

var _ out.RealtimePort = (*SSEAdapter)(nil)

// NewSSEAdapter creates a new SSE adapter.
func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		clients: make(map[string]map[chan *domain.QueueEvent]struct{}),
		log:     log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel for an account.
func (a *SSEAdapter) Subscribe(accountID string) <-chan *domain.QueueEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *domain.QueueEvent, 256)

	if a.clients[accountID] == nil {
		a.clients[accountID] = make(map[chan *domain.QueueEvent]struct{})
	}
	a.clients[accountID][ch] = struct{}{}

	a.log.Debug().
		Str("account_id", accountID).
		Int("total_connections", len(a.clients[accountID])).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (a *SSEAdapter) Unsubscribe(accountID string, ch <-chan *domain.QueueEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if channels, ok := a.clients[accountID]; ok {
		for c := range channels {
			if c == ch {
				delete(channels, c)
				close(c)
				break
			}
		}
		if len(channels) == 0 {
			delete(a.clients, accountID)
		}
	}

	a.log.Debug().
		Str("account_id", accountID).
		Msg("client unsubscribed")
}

// Push sends an event to every open stream for the account. A slow client
// with a full buffer drops the event rather than blocking the queue.
func (a *SSEAdapter) Push(ctx context.Context, accountID string, event *domain.QueueEvent) error {
	event.Seq = atomic.AddInt64(&a.seqCounter, 1)

	a.mu.RLock()
	channels, ok := a.clients[accountID]
	if !ok || len(channels) == 0 {
		a.mu.RUnlock()
		return nil
	}
	chList := make([]chan *domain.QueueEvent, 0, len(channels))
	for ch := range channels {
		chList = append(chList, ch)
	}
	a.mu.RUnlock()

	for _, ch := range chList {
		select {
		case ch <- event:
			atomic.AddInt64(&a.messagesSent, 1)
		default:
			atomic.AddInt64(&a.messagesDropped, 1)
			a.log.Warn().
				Str("account_id", accountID).
				Str("kind", string(event.Kind)).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// ConnectedCount returns the number of open subscriptions.
func (a *SSEAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, channels := range a.clients {
		n += len(channels)
	}
	return n
}

// IsConnected reports whether the account has any subscriber.
func (a *SSEAdapter) IsConnected(accountID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients[accountID]) > 0
}

// Stats reports delivery counters for the status endpoint.
func (a *SSEAdapter) Stats() (sent, dropped int64) {
	return atomic.LoadInt64(&a.messagesSent), atomic.LoadInt64(&a.messagesDropped)
}
