// Package ratelimit provides rate limiting for provider API calls.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Token Bucket
// =============================================================================

// ThrottleStatus reflects how much of the bucket is in use.
type ThrottleStatus string

const (
	StatusNormal      ThrottleStatus = "normal"       // < 70% used
	StatusThrottled   ThrottleStatus = "throttled"    // 70-99% used
	StatusRateLimited ThrottleStatus = "rate-limited" // 0 tokens available
)

// BucketConfig holds token bucket configuration.
type BucketConfig struct {
	MaxTokens        int     // bucket capacity (default: 25)
	RefillRatePerSec float64 // tokens restored per second (default: 5)
}

// DefaultBucketConfig returns defaults sized for provider message APIs.
func DefaultBucketConfig() *BucketConfig {
	return &BucketConfig{
		MaxTokens:        25,
		RefillRatePerSec: 5,
	}
}

// Bucket is a token bucket for one provider+account pair. Consuming a token
// is atomic with respect to concurrent consumers.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	last     time.Time
	status   ThrottleStatus
	onChange func(ThrottleStatus)

	now func() time.Time // injectable clock for tests
}

// NewBucket creates a full bucket.
func NewBucket(cfg *BucketConfig) *Bucket {
	if cfg == nil {
		cfg = DefaultBucketConfig()
	}
	b := &Bucket{
		tokens: float64(cfg.MaxTokens),
		max:    float64(cfg.MaxTokens),
		rate:   cfg.RefillRatePerSec,
		status: StatusNormal,
		now:    time.Now,
	}
	b.last = b.now()
	return b
}

// refill adds elapsed-time tokens. Caller must hold mu.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.max {
			b.tokens = b.max
		}
		b.last = now
	}
}

// statusLocked computes the throttle status. Caller must hold mu.
func (b *Bucket) statusLocked() ThrottleStatus {
	if b.tokens < 1 {
		return StatusRateLimited
	}
	used := (b.max - b.tokens) / b.max
	if used >= 0.7 {
		return StatusThrottled
	}
	return StatusNormal
}

// updateStatusLocked fires the change callback outside the lock path of the
// consumer; the callback itself runs synchronously so transitions are
// delivered in order.
func (b *Bucket) updateStatusLocked() func() {
	next := b.statusLocked()
	if next == b.status {
		return nil
	}
	b.status = next
	cb := b.onChange
	if cb == nil {
		return nil
	}
	return func() { cb(next) }
}

// TryConsume takes one token. Returns false when the bucket is empty.
func (b *Bucket) TryConsume() bool {
	b.mu.Lock()
	b.refill()
	ok := b.tokens >= 1
	if ok {
		b.tokens--
	}
	notify := b.updateStatusLocked()
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
	return ok
}

// GetAvailableTokens returns the whole tokens currently available.
func (b *Bucket) GetAvailableTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return int(b.tokens)
}

// GetMaxTokens returns the bucket capacity.
func (b *Bucket) GetMaxTokens() int {
	return int(b.max)
}

// GetRefillRate returns tokens restored per second.
func (b *Bucket) GetRefillRate() float64 {
	return b.rate
}

// GetCurrentUsage returns bucket usage as a 0-100 percentage.
func (b *Bucket) GetCurrentUsage() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return int((b.max - b.tokens) / b.max * 100)
}

// GetThrottleStatus returns the current throttle classification.
func (b *Bucket) GetThrottleStatus() ThrottleStatus {
	b.mu.Lock()
	b.refill()
	notify := b.updateStatusLocked()
	s := b.status
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
	return s
}

// OnThrottleChange subscribes to status transitions. Passing nil
// unsubscribes.
func (b *Bucket) OnThrottleChange(fn func(ThrottleStatus)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// =============================================================================
// Registry - one bucket per (provider, account)
// =============================================================================

// BucketState is a read-only snapshot for status surfaces.
type BucketState struct {
	Key             string         `json:"key"`
	AvailableTokens int            `json:"available_tokens"`
	MaxTokens       int            `json:"max_tokens"`
	RefillRate      float64        `json:"refill_rate_per_sec"`
	Usage           int            `json:"usage_percent"`
	ThrottleStatus  ThrottleStatus `json:"throttle_status"`
}

// Registry lazily creates buckets keyed by provider:account.
type Registry struct {
	mu        sync.Mutex
	cfg       *BucketConfig
	overrides map[string]*BucketConfig
	buckets   map[string]*Bucket
}

// NewRegistry creates a registry with the given per-bucket config.
func NewRegistry(cfg *BucketConfig) *Registry {
	if cfg == nil {
		cfg = DefaultBucketConfig()
	}
	return &Registry{
		cfg:       cfg,
		overrides: make(map[string]*BucketConfig),
		buckets:   make(map[string]*Bucket),
	}
}

// SetProviderConfig overrides the bucket config for one provider. Providers
// publish different quotas, so their buckets are sized differently. Only
// affects buckets created afterwards.
func (r *Registry) SetProviderConfig(provider string, cfg *BucketConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[provider] = cfg
}

func bucketKey(provider, accountID string) string {
	return fmt.Sprintf("%s:%s", provider, accountID)
}

// Get returns the bucket for a provider+account pair, creating it on first
// use.
func (r *Registry) Get(provider, accountID string) *Bucket {
	key := bucketKey(provider, accountID)

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		cfg := r.cfg
		if override, ok := r.overrides[provider]; ok {
			cfg = override
		}
		b = NewBucket(cfg)
		r.buckets[key] = b
	}
	return b
}

// Snapshot returns the state of every known bucket.
func (r *Registry) Snapshot() []BucketState {
	r.mu.Lock()
	keys := make([]string, 0, len(r.buckets))
	buckets := make([]*Bucket, 0, len(r.buckets))
	for k, b := range r.buckets {
		keys = append(keys, k)
		buckets = append(buckets, b)
	}
	r.mu.Unlock()

	states := make([]BucketState, len(buckets))
	for i, b := range buckets {
		states[i] = BucketState{
			Key:             keys[i],
			AvailableTokens: b.GetAvailableTokens(),
			MaxTokens:       b.GetMaxTokens(),
			RefillRate:      b.GetRefillRate(),
			Usage:           b.GetCurrentUsage(),
			ThrottleStatus:  b.GetThrottleStatus(),
		}
	}
	return states
}
