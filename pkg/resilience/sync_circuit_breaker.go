// Package resilience provides fault tolerance patterns for provider calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int32

const (
	StateClosed   CircuitState = iota // Normal operation, requests pass through
	StateOpen                         // Circuit open, requests fail immediately
	StateHalfOpen                     // Testing if the provider recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Errors returned by the circuit breaker.
var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrProbeInFlight = errors.New("probe already in flight in half-open state")
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name             string        // Provider name for logging/status
	FailureThreshold int           // Consecutive failures before opening (default: 5)
	FailureWindow    time.Duration // Failures further apart than this reset the streak (default: 60s)
	Cooldown         time.Duration // Time open before half-open is allowed (default: 30s)
	MaxCooldown      time.Duration // Cap for cooldown growth after failed probes (default: 5m)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	}
}

// Breaker implements the circuit breaker pattern for one provider.
// In half-open exactly one probe call is admitted; everything else is
// short-circuited until the probe reports back.
type Breaker struct {
	name string

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	cooldown            time.Duration
	probeInFlight       bool

	failureThreshold int
	failureWindow    time.Duration
	baseCooldown     time.Duration
	maxCooldown      time.Duration

	onStateChange func(name string, from, to CircuitState)

	now func() time.Time // injectable clock for tests
}

// NewBreaker creates a new circuit breaker with the given config.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig("default")
	}
	return &Breaker{
		name:             cfg.Name,
		state:            StateClosed,
		cooldown:         cfg.Cooldown,
		failureThreshold: cfg.FailureThreshold,
		failureWindow:    cfg.FailureWindow,
		baseCooldown:     cfg.Cooldown,
		maxCooldown:      cfg.MaxCooldown,
		now:              time.Now,
	}
}

// OnStateChange sets a callback for state changes.
func (b *Breaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow decides whether a request may go out. In half-open it admits exactly
// one probe; the caller must report the outcome via RecordSuccess or
// RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.setStateLocked(StateHalfOpen)
			b.probeInFlight = true
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.probeInFlight {
			return ErrProbeInFlight
		}
		b.probeInFlight = true
		return nil
	}

	return nil
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.cooldown = b.baseCooldown
		b.setStateLocked(StateClosed)
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case StateClosed:
		// Failures outside the window start a fresh streak.
		if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.failureWindow {
			b.consecutiveFailures = 0
		}
		b.lastFailureAt = now
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.openedAt = now
			b.setStateLocked(StateOpen)
		}

	case StateHalfOpen:
		// Failed probe reopens with a grown cooldown.
		b.probeInFlight = false
		b.cooldown *= 2
		if b.cooldown > b.maxCooldown {
			b.cooldown = b.maxCooldown
		}
		b.openedAt = now
		b.setStateLocked(StateOpen)
	}
}

// ReleaseProbe hands back an admitted half-open probe without recording an
// outcome, for callers that could not make the call after all.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
	b.mu.Unlock()
}

// ForceProbe moves an open breaker to half-open immediately.
func (b *Breaker) ForceProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		b.setStateLocked(StateHalfOpen)
		b.probeInFlight = false
	}
}

// Reset forces the breaker back to closed with counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.cooldown = b.baseCooldown
	b.setStateLocked(StateClosed)
}

// setStateLocked transitions state and fires the callback. Caller holds mu;
// the callback is invoked without the lock to avoid re-entrancy deadlocks.
func (b *Breaker) setStateLocked(next CircuitState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next

	if cb := b.onStateChange; cb != nil {
		go cb(b.name, prev, next)
	}
}

// BreakerState is a read-only snapshot for status surfaces.
type BreakerState struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	Cooldown            time.Duration `json:"cooldown_ms"`
}

// Stats returns the current snapshot.
func (b *Breaker) Stats() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Name:                b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		Cooldown:            b.cooldown,
	}
}

// =============================================================================
// Registry - one breaker per provider
// =============================================================================

// Registry lazily creates breakers keyed by provider.
type Registry struct {
	mu       sync.Mutex
	template *BreakerConfig
	breakers map[string]*Breaker
}

// NewRegistry creates a registry; cfg is the per-breaker template (Name is
// overridden per provider).
func NewRegistry(cfg *BreakerConfig) *Registry {
	return &Registry{
		template: cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (r *Registry) Get(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		cfg := DefaultBreakerConfig(provider)
		if r.template != nil {
			c := *r.template
			c.Name = provider
			cfg = &c
		}
		b = NewBreaker(cfg)
		r.breakers[provider] = b
	}
	return b
}

// GetState returns the state string for a provider.
func (r *Registry) GetState(provider string) string {
	return r.Get(provider).State().String()
}

// ForceProbe moves the provider's breaker to half-open for operational and
// test control.
func (r *Registry) ForceProbe(provider string) {
	r.Get(provider).ForceProbe()
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Snapshot returns the state of every known breaker.
func (r *Registry) Snapshot() []BreakerState {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	states := make([]BreakerState, len(breakers))
	for i, b := range breakers {
		states[i] = b.Stats()
	}
	return states
}
