// Package processor replays queued modifiers against the providers.
package processor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"mailsync/core/domain"
	"mailsync/core/modifier"
	"mailsync/core/port/out"
	"mailsync/core/service/queue"
	"mailsync/pkg/apperr"
	"mailsync/pkg/ratelimit"
	"mailsync/pkg/resilience"
)

// =============================================================================
// go-pkgz/pool based Modifier Processor
// =============================================================================
//
// Replay tasks are entity IDs, not individual modifiers. The pool's chunk
// function routes every task for one entity to the same worker, so one
// entity's modifiers always replay sequentially in queue order while
// different entities fan out across workers.

// Config holds processor configuration.
type Config struct {
	MaxWorkers     int           // concurrent entities (default: 8)
	BatchSize      int           // pool batch size (default: 10)
	WorkerChanSize int           // per-worker channel buffer (default: 100)
	BaseBackoff    time.Duration // first retry delay (default: 2s)
	MaxBackoff     time.Duration // retry delay cap (default: 5m)
	RetryInterval  time.Duration // eligibility re-check tick (default: 5s)
	CompletedTTL   time.Duration // feedback record lifetime (default: 10m)
	FailedRetention time.Duration // keep failed records this long (default: 7d)
	CleanupInterval time.Duration // janitor tick (default: 1h)
}

// DefaultConfig returns processor defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:      8,
		BatchSize:       10,
		WorkerChanSize:  100,
		BaseBackoff:     2 * time.Second,
		MaxBackoff:      5 * time.Minute,
		RetryInterval:   5 * time.Second,
		CompletedTTL:    10 * time.Minute,
		FailedRetention: 7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Deps bundles the processor's collaborators.
type Deps struct {
	Queue     *queue.Service
	Factory   out.MailboxFactory
	Emails    out.EmailRepository
	Drafts    out.DraftRepository
	Buckets   *ratelimit.Registry
	Breakers  *resilience.Registry
	Completed out.CompletedCache // optional
}

// Processor drains the modifier queue whenever the engine is online.
type Processor struct {
	deps Deps
	cfg  *Config
	log  zerolog.Logger

	pool   *pool.WorkerGroup[string]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// The tickers stop on their own context so cancelling them cannot
	// abort an in-flight persist running under the pool's context.
	tickCtx    context.Context
	tickCancel context.CancelFunc

	online   atomic.Bool
	started  atomic.Bool
	closing  atomic.Bool
	draining atomic.Bool
	rerun    atomic.Bool

	mu       sync.Mutex
	onReauth func(accountID string)

	now func() time.Time // injectable clock for tests
}

// entityWorker implements pool.Worker for entity replay tasks.
type entityWorker struct {
	p *Processor
}

func (w *entityWorker) Do(ctx context.Context, entityID string) error {
	w.p.replayEntity(ctx, entityID)
	return nil
}

// New creates a processor. Call Start before Trigger.
func New(deps Deps, cfg *Config, log zerolog.Logger) *Processor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Processor{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "modifier_processor").Logger(),
		now:  time.Now,
	}
}

// OnReauthRequired registers the callback invoked when an account needs the
// user to sign in again.
func (p *Processor) OnReauthRequired(fn func(accountID string)) {
	p.mu.Lock()
	p.onReauth = fn
	p.mu.Unlock()
}

// Start launches the worker pool and background tickers. The processor
// begins offline; call SetOnline(true) to start draining.
func (p *Processor) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.tickCtx, p.tickCancel = context.WithCancel(context.Background())

	worker := &entityWorker{p: p}
	p.pool = pool.New[string](p.cfg.MaxWorkers, worker).
		WithBatchSize(p.cfg.BatchSize).
		WithWorkerChanSize(p.cfg.WorkerChanSize).
		WithChunkFn(func(entityID string) string { return entityID }).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		return err
	}

	p.wg.Add(2)
	go p.retryLoop()
	go p.cleanupLoop()

	p.log.Info().
		Int("max_workers", p.cfg.MaxWorkers).
		Dur("retry_interval", p.cfg.RetryInterval).
		Msg("modifier processor started")
	return nil
}

// Shutdown stops scheduling new work and waits for in-flight replays. An
// in-flight persist runs to completion or natural failure; only the
// shutdown deadline in ctx cuts it short.
func (p *Processor) Shutdown(ctx context.Context) error {
	if !p.started.Load() || !p.closing.CompareAndSwap(false, true) {
		return nil
	}

	p.log.Info().Msg("stopping modifier processor...")
	p.tickCancel()
	p.wg.Wait()

	err := p.pool.Close(ctx)
	p.cancel()
	p.log.Info().Msg("modifier processor stopped")
	return err
}

// =============================================================================
// Online state & drain scheduling
// =============================================================================

// SetOnline switches connectivity. The offline-to-online transition kicks a
// drain immediately.
func (p *Processor) SetOnline(online bool) {
	was := p.online.Swap(online)
	if !was && online {
		p.log.Info().Msg("connectivity restored, draining queue")
		p.Trigger()
	}
	if was && !online {
		p.log.Info().Msg("going offline, replay suspended")
	}
}

// IsOnline reports connectivity.
func (p *Processor) IsOnline() bool {
	return p.online.Load()
}

// Trigger requests a queue drain. Concurrent triggers coalesce into at most
// one running drain plus one rerun.
func (p *Processor) Trigger() {
	if !p.started.Load() || p.closing.Load() || !p.online.Load() {
		return
	}
	if !p.draining.CompareAndSwap(false, true) {
		p.rerun.Store(true)
		return
	}

	go func() {
		defer p.draining.Store(false)
		for {
			p.rerun.Store(false)
			p.drainOnce()
			if !p.rerun.Load() || p.closing.Load() {
				return
			}
		}
	}()
}

// drainOnce submits every entity with eligible pending work to the pool.
func (p *Processor) drainOnce() {
	recs, err := p.deps.Queue.AllPending(p.ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to load pending modifiers")
		return
	}

	now := p.now()
	seen := make(map[string]struct{})
	for _, rec := range recs {
		if _, ok := seen[rec.EntityID]; ok {
			continue
		}
		if !rec.Eligible(now) {
			continue
		}
		if p.deps.Queue.IsPaused(rec.EntityID, rec.AccountID) {
			continue
		}
		seen[rec.EntityID] = struct{}{}
		p.pool.Submit(rec.EntityID)
	}
}

func (p *Processor) retryLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.tickCtx.Done():
			return
		case <-ticker.C:
			p.Trigger()
		}
	}
}

func (p *Processor) cleanupLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.tickCtx.Done():
			return
		case <-ticker.C:
			cutoff := p.now().Add(-p.cfg.FailedRetention)
			if _, err := p.deps.Queue.CleanupFailed(p.tickCtx, cutoff); err != nil {
				p.log.Warn().Err(err).Msg("failed modifier cleanup errored")
			}
		}
	}
}

// =============================================================================
// Per-entity replay
// =============================================================================

// replayEntity walks the entity's pending modifiers oldest first. Any
// condition that must preserve ordering (transient failure, gate closed,
// offline) stops the walk; the retry tick resumes it later.
func (p *Processor) replayEntity(ctx context.Context, entityID string) {
	recs, err := p.deps.Queue.PendingRecordsForEntity(ctx, entityID)
	if err != nil {
		p.log.Error().Err(err).Str("entity_id", entityID).Msg("failed to load entity queue")
		return
	}

	for _, rec := range recs {
		if ctx.Err() != nil || p.closing.Load() || !p.online.Load() {
			return
		}
		if p.deps.Queue.IsPaused(rec.EntityID, rec.AccountID) {
			return
		}
		if !rec.Eligible(p.now()) {
			return
		}
		if !p.replayOne(ctx, rec) {
			return
		}
	}
}

// replayOne attempts a single record. It returns true when the walk may
// continue to the entity's next modifier.
func (p *Processor) replayOne(ctx context.Context, rec *domain.ModifierRecord) bool {
	provider := string(rec.Provider)
	log := p.log.With().
		Str("modifier_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("entity_id", rec.EntityID).
		Str("provider", provider).
		Logger()

	mod, err := modifier.FromRecord(rec)
	if err != nil {
		log.Error().Err(err).Msg("corrupt modifier record")
		if ferr := p.deps.Queue.Fail(ctx, rec, err); ferr != nil {
			log.Error().Err(ferr).Msg("failed to settle corrupt record")
		}
		return true
	}

	mailbox, err := p.deps.Factory.Mailbox(ctx, rec.Provider, rec.AccountID)
	if err != nil {
		log.Error().Err(err).Msg("no mailbox for account")
		return false
	}

	breaker := p.deps.Breakers.Get(provider)
	if err := breaker.Allow(); err != nil {
		// The denial is local, no attempt is consumed; the record waits
		// out the cooldown with the short-circuit as its last error.
		if rerr := p.deps.Queue.Reschedule(ctx, rec, apperr.CircuitOpen(provider), p.now().Add(p.cfg.RetryInterval)); rerr != nil {
			log.Error().Err(rerr).Msg("failed to defer modifier during cooldown")
		}
		log.Debug().Msg("circuit open, replay deferred")
		return false
	}

	bucket := p.deps.Buckets.Get(provider, rec.AccountID)
	if !bucket.TryConsume() {
		// Wait roughly one refill; the token denial is local, so the
		// attempt is not consumed.
		breaker.ReleaseProbe()
		delay := time.Duration(float64(time.Second) / bucket.GetRefillRate())
		if err := p.deps.Queue.Reschedule(ctx, rec, nil, p.now().Add(delay)); err != nil {
			log.Error().Err(err).Msg("failed to reschedule rate-limited modifier")
		}
		return false
	}

	if err := p.deps.Queue.BeginAttempt(ctx, rec); err != nil {
		breaker.ReleaseProbe()
		log.Error().Err(err).Msg("failed to mark modifier processing")
		return false
	}

	err = mod.Persist(ctx, mailbox)
	if err == nil {
		breaker.RecordSuccess()
		p.settleSuccess(ctx, rec, mod, log)
		return true
	}

	return p.settleFailure(ctx, rec, err, breaker, log)
}

func (p *Processor) settleSuccess(ctx context.Context, rec *domain.ModifierRecord, mod modifier.Modifier, log zerolog.Logger) {
	if err := p.deps.Queue.Complete(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to settle completed modifier")
		return
	}

	p.applyToCache(ctx, mod, log)

	if p.deps.Completed != nil {
		if err := p.deps.Completed.Put(ctx, rec, p.cfg.CompletedTTL); err != nil {
			log.Debug().Err(err).Msg("completed feedback record not cached")
		}
	}

	log.Info().Int("attempts", rec.Attempts).Msg("modifier persisted")
}

// settleFailure classifies the persist error. The return value follows
// replayOne's contract: true continues the entity walk.
func (p *Processor) settleFailure(ctx context.Context, rec *domain.ModifierRecord, cause error, breaker *resilience.Breaker, log zerolog.Logger) bool {
	switch {
	case apperr.IsAuth(cause):
		// The auth client already did its one refresh-and-retry. The
		// blocked attempt is handed back so re-auth does not burn the
		// retry budget.
		breaker.RecordSuccess()
		rec.Attempts--
		if err := p.deps.Queue.Reschedule(ctx, rec, cause, p.now()); err != nil {
			log.Error().Err(err).Msg("failed to park modifier for re-auth")
		}
		p.deps.Queue.PauseAccount(rec.AccountID)
		log.Warn().Str("account_id", rec.AccountID).Msg("account paused pending re-authentication")

		p.mu.Lock()
		fn := p.onReauth
		p.mu.Unlock()
		if fn != nil {
			fn(rec.AccountID)
		}
		return false

	case apperr.IsRetryable(cause):
		breaker.RecordFailure()

		if rec.Attempts >= rec.MaxAttempts {
			log.Warn().Err(cause).Int("attempts", rec.Attempts).Msg("retry budget exhausted")
			if err := p.deps.Queue.Fail(ctx, rec, cause); err != nil {
				log.Error().Err(err).Msg("failed to settle exhausted modifier")
			}
			return true
		}

		next := p.now().Add(p.backoff(rec.Attempts))
		if err := p.deps.Queue.Reschedule(ctx, rec, cause, next); err != nil {
			log.Error().Err(err).Msg("failed to reschedule modifier")
		}
		log.Debug().Err(cause).Time("next_attempt", next).Msg("transient failure, backing off")
		return false

	default:
		breaker.RecordSuccess()
		log.Warn().Err(cause).Msg("permanent failure")
		if err := p.deps.Queue.Fail(ctx, rec, cause); err != nil {
			log.Error().Err(err).Msg("failed to settle permanent failure")
		}
		return true
	}
}

// backoff returns the delay before attempt n+1: base doubled per attempt,
// capped, with up to 20% jitter.
func (p *Processor) backoff(attempts int) time.Duration {
	d := p.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.cfg.MaxBackoff {
			d = p.cfg.MaxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}

// =============================================================================
// Cache write-back
// =============================================================================

// applyToCache patches the cached document so it reflects the confirmed
// server state. A missing cache entry is not an error.
func (p *Processor) applyToCache(ctx context.Context, mod modifier.Modifier, log zerolog.Logger) {
	switch m := mod.(type) {
	case modifier.EmailModifier:
		email, err := p.deps.Emails.Get(ctx, mod.EntityID())
		if err != nil {
			return
		}
		updated := m.Modify(*email)
		updated.UpdatedAt = p.now().UTC()
		if err := p.deps.Emails.Upsert(ctx, &updated); err != nil {
			log.Warn().Err(err).Msg("email cache write-back failed")
		}

	case modifier.DraftModifier:
		if mod.Type() == domain.ModifierDraftDelete {
			if err := p.deps.Drafts.Delete(ctx, mod.EntityID()); err != nil {
				log.Warn().Err(err).Msg("draft cache delete failed")
			}
			return
		}
		draft, err := p.deps.Drafts.Get(ctx, mod.EntityID())
		if err != nil {
			draft = &domain.DraftDocument{
				ID:        mod.EntityID(),
				AccountID: mod.AccountID(),
				Provider:  mod.Provider(),
			}
		}
		updated := m.ModifyDraft(*draft)
		updated.UpdatedAt = p.now().UTC()
		if err := p.deps.Drafts.Upsert(ctx, &updated); err != nil {
			log.Warn().Err(err).Msg("draft cache write-back failed")
		}
	}
}
