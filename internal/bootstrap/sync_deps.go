// Package bootstrap wires the engine's adapters and services together.
package bootstrap

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"mailsync/adapter/out/cache"
	"mailsync/adapter/out/mongodb"
	"mailsync/adapter/out/persistence"
	"mailsync/adapter/out/provider"
	"mailsync/adapter/out/realtime"
	"mailsync/config"
	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/core/service/auth"
	"mailsync/core/service/processor"
	"mailsync/core/service/queue"
	syncsvc "mailsync/core/service/sync"
	"mailsync/infra/database"
	"mailsync/pkg/ratelimit"
	"mailsync/pkg/resilience"
)

// Dependencies holds every wired component. Construction order matters:
// stores, then services, then the event plumbing between them.
type Dependencies struct {
	Config *config.Config
	Log    zerolog.Logger

	// Connections (nil in dev mode, where memory adapters substitute)
	DB    *sqlx.DB
	Redis *redis.Client
	Mongo *mongo.Client

	// Repositories
	ModifierRepo out.ModifierRepository
	ConflictRepo out.ConflictRepository
	EmailRepo    out.EmailRepository
	DraftRepo    out.DraftRepository
	TokenStore   out.TokenStore
	Completed    out.CompletedCache

	// Services
	Tokens     *auth.TokenService
	Factory    out.MailboxFactory
	Queue      *queue.Service
	Intake     *queue.Intake
	Buckets    *ratelimit.Registry
	Breakers   *resilience.Registry
	Processor  *processor.Processor
	Reconciler *syncsvc.Reconciler
	Resolver   *syncsvc.Resolver
	Realtime   *realtime.SSEAdapter
}

// NewDependencies builds the full dependency graph. The returned cleanup
// closes every connection; call it after the processor has shut down.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Log: log}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// -------------------------------------------------------------------------
	// Stores
	// -------------------------------------------------------------------------

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.DB = db
		cleanups = append(cleanups, func() { db.Close() })

		deps.ModifierRepo = persistence.NewModifierAdapter(db)
		deps.ConflictRepo = persistence.NewConflictAdapter(db)
		deps.TokenStore = persistence.NewTokenAdapter(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory queue store")
		deps.ModifierRepo = persistence.NewMemoryModifierRepository()
		deps.ConflictRepo = persistence.NewMemoryConflictRepository()
		deps.TokenStore = persistence.NewMemoryTokenStore()
	}

	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Mongo = client
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		})

		db := client.Database(cfg.MongoDBName)
		emailCache := mongodb.NewEmailCacheAdapter(db)
		draftCache := mongodb.NewDraftCacheAdapter(db)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := emailCache.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("email cache index creation failed")
		}
		if err := draftCache.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("draft cache index creation failed")
		}

		deps.EmailRepo = emailCache
		deps.DraftRepo = draftCache
	} else {
		log.Warn().Msg("MONGODB_URL not set, using in-memory mail cache")
		deps.EmailRepo = persistence.NewMemoryEmailRepository()
		deps.DraftRepo = persistence.NewMemoryDraftRepository()
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = client
		cleanups = append(cleanups, func() { client.Close() })
		deps.Completed = cache.NewCompletedCacheAdapter(client)
	} else {
		log.Warn().Msg("REDIS_URL not set, completed-modifier feedback disabled")
	}

	// -------------------------------------------------------------------------
	// Services
	// -------------------------------------------------------------------------

	deps.Tokens = auth.NewTokenService(deps.TokenStore, cfg.OAuthConfigs(), log)
	deps.Factory = provider.NewFactory(deps.Tokens)

	deps.Buckets = ratelimit.NewRegistry(nil)
	deps.Buckets.SetProviderConfig(string(domain.ProviderGmail), &ratelimit.BucketConfig{
		MaxTokens:        cfg.GmailMaxTokens,
		RefillRatePerSec: cfg.GmailRefillRate,
	})
	deps.Buckets.SetProviderConfig(string(domain.ProviderOutlook), &ratelimit.BucketConfig{
		MaxTokens:        cfg.OutlookMaxTokens,
		RefillRatePerSec: cfg.OutlookRefillRate,
	})

	deps.Breakers = resilience.NewRegistry(&resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		FailureWindow:    cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
		MaxCooldown:      cfg.BreakerMaxCooldown,
	})

	deps.Queue = queue.NewService(deps.ModifierRepo, log)
	deps.Intake = queue.NewIntake(deps.Queue, deps.EmailRepo, deps.DraftRepo, log)
	deps.Realtime = realtime.NewSSEAdapter(log)

	deps.Processor = processor.New(processor.Deps{
		Queue:     deps.Queue,
		Factory:   deps.Factory,
		Emails:    deps.EmailRepo,
		Drafts:    deps.DraftRepo,
		Buckets:   deps.Buckets,
		Breakers:  deps.Breakers,
		Completed: deps.Completed,
	}, &processor.Config{
		MaxWorkers:      cfg.ProcessorWorkers,
		BatchSize:       cfg.ProcessorBatchSize,
		BaseBackoff:     cfg.BaseBackoff,
		MaxBackoff:      cfg.MaxBackoff,
		RetryInterval:   cfg.RetryInterval,
		CompletedTTL:    cfg.CompletedTTL,
		FailedRetention: cfg.FailedRetention,
		CleanupInterval: cfg.CleanupInterval,
	}, log)

	deps.Reconciler = syncsvc.NewReconciler(deps.Queue, deps.EmailRepo, deps.ConflictRepo, deps.Factory, log)
	deps.Resolver = syncsvc.NewResolver(deps.Queue, deps.EmailRepo, deps.ConflictRepo, log)

	deps.wireEvents()

	// Records stranded mid-attempt by a previous crash go back to pending.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := deps.ModifierRepo.ResetProcessing(ctx); err != nil {
		log.Warn().Err(err).Msg("processing-record recovery failed")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("recovered in-flight modifiers from previous run")
	}

	return deps, cleanup, nil
}

// wireEvents connects the services' callbacks: queue transitions reach SSE
// subscribers, enqueue and resolution nudge the processor, auth failures
// surface as reauth events.
func (d *Dependencies) wireEvents() {
	d.Queue.Subscribe(func(ev *domain.QueueEvent) {
		switch {
		case ev.Modifier != nil:
			d.Realtime.Push(context.Background(), ev.Modifier.AccountID, ev)
		case ev.Conflict != nil:
			d.Realtime.Push(context.Background(), ev.Conflict.AccountID, ev)
		}
	})

	d.Intake.OnEnqueued(d.Processor.Trigger)
	d.Resolver.OnResolved(func(entityID string) { d.Processor.Trigger() })

	d.Processor.OnReauthRequired(func(accountID string) {
		d.Realtime.Push(context.Background(), accountID, &domain.QueueEvent{
			Kind: domain.QueueEventReauthRequired,
			At:   time.Now().UTC(),
		})
	})
}
