package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicalmerge/internal/config"
	"github.com/ehr/clinicalmerge/internal/domain/audit"
	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
	"github.com/ehr/clinicalmerge/internal/domain/conflict"
	"github.com/ehr/clinicalmerge/internal/domain/convert"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/merge"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/review"
	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/internal/platform/db"
	"github.com/ehr/clinicalmerge/internal/platform/lock"
	"github.com/ehr/clinicalmerge/internal/platform/middleware"
	"github.com/ehr/clinicalmerge/internal/platform/notify"
	"github.com/ehr/clinicalmerge/internal/platform/redisclient"
)

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	store   record.Store
	audit   *audit.Logger
	reviews *review.Service
	merges  *merge.Service
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// buildApp connects the configured backends and wires the merge pipeline.
// The memory store needs no external service.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		reviewRepo review.Repository
		auditSink  audit.Sink
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = record.NewStorePG(pool)
		reviewRepo = review.NewRepoPG(pool)
		auditSink = audit.NewPGSink(pool)
		logger.Info().Msg("connected to database")
	default:
		a.store = record.NewMemoryStore()
		reviewRepo = review.NewMemoryRepo()
		auditSink = audit.NewMemorySink()
		logger.Warn().Msg("using in-memory store; merged records are lost on exit")
	}

	rdb, err := redisclient.New(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = rdb

	policy := conflict.DefaultPolicy()
	if cfg.MergePolicyFile != "" {
		if policy, err = conflict.LoadPolicy(cfg.MergePolicyFile); err != nil {
			a.Close()
			return nil, err
		}
	}

	locale, err := clinicaldate.ParseLocale(cfg.DateLocale)
	if err != nil {
		a.Close()
		return nil, err
	}
	dates := clinicaldate.Normalizer{Locale: locale}
	router, err := convert.NewRouter(dates, logger, convert.All()...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.audit = audit.NewLogger(auditSink, logger)

	gate := review.DefaultGate()
	gate.PrimaryProducers = cfg.PrimaryProducers
	a.reviews = review.NewService(reviewRepo, gate, a.audit)

	opts := merge.DefaultOptions()
	opts.Validation = extraction.ValidationOptions{
		ResourceCounts:  cfg.ValidateResourceCounts,
		ConfidenceRange: cfg.ValidateConfidenceRange,
	}
	opts.Policy = policy
	opts.TimeBudget = cfg.MergeTimeBudget
	opts.Retry.MaxAttempts = cfg.MergeMaxAttempts
	opts.Retry.InitialBackoff = cfg.MergeInitialBackoff

	deps := merge.Deps{
		Store:    a.store,
		Router:   router,
		Detector: conflict.NewDetector(dates),
		Reviews:  a.reviews,
		Auditor:  a.audit,
		Logger:   logger,
	}
	if rdb != nil {
		deps.Locker = lock.NewRedis(rdb, lock.RedisOptions{TTL: cfg.LockTTL})
		deps.Publisher = notify.NewRedis(rdb, notify.ChannelMergeResults)
		logger.Info().Msg("using redis for patient locks and result notifications")
	}
	a.merges = merge.NewService(deps, opts)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) healthChecks() []db.Check {
	var checks []db.Check
	if a.pool != nil {
		checks = append(checks, db.PoolCheck(a.pool))
	}
	if a.redis != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// newServer builds the HTTP surface over a.
func newServer(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.MergeBodyLimit))

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", db.HealthHandler(a.healthChecks()...))

	api := e.Group("/api/v1")
	decisionLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})

	merge.NewHandler(a.merges, a.reviews).RegisterRoutes(api)
	record.NewHandler(a.store).RegisterRoutes(api)
	review.NewHandler(a.reviews, decisionLimit).RegisterRoutes(api)
	audit.NewHandler(a.audit).RegisterRoutes(api)

	return e
}
