package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/config"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
	"github.com/verdance/verdance/platform/internal/postgres"
	"github.com/verdance/verdance/platform/internal/quota"
	"github.com/verdance/verdance/platform/internal/rank"
	"github.com/verdance/verdance/platform/internal/ratelimit"
	"github.com/verdance/verdance/platform/internal/recommend"
	"github.com/verdance/verdance/platform/internal/storage"
)

// errNoSource is returned when no catalog source is configured.
var errNoSource = errors.New("no catalog source configured: set DATABASE_URL, S3_ENDPOINT or CATALOG_FILE")

type healthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// backend holds the connectors opened for one command.
type backend struct {
	kind    string
	catalog catalog.Source
	users   catalog.UserSource // nil when the source has no user records
	pool    *pgxpool.Pool
	rdb     *goredis.Client
	health  []healthChecker
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the catalog source chosen by the environment:
// DATABASE_URL > S3_ENDPOINT > CATALOG_FILE. REDIS_ADDR is connected too
// when set.
func openBackend(ctx context.Context) (*backend, error) {
	b := &backend{}
	var err error
	switch {
	case os.Getenv("DATABASE_URL") != "":
		err = b.openPostgres(ctx, os.Getenv("DATABASE_URL"))
	case os.Getenv("S3_ENDPOINT") != "":
		err = b.openS3(ctx, s3ConfigFromEnv())
	case os.Getenv("CATALOG_FILE") != "":
		b.kind = "file"
		fs := catalog.NewFileSource(os.Getenv("CATALOG_FILE"), os.Getenv("USERS_FILE"))
		b.catalog, b.users = fs, fs
		slog.Info("file catalog source configured", "catalog", fs.CatalogPath, "users", fs.UsersPath)
	default:
		err = errNoSource
	}
	if err == nil && os.Getenv("REDIS_ADDR") != "" {
		err = b.openRedis(ctx)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) openPostgres(ctx context.Context, dbURL string) error {
	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	b.closers = append(b.closers, pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	b.kind = "postgres"
	b.pool = pool
	b.catalog = postgres.NewCatalogStore(pool)
	b.users = postgres.NewUserStore(pool)
	b.health = append(b.health, postgres.NewHealthChecker(pool))
	slog.Info("postgres catalog source initialized")
	return nil
}

// s3ConfigFromEnv reads S3 settings. Durations were checked by validateEnv.
func s3ConfigFromEnv() storage.S3Config {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		bucket = "verdance"
	}
	cfg := storage.S3Config{
		Endpoint:   os.Getenv("S3_ENDPOINT"),
		AccessKey:  os.Getenv("S3_ACCESS_KEY"),
		SecretKey:  os.Getenv("S3_SECRET_KEY"),
		Bucket:     bucket,
		CatalogKey: os.Getenv("S3_CATALOG_KEY"),
		UsersKey:   os.Getenv("S3_USERS_KEY"),
	}
	cfg.UseSSL, _ = strconv.ParseBool(os.Getenv("S3_USE_SSL"))
	if v := os.Getenv("S3_METADATA_TIMEOUT"); v != "" {
		cfg.MetadataTimeout, _ = time.ParseDuration(v)
	}
	if v := os.Getenv("S3_DATA_TIMEOUT"); v != "" {
		cfg.DataTimeout, _ = time.ParseDuration(v)
	}
	return cfg
}

func (b *backend) openS3(ctx context.Context, cfg storage.S3Config) error {
	source, err := storage.NewS3Source(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to S3: %w", err)
	}
	b.kind = "s3"
	b.catalog = source
	if cfg.UsersKey != "" {
		b.users = source
	}
	b.health = append(b.health, storage.NewHealthChecker(source))

	// Log effective timeouts (defaults if not explicitly configured).
	metaTimeout := cfg.MetadataTimeout
	if metaTimeout == 0 {
		metaTimeout = storage.DefaultMetadataTimeout
	}
	dataTimeout := cfg.DataTimeout
	if dataTimeout == 0 {
		dataTimeout = storage.DefaultDataTimeout
	}
	slog.Info("s3 catalog source initialized",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
		"metadata_timeout", metaTimeout,
		"data_timeout", dataTimeout,
	)
	return nil
}

func (b *backend) openRedis(ctx context.Context) error {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password:    os.Getenv("REDIS_PASSWORD"),
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping: %w", err)
	}
	b.rdb = rdb
	b.closers = append(b.closers, func() { _ = rdb.Close() })
	b.health = append(b.health, redisHealth{rdb: rdb})
	slog.Info("redis connected, quota and rate limits are shared")
	return nil
}

type redisHealth struct {
	rdb *goredis.Client
}

func (redisHealth) Name() string { return "redis" }

func (h redisHealth) HealthCheck(ctx context.Context) error {
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// newService wires the recommendation service over b. Quota counters and
// rate limits live in Redis when it is connected and in process otherwise.
func newService(ctx context.Context, cfg *config.Config, b *backend) (*recommend.Service, error) {
	logger := slog.Default()
	breaker := catalog.NewBreakerSource(b.catalog, b.users, cfg.Breaker, logger)

	var (
		enforcer quota.Enforcer
		build    func(domain.SubscriptionTier, ratelimit.Config) ratelimit.Limiter
	)
	if b.rdb != nil {
		enforcer = quota.NewRedisEnforcer(b.rdb, quota.RedisOptions{Limits: cfg.QuotaLimits()})
		build = func(_ domain.SubscriptionTier, c ratelimit.Config) ratelimit.Limiter {
			return ratelimit.NewRedisLimiter(b.rdb, c, ratelimit.DefaultRedisConfig())
		}
	} else {
		enforcer = quota.NewTracker(quota.TrackerOptions{Limits: cfg.QuotaLimits()})
		build = func(_ domain.SubscriptionTier, c ratelimit.Config) ratelimit.Limiter {
			return ratelimit.NewLocalLimiter(c, 0)
		}
	}

	var limiter *ratelimit.PerTier
	if tiers := cfg.RateLimitTiers(); tiers != nil {
		limiter = ratelimit.NewPerTier(tiers, build)
		b.closers = append(b.closers, func() { _ = limiter.Close() })
	}

	svc, err := recommend.New(cfg.Recommend(), recommend.Deps{
		Catalog:   breaker,
		Users:     breaker,
		Quota:     enforcer,
		RateLimit: limiter,
		Chain:     filter.NewChain(logger),
		Ranker:    rank.New(cfg.Weights),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Cache.JanitorInterval > 0 {
		svc.StartJanitors(ctx, cfg.Cache.JanitorInterval)
	}
	return svc, nil
}
