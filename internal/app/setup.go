// Package app wires the application's components from configuration:
// database pool, cache, embedder, LLM client, pipeline, and ingestion.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/jobradar/lmi/db"
	"github.com/jobradar/lmi/internal/cache"
	"github.com/jobradar/lmi/internal/config"
	"github.com/jobradar/lmi/internal/embed"
	"github.com/jobradar/lmi/internal/groq"
	"github.com/jobradar/lmi/internal/ingest"
	"github.com/jobradar/lmi/internal/job"
	"github.com/jobradar/lmi/internal/log"
	"github.com/jobradar/lmi/internal/rag"
)

// App bundles the wired application components.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Cache    cache.Cache
	Store    *job.Store
	Pipeline *rag.Pipeline
	Ingest   *ingest.Service

	cleanups []func()
}

// Setup initializes all components from configuration. Migrations run
// before the pool is opened. The returned App must be Closed.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, cleanup, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.cleanups = append(a.cleanups, cleanup)

	a.Cache, err = provideCache(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Store = job.NewStore(pool, logger)

	embedder, err := embed.NewHuggingFace(
		cfg.HuggingFaceAPIKey,
		cfg.EmbeddingModel,
		config.EmbeddingDimension,
		embed.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	llm, err := groq.NewClient(
		cfg.GroqAPIKey,
		cfg.GroqModel,
		float64(cfg.GroqTemperature),
		cfg.GroqMaxTokens,
		groq.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating groq client: %w", err)
	}

	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	retriever := rag.NewRetriever(a.Store, embedder, cfg.RetrievalTopK, logger)
	generator := rag.NewGenerator(llm, logger)
	a.Pipeline = rag.NewPipeline(retriever, generator, a.Store, a.Cache, cfg.CacheTTL, logger)
	a.Ingest = ingest.NewService(provideFetchers(cfg, logger), a.Store, embedder, chunker, logger)

	return a, nil
}

// Close releases resources in reverse setup order.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// providePool runs migrations, then opens a pool with pgvector types
// registered on every connection.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideCache returns a Redis cache when configured, otherwise the
// in-memory fallback.
func provideCache(ctx context.Context, cfg *config.Config, a *App) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		a.Logger.Info("no redis configured, using in-memory cache")
		mem := cache.NewMemory()
		a.cleanups = append(a.cleanups, func() { _ = mem.Close() })
		return mem, nil
	}

	rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	a.Logger.Info("redis cache connected", "addr", cfg.RedisAddr)
	a.cleanups = append(a.cleanups, func() { _ = rc.Close() })
	return rc, nil
}

// provideFetchers builds the enabled job-board fetchers. RemoteOK needs no
// credentials and is always on; Adzuna requires app credentials.
func provideFetchers(cfg *config.Config, logger log.Logger) []ingest.Fetcher {
	client := &http.Client{Timeout: 30 * time.Second}

	fetchers := []ingest.Fetcher{
		ingest.NewRemoteOK("", client, logger),
	}
	if cfg.AdzunaAppID != "" && cfg.AdzunaAppKey != "" {
		fetchers = append(fetchers, ingest.NewAdzuna(cfg.AdzunaAppID, cfg.AdzunaAppKey, "", client, logger))
		logger.Info("adzuna fetcher enabled")
	}
	logger.Info("job fetchers initialized", "count", len(fetchers))
	return fetchers
}
