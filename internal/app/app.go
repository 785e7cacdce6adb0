// Package app wires the shared dependencies of the server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"postcodejp/internal/cache"
	"postcodejp/internal/config"
	"postcodejp/internal/fetcher"
	"postcodejp/internal/importer"
	"postcodejp/internal/logging"
	"postcodejp/internal/repository"
	"postcodejp/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config  config.Config
	Pool    *pgxpool.Pool
	Repo    *repository.Repository
	Fetcher *fetcher.Fetcher
	Engine  *importer.Engine
	Cache   *cache.RedisCache
	Sync    *service.SyncService
	Lookup  *service.LookupService
}

// Load reads the configuration in dir and installs the global logger.
func Load(dir string) (config.Config, error) {
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return cfg, err
	}
	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// New connects to the database, ensures the schema and fails runs that were
// left running by a process that died.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := pgxpool.New(ctx, cfg.DBSource)
	if err != nil {
		return nil, fmt.Errorf("app: connect db: %w", err)
	}
	a := &App{Config: cfg, Pool: pool, Repo: repository.NewRepository(pool)}

	if err := a.Repo.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if n, err := a.Repo.FailStaleRuns(ctx, time.Now().Add(-cfg.StaleRunAfter)); err != nil {
		log.Warn().Err(err).Msg("failed to clean up stale sync runs")
	} else if n > 0 {
		log.Warn().Int64("count", n).Msg("marked interrupted sync runs as failed")
	}

	a.Fetcher, err = fetcher.New(fetcher.Config{
		DataDir:        cfg.DataDir,
		Timeout:        cfg.DownloadTimeout,
		Retries:        cfg.DownloadRetries,
		AddURLTemplate: cfg.DiffAddURLPattern,
		DelURLTemplate: cfg.DiffDelURLPattern,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = importer.NewEngine(a.Repo)

	a.Cache, err = cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, lookups will not be cached")
		a.Cache = nil
	}

	// a nil *RedisCache must not reach the services as a non-nil interface
	var (
		invalidator service.Invalidator
		lookupCache service.LookupCache
	)
	if a.Cache != nil {
		invalidator, lookupCache = a.Cache, a.Cache
	}
	sources := service.SyncSources{AddressURL: cfg.AddressURL, OfficeURL: cfg.OfficeURL}
	a.Sync = service.NewSyncService(a.Fetcher, a.Engine, a.Repo, sources, invalidator)
	a.Lookup = service.NewLookupService(a.Repo, lookupCache)
	return a, nil
}

// Close releases the cache client and the pool.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	a.Pool.Close()
}
