// Package cli implements the coverstatsd commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/config"
	"github.com/cloo-solutions/coverstats/internal/database"
	"github.com/cloo-solutions/coverstats/internal/extraction"
	"github.com/cloo-solutions/coverstats/internal/logging"
	"github.com/cloo-solutions/coverstats/internal/metrics"
	"github.com/cloo-solutions/coverstats/internal/repository"
	"github.com/cloo-solutions/coverstats/internal/search"
	"github.com/cloo-solutions/coverstats/internal/target"
	"github.com/cloo-solutions/coverstats/internal/telemetry"
)

// env holds the process wide dependencies shared by every command.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	search  *search.Client

	pool  *pgxpool.Pool
	redis *redis.Client

	closers []func()
}

// newEnv loads configuration and builds the logger, telemetry and search
// client. Database and Redis connections are opened on demand.
func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	e := &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(),
	}
	e.closers = append(e.closers, func() { _ = logger.Sync() })

	// 10% sampling in production, everything elsewhere
	sampleRate := 1.0
	if cfg.IsProduction() {
		sampleRate = 0.1
	}
	e.closers = append(e.closers, telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
	}, logger))

	e.search = search.NewClient(cfg.SearchURL, cfg.SearchTimeout, e.metrics)
	return e, nil
}

// Close releases everything opened by the env in reverse order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *env) db(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := database.NewPool(ctx, database.Config{
		URL:              e.cfg.DatabaseURL,
		MaxConns:         e.cfg.DatabaseMaxConns,
		StatementTimeout: e.cfg.DatabaseStatementTimeout,
		MaxConnIdleTime:  10 * time.Minute,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	e.pool = pool
	e.closers = append(e.closers, pool.Close)
	return pool, nil
}

// slot returns the scroll slot: shared through Redis when configured,
// otherwise local to this process.
func (e *env) slot(ctx context.Context) (search.Slot, error) {
	if !e.cfg.HasRedis() {
		return search.NewMemorySlot(), nil
	}
	if e.redis == nil {
		client, err := search.NewRedisClient(ctx, e.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		e.redis = client
		e.closers = append(e.closers, func() { _ = client.Close() })
	}
	return search.NewRedisSlot(e.redis), nil
}

// extraction wires the extraction service and the store target factory.
func (e *env) extraction(ctx context.Context) (*extraction.Service, func() extraction.Target, error) {
	pool, err := e.db(ctx)
	if err != nil {
		return nil, nil, err
	}
	slot, err := e.slot(ctx)
	if err != nil {
		return nil, nil, err
	}

	entries := repository.NewEntryRepository(pool)
	watermarks := repository.NewWatermarkRepository(pool)
	tx := repository.NewTxRunner(pool)

	svc := extraction.NewService(
		search.NewCursor(e.search, e.logger),
		slot,
		entries,
		watermarks,
		tx,
		e.logger,
		e.metrics,
	)
	newTarget := func() extraction.Target {
		return target.NewStoreTarget(entries, tx)
	}
	return svc, newTarget, nil
}

// exporter wires an extraction service for file exports. Exports never
// read or write the store, so no database connection is opened.
func (e *env) exporter(ctx context.Context) (*extraction.Service, error) {
	slot, err := e.slot(ctx)
	if err != nil {
		return nil, err
	}
	return extraction.NewService(
		search.NewCursor(e.search, e.logger),
		slot,
		nil, nil, nil,
		e.logger,
		e.metrics,
	), nil
}
