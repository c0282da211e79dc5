package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pinphoto-server/internal/changes"
	"github.com/stacklok/pinphoto-server/internal/config"
	"github.com/stacklok/pinphoto-server/internal/store"
	"github.com/stacklok/pinphoto-server/internal/store/autosave"
	"github.com/stacklok/pinphoto-server/internal/store/db"
)

// DatabaseFactory creates the PostgreSQL-backed store.
type DatabaseFactory struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
// A nil tracer disables query spans.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return &DatabaseFactory{pool: pool, tracer: tracer}, nil
}

// CreateStore creates a store on the factory's connection pool
func (d *DatabaseFactory) CreateStore(_ context.Context, bus *changes.Bus[changes.Batch]) (store.Store, error) {
	slog.Debug("Creating database-backed store")

	opts := []db.Option{db.WithBus(bus)}
	if d.tracer != nil {
		opts = append(opts, db.WithTracer(d.tracer))
		slog.Debug("Database store tracing enabled")
	}
	return db.New(d.pool, opts...), nil
}

// CreateAutosaver returns nil; every database mutation commits on its own
func (*DatabaseFactory) CreateAutosaver(_ context.Context) (autosave.Autosaver, error) {
	return nil, nil
}

// Cleanup closes the database connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a database connection pool with proper configuration.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	// Fail fast on unreachable databases rather than on the first request
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
