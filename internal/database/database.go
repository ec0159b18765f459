// Package database provides the PostgreSQL engine and the session factory
// that hands out units of work bound to it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"

	"gitlab.com/yelinaung/appdb/internal/config"
	"gitlab.com/yelinaung/appdb/internal/logger"
)

// Engine is a configured connection target backed by a pgx pool. Every
// connection is pinged before it leaves the pool. An Engine is immutable
// after construction and safe for concurrent use.
type Engine struct {
	pool       *pgxpool.Pool
	db         sessionBackend
	url        string
	prePing    bool
	logQueries bool

	sqlOnce sync.Once
	sqlDB   *sql.DB
	orm     *bun.DB
}

type engineOptions struct {
	pool    config.PoolConfig
	tracers []pgx.QueryTracer
}

// Option customizes NewEngine.
type Option func(*engineOptions)

// WithPoolConfig applies pool tuning. Zero fields keep the pgx defaults.
func WithPoolConfig(pc config.PoolConfig) Option {
	return func(o *engineOptions) {
		o.pool = pc
	}
}

// WithTracer adds a query tracer next to the OpenTelemetry one.
func WithTracer(t pgx.QueryTracer) Option {
	return func(o *engineOptions) {
		o.tracers = append(o.tracers, t)
	}
}

// NewEngine builds an engine for databaseURL without opening a connection.
// Connection problems surface on first use; only a string the driver cannot
// parse is reported here.
func NewEngine(ctx context.Context, databaseURL string, opts ...Option) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	applyPoolConfig(poolCfg, o.pool)

	// Ping on every acquire, not only after the default idle threshold. The
	// pool destroys a connection whose ping fails and acquires another.
	poolCfg.ShouldPing = alwaysPing

	tracers := []pgx.QueryTracer{otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())}
	if o.pool.LogQueries {
		tracers = append(tracers, newQueryLogTracer())
	}
	tracers = append(tracers, o.tracers...)
	if len(tracers) == 1 {
		poolCfg.ConnConfig.Tracer = tracers[0]
	} else {
		poolCfg.ConnConfig.Tracer = multitracer.New(tracers...)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	return &Engine{
		pool:       pool,
		db:         pool,
		url:        logger.RedactDatabaseURL(databaseURL),
		prePing:    true,
		logQueries: o.pool.LogQueries,
	}, nil
}

func alwaysPing(context.Context, pgxpool.ShouldPingParams) bool {
	return true
}

func applyPoolConfig(cfg *pgxpool.Config, pc config.PoolConfig) {
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}
}

// Connect establishes a connection pool to the PostgreSQL database and
// verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Engine, error) {
	engine, err := NewEngine(ctx, databaseURL, opts...)
	if err != nil {
		return nil, err
	}

	if err := engine.Ping(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return engine, nil
}

// Ping acquires a connection and checks it is alive.
func (e *Engine) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// Pool returns the underlying pgx pool.
func (e *Engine) Pool() *pgxpool.Pool {
	return e.pool
}

// URL returns the connection string with the password redacted.
func (e *Engine) URL() string {
	return e.url
}

// PrePing reports whether connections are checked before use. Always true.
func (e *Engine) PrePing() bool {
	return e.prePing
}

// Stats returns a snapshot of pool statistics.
func (e *Engine) Stats() *pgxpool.Stat {
	return e.pool.Stat()
}

// RecordStats exports pool statistics through the global OpenTelemetry
// meter provider.
func (e *Engine) RecordStats() error {
	if err := otelpgx.RecordStats(e.pool); err != nil {
		return fmt.Errorf("unable to record pool stats: %w", err)
	}
	return nil
}

// Close releases every connection. Sessions still open will fail on next use.
func (e *Engine) Close() {
	// Settles sqlOnce so a concurrent ORM call cannot open a handle mid-close.
	e.sqlOnce.Do(func() {})
	if e.sqlDB != nil {
		_ = e.orm.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}
