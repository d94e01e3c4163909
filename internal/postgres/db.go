package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatementTimeout caps every statement server-side, so a stuck lock wait on a
// cart or order row ends as a persistence error instead of hanging checkout.
const StatementTimeout = 5 * time.Second

// Connect opens a pool tagged with the service name (visible in
// pg_stat_activity) and pings it.
func Connect(ctx context.Context, dsn, service string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storage.Wrap("parse postgres dsn", err)
	}
	cfg.MaxConns = 16
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	params := cfg.ConnConfig.RuntimeParams
	if service != "" {
		params["application_name"] = service
	}
	params["statement_timeout"] = StatementTimeout.String()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storage.Wrap("open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("ping postgres", err)
	}
	return pool, nil
}
