package databases

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool creates a Postgres connection pool bounded per the §5 resource
// model and verifies connectivity before return. A bound that is zero or
// negative leaves pgxpool's own default in place; the min 1 / max 10
// defaults come from config.Load.
func OpenPool(ctx context.Context, dsn string, minConns, maxConns int32, maxLifetime, maxIdle time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if maxLifetime > 0 {
		cfg.MaxConnLifetime = maxLifetime
	}
	if maxIdle > 0 {
		cfg.MaxConnIdleTime = maxIdle
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
