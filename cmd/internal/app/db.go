package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbConnectInitialBackoff = 250 * time.Millisecond
	dbConnectMaxBackoff     = 5 * time.Second
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity,
// retrying the first ping with exponential backoff (LIBRA_DB_CONNECT_RETRIES).
// Table creation is left to the stores (EnsureSchema).
func NewDBPool(ctx context.Context, cfg Config, log Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	retries := cfg.DBConnectRetries
	if retries < 0 {
		retries = 0
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(dbConnectInitialBackoff),
				backoff.WithMaxInterval(dbConnectMaxBackoff),
			),
			uint64(retries), // #nosec G115 -- clamped to >= 0 above.
		),
		ctx,
	)

	err = backoff.RetryNotify(func() error {
		return PingDB(ctx, pool, 3*time.Second)
	}, policy, func(err error, d time.Duration) {
		if log != nil {
			log.Warn("db.connect.retry", "next_in", d.String(), "err", err)
		}
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("db connect: %w", err)
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
