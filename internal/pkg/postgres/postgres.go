// Package postgres opens the portal's PostgreSQL pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dodocare/dodocare/internal/config"
	"github.com/dodocare/dodocare/internal/pkg/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName is reported to the server so portal connections show up in pg_stat_activity.
const ApplicationName = "dodocare"

const maxBackoff = 16 * time.Second

// Connect opens a pool and waits until the database answers a ping. Each
// attempt is bounded by cfg.ConnectTimeout; failed attempts are retried with
// exponential backoff up to cfg.ConnectAttempts times.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	attempts := max(cfg.ConnectAttempts, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := open(ctx, poolConfig, cfg.ConnectTimeout)
		if err == nil {
			metrics.DBConnectAttempts.WithLabelValues("success").Inc()
			slog.Info("connected to database",
				"attempts", attempt,
				"max_conns", poolConfig.MaxConns,
			)
			return pool, nil
		}

		metrics.DBConnectAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		if attempt == attempts {
			break
		}

		backoff := Backoff(attempt)
		slog.Warn("database not reachable, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connect to database: %w", errors.Join(ctx.Err(), lastErr))
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

// Backoff returns the wait before retry number attempt: 1s, 2s, 4s and so on,
// capped at 16s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Duration(1<<(attempt-1))*time.Second, maxBackoff)
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pc.MinConns = int32(min(cfg.MaxIdleConns, int(pc.MaxConns)))
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return pc, nil
}

func open(ctx context.Context, pc *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
