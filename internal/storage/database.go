package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"ScanCleanup/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_cleanup_cycles (
	run_id         TEXT        NOT NULL,
	cycle          INTEGER     NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	active_count   INTEGER     NOT NULL,
	paused_count   INTEGER     NOT NULL,
	queue_ceiling  INTEGER     NOT NULL,
	slots          INTEGER     NOT NULL,
	resumed_ids    BIGINT[]    NOT NULL DEFAULT '{}',
	failed_ids     BIGINT[]    NOT NULL DEFAULT '{}',
	expected_hosts INTEGER     NOT NULL,
	drained        BOOLEAN     NOT NULL,
	duration       DOUBLE PRECISION NOT NULL,
	next_run_at    TIMESTAMPTZ,
	PRIMARY KEY (run_id, cycle)
);
CREATE INDEX IF NOT EXISTS scan_cleanup_cycles_recorded_at_idx ON scan_cleanup_cycles (recorded_at DESC);
`

func NewPostgres(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("Failed to open connection to postgres", "error", err)
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		log.Error("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	log.Info("Successfully connected to postgres database", "host", cfg.Host, "dbname", cfg.DBName)
	return pool, nil
}

// EnsureSchema creates the cycle history table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
