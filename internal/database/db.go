package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ufo-trading-engine/config"
)

// DB wraps the PostgreSQL pool used for the trade archive.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens the pool and runs migrations. Returns nil cleanly when the
// database is disabled in configuration.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	db := &DB{Pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Printf("[DATABASE] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS closed_trades (
		id            BIGSERIAL PRIMARY KEY,
		ticket        BIGINT NOT NULL,
		symbol        TEXT NOT NULL,
		direction     TEXT NOT NULL,
		volume        DOUBLE PRECISION NOT NULL,
		entry_price   DOUBLE PRECISION NOT NULL,
		open_time     TIMESTAMPTZ NOT NULL,
		close_time    TIMESTAMPTZ NOT NULL,
		pnl           DOUBLE PRECISION NOT NULL,
		peak_pnl      DOUBLE PRECISION NOT NULL,
		parent_ticket BIGINT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_closed_trades_ticket ON closed_trades (ticket)`,
	`CREATE INDEX IF NOT EXISTS idx_closed_trades_close_time ON closed_trades (close_time)`,
	`CREATE TABLE IF NOT EXISTS cycle_summaries (
		id              BIGSERIAL PRIMARY KEY,
		cycle_id        TEXT NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL,
		trades_opened   INT NOT NULL,
		trades_closed   INT NOT NULL,
		reinforcements  INT NOT NULL,
		open_positions  INT NOT NULL,
		equity          DOUBLE PRECISION NOT NULL,
		unrealized_pnl  DOUBLE PRECISION NOT NULL,
		realized_pnl    DOUBLE PRECISION NOT NULL,
		market_state    TEXT NOT NULL,
		skipped         BOOLEAN NOT NULL DEFAULT FALSE,
		skip_reason     TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycle_summaries_started ON cycle_summaries (started_at)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
