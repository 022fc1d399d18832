package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// NewPostgresPool creates a PostgreSQL connection pool and waits for the
// server to answer a ping, retrying a few times while it starts up.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxDBConns
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("PostgreSQL not ready, retrying")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}

	log.Info().
		Int32("max_conns", cfg.MaxDBConns).
		Str("host", poolCfg.ConnConfig.Host).
		Msg("PostgreSQL connected")

	return pool, nil
}
