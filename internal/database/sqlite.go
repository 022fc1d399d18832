package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // driver: sqlite
)

// OpenSQLite opens a SQLite database through the cgo-free modernc driver.
// In-memory databases are private to a connection, so the pool is pinned to
// a single connection for them.
func OpenSQLite(ctx context.Context, dsn string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("SQLite opened")
	return db, nil
}
