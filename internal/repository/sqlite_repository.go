package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
  seq         INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  id          TEXT NOT NULL,
  data        TEXT NOT NULL,
  created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (entity_type, id)
);
CREATE INDEX IF NOT EXISTS idx_records_type_seq ON records (entity_type, seq);
`

// SQLiteRepository stores records as JSON text in a single SQLite table.
// SQLite allows one writer at a time; writeMu makes that explicit so a
// read-modify-write cycle never races another writer on the same database.
type SQLiteRepository struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteRepository ensures the schema exists and returns the repository.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, entityType, id string) (Record, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE entity_type = ? AND id = ?`,
		entityType, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeRow([]byte(raw))
}

func (r *SQLiteRepository) GetAll(ctx context.Context, entityType string, skip, limit int) ([]Record, error) {
	return r.Query(ctx, entityType, nil, skip, limit)
}

func (r *SQLiteRepository) Create(ctx context.Context, entityType string, rec Record) (Record, error) {
	id, err := prepareCreate(entityType, rec)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO records (entity_type, id, data) VALUES (?, ?, ?)
		 ON CONFLICT (entity_type, id) DO NOTHING`,
		entityType, id, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if n == 0 {
		return nil, ErrDuplicateID
	}
	return rec.clone(), nil
}

func (r *SQLiteRepository) Update(ctx context.Context, entityType, id string, partial Record) (Record, error) {
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}
	return r.Modify(ctx, entityType, id, func(Record) (Record, error) {
		return partial, nil
	})
}

func (r *SQLiteRepository) Modify(ctx context.Context, entityType, id string, fn ModifyFunc) (Record, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM records WHERE entity_type = ? AND id = ?`,
		entityType, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	current, err := decodeRow([]byte(raw))
	if err != nil {
		return nil, err
	}
	partial, err := fn(current.clone())
	if err != nil {
		return nil, err
	}
	if partial == nil {
		return current, nil
	}
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}

	updated := merge(current, partial)
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE entity_type = ? AND id = ?`,
		string(data), entityType, id,
	); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated.clone(), nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, entityType, id string) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE entity_type = ? AND id = ?`,
		entityType, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

// Query scans the entity type in insertion order and filters in Go, so
// equality follows the same JSON comparison as the in-memory backend.
func (r *SQLiteRepository) Query(ctx context.Context, entityType string, conditions Record, skip, limit int) ([]Record, error) {
	if err := checkConditions(conditions); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM records WHERE entity_type = ? ORDER BY seq ASC`,
		entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRow([]byte(raw))
		if err != nil {
			return nil, err
		}
		if matches(rec, conditions) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Window(out, skip, limit), nil
}

// PersistAll is a no-op: SQLite commits are durable.
func (r *SQLiteRepository) PersistAll(ctx context.Context) error { return nil }

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error { return r.db.Close() }
