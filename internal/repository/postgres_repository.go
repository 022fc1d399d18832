package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores records as JSONB rows in the records table.
// Updates are single atomic statements and Modify locks the row with
// SELECT ... FOR UPDATE for the duration of the cycle.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func decodeRow(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, entityType, id string) (Record, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM records WHERE entity_type = $1 AND id = $2`,
		entityType, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeRow(raw)
}

func (r *PostgresRepository) GetAll(ctx context.Context, entityType string, skip, limit int) ([]Record, error) {
	return r.Query(ctx, entityType, nil, skip, limit)
}

func (r *PostgresRepository) Create(ctx context.Context, entityType string, rec Record) (Record, error) {
	id, err := prepareCreate(entityType, rec)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	var raw []byte
	err = r.pool.QueryRow(ctx,
		`INSERT INTO records (entity_type, id, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (entity_type, id) DO NOTHING
		 RETURNING data`,
		entityType, id, data,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateID
	}
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return decodeRow(raw)
}

func (r *PostgresRepository) Update(ctx context.Context, entityType, id string, partial Record) (Record, error) {
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return nil, fmt.Errorf("encode partial: %w", err)
	}

	var raw []byte
	err = r.pool.QueryRow(ctx,
		`UPDATE records
		 SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE entity_type = $1 AND id = $2
		 RETURNING data`,
		entityType, id, data,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return decodeRow(raw)
}

func (r *PostgresRepository) Modify(ctx context.Context, entityType, id string, fn ModifyFunc) (Record, error) {
	var result Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM records WHERE entity_type = $1 AND id = $2 FOR UPDATE`,
			entityType, id,
		).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock record: %w", err)
		}

		current, err := decodeRow(raw)
		if err != nil {
			return err
		}
		partial, err := fn(current.clone())
		if err != nil {
			return err
		}
		if partial == nil {
			result = current
			return nil
		}
		if err := checkPartial(entityType, id, partial); err != nil {
			return err
		}

		data, err := json.Marshal(partial)
		if err != nil {
			return fmt.Errorf("encode partial: %w", err)
		}
		err = tx.QueryRow(ctx,
			`UPDATE records
			 SET data = data || $3::jsonb, updated_at = NOW()
			 WHERE entity_type = $1 AND id = $2
			 RETURNING data`,
			entityType, id, data,
		).Scan(&raw)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		result, err = decodeRow(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, entityType, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM records WHERE entity_type = $1 AND id = $2`,
		entityType, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Query compares each condition against the top-level JSONB field. A nil
// condition matches a JSON null or a missing field, as in the other backends.
func (r *PostgresRepository) Query(ctx context.Context, entityType string, conditions Record, skip, limit int) ([]Record, error) {
	if err := checkConditions(conditions); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	where, args, err := conditionSQL(conditions, []any{entityType})
	if err != nil {
		return nil, err
	}
	args = append(args, skip, lim)
	n := len(args)

	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT data FROM records
		 WHERE entity_type = $1%s
		 ORDER BY seq ASC
		 OFFSET $%d LIMIT $%d`, where, n-1, n),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// conditionSQL renders one equality test per condition, appending its
// parameters to args. Keys are sorted so the statement text is stable.
func conditionSQL(conditions Record, args []any) (string, []any, error) {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		args = append(args, k)
		key := len(args)
		v := conditions[k]
		if v == nil {
			fmt.Fprintf(&b, " AND COALESCE(data->$%d::text, 'null'::jsonb) = 'null'::jsonb", key)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("encode condition %s: %w", k, err)
		}
		args = append(args, raw)
		fmt.Fprintf(&b, " AND data->$%d::text = $%d::jsonb", key, len(args))
	}
	return b.String(), args, nil
}

// PersistAll is a no-op: every statement is durable once committed.
func (r *PostgresRepository) PersistAll(ctx context.Context) error { return nil }

// Close is a no-op; the pool is owned by the caller.
func (r *PostgresRepository) Close() error { return nil }
