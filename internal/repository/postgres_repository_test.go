package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-papers/migrations"
)

// TestPostgresRepositoryConformance runs against TEST_DATABASE_URL when set.
func TestPostgresRepositoryConformance(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := migrations.FS.ReadFile("000001_create_records.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	runConformance(t, func(t *testing.T) Repository {
		_, err := pool.Exec(ctx, `TRUNCATE records`)
		require.NoError(t, err)
		return NewPostgresRepository(pool)
	})
}

func TestConditionSQL(t *testing.T) {
	where, args, err := conditionSQL(Record{"user_uid": "u1", "score": nil, "status": "COMPLETED"}, []any{"paper"})
	require.NoError(t, err)

	assert.Equal(t,
		" AND COALESCE(data->$2::text, 'null'::jsonb) = 'null'::jsonb"+
			" AND data->$3::text = $4::jsonb"+
			" AND data->$5::text = $6::jsonb",
		where)
	assert.Equal(t, []any{"paper", "score", "status", []byte(`"COMPLETED"`), "user_uid", []byte(`"u1"`)}, args)

	where, args, err = conditionSQL(nil, []any{"paper"})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Equal(t, []any{"paper"}, args)
}
