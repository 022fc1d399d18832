package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-papers/internal/database"
)

func TestSQLiteRepositoryConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Repository {
		ctx := context.Background()
		db, err := database.OpenSQLite(ctx, "file::memory:", zerolog.Nop())
		require.NoError(t, err)

		repo, err := NewSQLiteRepository(ctx, db)
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}
