package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJSONRepository(t *testing.T, dir string) *JSONRepository {
	t.Helper()
	repo, err := NewJSONRepository(dir, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestJSONRepositoryConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Repository {
		repo := newTestJSONRepository(t, t.TempDir())
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestJSONRepositoryReplaysJournalAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := newTestJSONRepository(t, dir)
	_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, EntityPaper, paperRecord("p2", "u1", "IN_PROGRESS"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, EntityPaper, "p1", Record{"status": "COMPLETED"})
	require.NoError(t, err)
	_, err = repo.Delete(ctx, EntityPaper, "p2")
	require.NoError(t, err)

	// Simulate a crash: no PersistAll, the journal is the only durable state.
	_, statErr := os.Stat(filepath.Join(dir, "paper.json"))
	require.True(t, os.IsNotExist(statErr))

	reopened := newTestJSONRepository(t, dir)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx, EntityPaper, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p1", all[0].ID(EntityPaper))
	assert.Equal(t, "COMPLETED", all[0]["status"])
}

func TestJSONRepositoryPersistAllCompactsJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := newTestJSONRepository(t, dir)
	_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
	require.NoError(t, err)
	require.NoError(t, repo.PersistAll(ctx))

	journal, err := os.ReadFile(filepath.Join(dir, "paper.journal"))
	require.NoError(t, err)
	assert.Empty(t, journal)

	snapshot, err := os.ReadFile(filepath.Join(dir, "paper.json"))
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), `"paper_id": "p1"`)

	_, err = repo.Update(ctx, EntityPaper, "p1", Record{"status": "COMPLETED"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened := newTestJSONRepository(t, dir)
	defer reopened.Close()
	got, err := reopened.GetByID(ctx, EntityPaper, "p1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", got["status"])
}

func TestJSONRepositorySkipsTornJournalLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := newTestJSONRepository(t, dir)
	_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(dir, "paper.journal"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"put","id":"p2","rec`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := newTestJSONRepository(t, dir)
	defer reopened.Close()
	all, err := reopened.GetAll(ctx, EntityPaper, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p1", all[0].ID(EntityPaper))
}
