package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoFactory returns an empty repository for one subtest.
type repoFactory func(t *testing.T) Repository

func paperRecord(id, user, status string) Record {
	return Record{
		"paper_id":   id,
		"user_uid":   user,
		"difficulty": "easy",
		"status":     status,
		"score":      nil,
		"answers":    map[string]any{},
	}
}

// runConformance checks the contract every backend must satisfy.
func runConformance(t *testing.T, newRepo repoFactory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)
		assert.Equal(t, "p1", created.ID(EntityPaper))

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got["user_uid"])
		assert.Equal(t, "IN_PROGRESS", got["status"])
		assert.Nil(t, got["score"])
	})

	t.Run("duplicate id", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, EntityPaper, paperRecord("p1", "u2", "IN_PROGRESS"))
		require.ErrorIs(t, err, ErrDuplicateID)

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got["user_uid"])
	})

	t.Run("missing id", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, Record{"user_uid": "u1"})
		require.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, EntityPaper, "nope")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = repo.Update(ctx, EntityPaper, "nope", Record{"status": "COMPLETED"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		updated, err := repo.Update(ctx, EntityPaper, "p1", Record{"status": "COMPLETED", "score": 4.5})
		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", updated["status"])
		assert.Equal(t, 4.5, updated["score"])
		assert.Equal(t, "u1", updated["user_uid"])

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", got["status"])
		assert.Equal(t, "easy", got["difficulty"])
	})

	t.Run("id is immutable", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		_, err = repo.Update(ctx, EntityPaper, "p1", Record{"paper_id": "p2"})
		require.ErrorIs(t, err, ErrIDImmutable)

		_, err = repo.Update(ctx, EntityPaper, "p1", Record{"paper_id": "p1", "status": "COMPLETED"})
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		ok, err := repo.Delete(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Delete(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetByID(ctx, EntityPaper, "p1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get all pages in insertion order", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			_, err := repo.Create(ctx, EntityPaper, paperRecord(fmt.Sprintf("p%d", i), "u1", "IN_PROGRESS"))
			require.NoError(t, err)
		}

		all, err := repo.GetAll(ctx, EntityPaper, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, rec := range all {
			assert.Equal(t, fmt.Sprintf("p%d", i), rec.ID(EntityPaper))
		}

		page, err := repo.GetAll(ctx, EntityPaper, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "p1", page[0].ID(EntityPaper))
		assert.Equal(t, "p2", page[1].ID(EntityPaper))

		past, err := repo.GetAll(ctx, EntityPaper, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, past)
	})

	t.Run("entity types are separate", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("same", "u1", "IN_PROGRESS"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, EntityPaperEvent, Record{"id": "same", "kind": "paper.created"})
		require.NoError(t, err)

		papers, err := repo.GetAll(ctx, EntityPaper, 0, 0)
		require.NoError(t, err)
		assert.Len(t, papers, 1)
	})

	t.Run("query by equality", func(t *testing.T) {
		repo := newRepo(t)
		seed := []Record{
			paperRecord("a", "u1", "IN_PROGRESS"),
			paperRecord("b", "u2", "COMPLETED"),
			paperRecord("c", "u1", "COMPLETED"),
			paperRecord("d", "u1", "COMPLETED"),
		}
		for _, rec := range seed {
			_, err := repo.Create(ctx, EntityPaper, rec)
			require.NoError(t, err)
		}

		got, err := repo.Query(ctx, EntityPaper, Record{"user_uid": "u1", "status": "COMPLETED"}, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].ID(EntityPaper))
		assert.Equal(t, "d", got[1].ID(EntityPaper))

		page, err := repo.Query(ctx, EntityPaper, Record{"user_uid": "u1"}, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "c", page[0].ID(EntityPaper))

		none, err := repo.Query(ctx, EntityPaper, Record{"user_uid": "u9"}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("query conditions are scalar equality", func(t *testing.T) {
		repo := newRepo(t)
		withScore := paperRecord("a", "u1", "COMPLETED")
		withScore["score"] = 3
		withScore["tags"] = []any{1, 2}
		noScore := paperRecord("b", "u1", "COMPLETED")
		delete(noScore, "score")
		for _, rec := range []Record{withScore, noScore, paperRecord("c", "u1", "COMPLETED")} {
			_, err := repo.Create(ctx, EntityPaper, rec)
			require.NoError(t, err)
		}

		// nil matches both a JSON null and a missing field.
		got, err := repo.Query(ctx, EntityPaper, Record{"score": nil}, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID(EntityPaper))
		assert.Equal(t, "c", got[1].ID(EntityPaper))

		got, err = repo.Query(ctx, EntityPaper, Record{"score": 3.0}, 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID(EntityPaper))

		_, err = repo.Query(ctx, EntityPaper, Record{"tags": []any{1}}, 0, 0)
		require.ErrorIs(t, err, ErrInvalidCondition)
		_, err = repo.Query(ctx, EntityPaper, Record{"answers": map[string]any{}}, 0, 0)
		require.ErrorIs(t, err, ErrInvalidCondition)
	})

	t.Run("modify error aborts", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = repo.Modify(ctx, EntityPaper, "p1", func(Record) (Record, error) {
			return Record{"status": "COMPLETED"}, boom
		})
		require.ErrorIs(t, err, boom)

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.Equal(t, "IN_PROGRESS", got["status"])
	})

	t.Run("concurrent modify loses no update", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		const writers = 10
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Modify(ctx, EntityPaper, "p1", func(cur Record) (Record, error) {
					answers, _ := cur["answers"].(map[string]any)
					next := make(map[string]any, len(answers)+1)
					for k, v := range answers {
						next[k] = v
					}
					next[fmt.Sprintf("q%d", i)] = []any{"x"}
					return Record{"answers": next}, nil
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		answers, ok := got["answers"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, answers, writers)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		got["status"] = "MUTATED"

		again, err := repo.GetByID(ctx, EntityPaper, "p1")
		require.NoError(t, err)
		assert.Equal(t, "IN_PROGRESS", again["status"])
	})

	t.Run("persist all", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
		require.NoError(t, err)
		require.NoError(t, repo.PersistAll(ctx))
	})
}
