package repository

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-papers/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisRepositoryConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Repository {
		_, client := newTestRedis(t)
		return NewRedisRepository(client)
	})
}

func TestRedisRepositoryKeyLayout(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)
	repo := NewRedisRepository(client)

	_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
	require.NoError(t, err)

	assert.True(t, server.Exists(config.CacheKey.RecordKey(EntityPaper, "p1")))
	members, err := server.ZMembers(config.CacheKey.RecordIndexKey(EntityPaper))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, members)

	ok, err := repo.Delete(ctx, EntityPaper, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, server.Exists(config.CacheKey.RecordKey(EntityPaper, "p1")))
}

func TestRedisRepositorySkipsDanglingIndexEntries(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)
	repo := NewRedisRepository(client)

	_, err := repo.Create(ctx, EntityPaper, paperRecord("p1", "u1", "IN_PROGRESS"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, EntityPaper, paperRecord("p2", "u1", "IN_PROGRESS"))
	require.NoError(t, err)

	server.Del(config.CacheKey.RecordKey(EntityPaper, "p1"))

	all, err := repo.GetAll(ctx, EntityPaper, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p2", all[0].ID(EntityPaper))
}
