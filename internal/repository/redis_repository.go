package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-papers/internal/config"
)

const (
	// RedisModifyRetries bounds optimistic WATCH/MULTI retries per Modify.
	RedisModifyRetries = 32
	redisMGetChunk     = 200
)

// RedisRepository stores each record as a JSON string and keeps a sorted
// set of ids per entity type, scored by an insertion sequence.
type RedisRepository struct {
	rdb *redis.Client
}

// NewRedisRepository creates a new RedisRepository.
func NewRedisRepository(rdb *redis.Client) *RedisRepository {
	return &RedisRepository{rdb: rdb}
}

func (r *RedisRepository) GetByID(ctx context.Context, entityType, id string) (Record, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.RecordKey(entityType, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return decodeRow(raw)
}

func (r *RedisRepository) GetAll(ctx context.Context, entityType string, skip, limit int) ([]Record, error) {
	if skip < 0 {
		skip = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(skip + limit - 1)
	}
	ids, err := r.rdb.ZRange(ctx, config.CacheKey.RecordIndexKey(entityType), int64(skip), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return r.load(ctx, entityType, ids)
}

// load fetches records in id order, skipping ids whose key has vanished.
func (r *RedisRepository) load(ctx context.Context, entityType string, ids []string) ([]Record, error) {
	out := make([]Record, 0, len(ids))
	for start := 0; start < len(ids); start += redisMGetChunk {
		end := start + redisMGetChunk
		if end > len(ids) {
			end = len(ids)
		}
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, config.CacheKey.RecordKey(entityType, id))
		}
		vals, err := r.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			rec, err := decodeRow([]byte(s))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisRepository) Create(ctx context.Context, entityType string, rec Record) (Record, error) {
	id, err := prepareCreate(entityType, rec)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	key := config.CacheKey.RecordKey(entityType, id)
	seq, err := r.rdb.Incr(ctx, config.CacheKey.RecordSeqKey(entityType)).Result()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if !created {
		return nil, ErrDuplicateID
	}
	if err := r.rdb.ZAdd(ctx, config.CacheKey.RecordIndexKey(entityType), redis.Z{
		Score:  float64(seq),
		Member: id,
	}).Err(); err != nil {
		r.rdb.Del(ctx, key)
		return nil, fmt.Errorf("index record: %w", err)
	}
	return rec.clone(), nil
}

func (r *RedisRepository) Update(ctx context.Context, entityType, id string, partial Record) (Record, error) {
	if err := checkPartial(entityType, id, partial); err != nil {
		return nil, err
	}
	return r.Modify(ctx, entityType, id, func(Record) (Record, error) {
		return partial, nil
	})
}

// Modify uses WATCH/MULTI so a concurrent write to the same key aborts the
// transaction, which is then retried from a fresh read.
func (r *RedisRepository) Modify(ctx context.Context, entityType, id string, fn ModifyFunc) (Record, error) {
	key := config.CacheKey.RecordKey(entityType, id)

	for attempt := 0; attempt < RedisModifyRetries; attempt++ {
		var result Record
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("get record: %w", err)
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

			updated := merge(current, partial)
			data, err := json.Marshal(updated)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			if err != nil {
				return err
			}
			result = updated.clone()
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConflict
}

func (r *RedisRepository) Delete(ctx context.Context, entityType, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, config.CacheKey.RecordKey(entityType, id))
		pipe.ZRem(ctx, config.CacheKey.RecordIndexKey(entityType), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return del.Val() > 0, nil
}

func (r *RedisRepository) Query(ctx context.Context, entityType string, conditions Record, skip, limit int) ([]Record, error) {
	if err := checkConditions(conditions); err != nil {
		return nil, err
	}
	all, err := r.GetAll(ctx, entityType, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if matches(rec, conditions) {
			out = append(out, rec)
		}
	}
	return Window(out, skip, limit), nil
}

// PersistAll is a no-op; durability is the Redis server's concern.
func (r *RedisRepository) PersistAll(ctx context.Context) error { return nil }

// Close is a no-op; the client is owned by the caller.
func (r *RedisRepository) Close() error { return nil }
