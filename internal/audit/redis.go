package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/finjudge/internal/domain"
)

// DefaultRedisPrefix namespaces every key the Redis store writes.
const DefaultRedisPrefix = "finjudge"

// RedisStore keeps each trace under <prefix>:trace:<run>:<task>, written with
// SETNX so the first writer wins, and indexes task ids per run in the list
// <prefix>:run:<run>:tasks.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store over client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// traceKey joins run and task with ':'. Run ids never contain ':', so a key
// maps back to exactly one (run, task) pair.
func (s *RedisStore) traceKey(runID, taskID string) string {
	return fmt.Sprintf("%s:trace:%s:%s", s.prefix, runID, taskID)
}

func (s *RedisStore) indexKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:tasks", s.prefix, runID)
}

func (s *RedisStore) manifestKey(runID string) string {
	return fmt.Sprintf("%s:manifest:%s", s.prefix, runID)
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, t *domain.Trace) error {
	if err := domain.ValidateRunID(t.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	key := s.traceKey(t.RunID, t.TaskID)
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrTraceExists, t.RunID, t.TaskID)
	}
	if err := s.client.RPush(ctx, s.indexKey(t.RunID), t.TaskID).Err(); err != nil {
		// Without its index entry the trace would be invisible to List, so
		// release the key and let the caller retry the whole write.
		_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
		return fmt.Errorf("redis index %s: %w", t.RunID, err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, runID, taskID string) (*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.traceKey(runID, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s/%s", ErrTraceNotFound, runID, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", runID, taskID, err)
	}
	return decodeTrace(data)
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, runID string) ([]*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	ids, err := s.client.LRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", runID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.traceKey(runID, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", runID, err)
	}
	out := make([]*domain.Trace, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		t, err := decodeTrace([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutManifest implements ManifestStore.
func (s *RedisStore) PutManifest(ctx context.Context, m domain.RunManifest) error {
	if err := domain.ValidateRunID(m.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.client.Set(ctx, s.manifestKey(m.RunID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set manifest %s: %w", m.RunID, err)
	}
	return nil
}

// GetManifest implements ManifestStore.
func (s *RedisStore) GetManifest(ctx context.Context, runID string) (domain.RunManifest, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return domain.RunManifest{}, err
	}
	data, err := s.client.Get(ctx, s.manifestKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunManifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, runID)
	}
	if err != nil {
		return domain.RunManifest{}, fmt.Errorf("redis get manifest %s: %w", runID, err)
	}
	var m domain.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.RunManifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
