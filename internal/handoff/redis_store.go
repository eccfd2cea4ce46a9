package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "handoff:call:"
	redisIndexKey  = "handoff:index"
	redisTTL       = 7 * 24 * time.Hour
)

// RedisStore keeps each handoff as a JSON value and indexes call IDs in a
// sorted set scored by creation time.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Store keeping handoffs in Redis with a fixed TTL.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("handoff: redis client required")
	}
	return &RedisStore{rdb: rdb, ttl: redisTTL}
}

func redisKey(callID string) string {
	return redisKeyPrefix + callID
}

func (s *RedisStore) Save(ctx context.Context, h Handoff) error {
	if strings.TrimSpace(h.CallID) == "" {
		return fmt.Errorf("handoff: call_id required")
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("handoff: marshal: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisKey(h.CallID), data, s.ttl)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(h.CreatedAt.UnixMilli()), Member: h.CallID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("handoff: redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (*Handoff, error) {
	data, err := s.rdb.Get(ctx, redisKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("handoff: redis get: %w", err)
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("handoff: unmarshal: %w", err)
	}
	return &h, nil
}

// List walks the index newest first. Index members whose value has expired
// are removed as they are found.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Handoff, error) {
	limit = normalizeLimit(limit)
	ids, err := s.rdb.ZRevRange(ctx, redisIndexKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("handoff: redis index: %w", err)
	}
	out := make([]Handoff, 0, len(ids))
	var stale []any
	for _, id := range ids {
		h, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, redisIndexKey, stale...).Err(); err != nil {
			return out, fmt.Errorf("handoff: redis prune index: %w", err)
		}
	}
	return out, nil
}
