package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long a claim is remembered. Meta stops
// redelivering well within a week.
const DefaultRedisTTL = 7 * 24 * time.Hour

// RedisProcessedStore claims event ids with SET NX.
type RedisProcessedStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisProcessedStore(client redis.UniversalClient, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisProcessedStore{client: client, prefix: "autolead:processed:", ttl: ttl}
}

func (s *RedisProcessedStore) key(channel, eventID string) string {
	return s.prefix + channel + ":" + eventID
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, channel, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(channel, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisProcessedStore) Release(ctx context.Context, channel, eventID string) error {
	if err := s.client.Del(ctx, s.key(channel, eventID)).Err(); err != nil {
		return fmt.Errorf("events: redis del: %w", err)
	}
	return nil
}

var _ Deduper = (*RedisProcessedStore)(nil)
