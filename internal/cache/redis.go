package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnmchuo/llm-exec/internal/provider"
)

// RedisStore keeps cache entries in Redis so multiple gateway instances
// share one cache. TTL expiry is delegated to Redis; capacity is managed by
// the server's eviction policy, so Evictions is always zero here.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore creates a RedisStore. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "llmcache"
	}
	return &RedisStore{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*provider.Response, bool) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: redis get: %v", err)
		}
		s.misses.Add(1)
		return nil, false
	}

	var resp provider.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		_ = s.client.Del(ctx, s.redisKey(key)).Err()
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return &resp, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value *provider.Response, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.redisKey(key), data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) Size(ctx context.Context) int {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}

func (s *RedisStore) Metrics() Metrics {
	return Metrics{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
}
