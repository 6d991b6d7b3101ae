package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/market"
)

// SeriesStore caches fetched price series. Both the in-process TTL cache
// and the Redis store satisfy it; the Redis form lets several dashboard
// processes share one five-minute snapshot.
type SeriesStore interface {
	GetSeries(ctx context.Context, key string) (*market.PriceSeries, bool)
	SetSeries(ctx context.Context, key string, series *market.PriceSeries, ttl time.Duration)
}

// RedisStore is a Redis-backed SeriesStore with JSON encoding.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "macroscope:series"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// GetSeries fetches and decodes a cached series; any error counts as a miss.
func (r *RedisStore) GetSeries(ctx context.Context, key string) (*market.PriceSeries, bool) {
	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("redis series read failed")
		}
		return nil, false
	}

	var series market.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis series decode failed")
		return nil, false
	}
	return &series, true
}

// SetSeries encodes and stores a series with the given TTL. Failures are
// logged and swallowed: the cache is an optimization, not a dependency.
func (r *RedisStore) SetSeries(ctx context.Context, key string, series *market.PriceSeries, ttl time.Duration) {
	data, err := json.Marshal(series)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis series encode failed")
		return
	}
	if err := r.client.Set(ctx, r.fullKey(key), data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis series write failed")
	}
}

func (r *RedisStore) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// MemoryStore adapts TTLCache to the SeriesStore interface.
type MemoryStore struct {
	cache *TTLCache
}

// NewMemoryStore creates an in-process SeriesStore.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: NewTTLCache(cleanupInterval)}
}

func (m *MemoryStore) GetSeries(_ context.Context, key string) (*market.PriceSeries, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	series, ok := v.(*market.PriceSeries)
	return series, ok
}

func (m *MemoryStore) SetSeries(_ context.Context, key string, series *market.PriceSeries, ttl time.Duration) {
	m.cache.Set(key, series, ttl)
}

// Stats exposes the underlying cache statistics.
func (m *MemoryStore) Stats() Stats {
	return m.cache.GetStats()
}

// Close shuts down the underlying cache.
func (m *MemoryStore) Close() {
	m.cache.Close()
}
