// Package cache is a Redis read-through cache for lookup results. Entries are
// namespaced by a generation counter; bumping it invalidates everything at once
// without scanning keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"postcodejp/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultPrefix = "postcodejp:"

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Open connects to addr and pings it. It returns nil, nil when addr is empty,
// which callers treat as "cache disabled".
func Open(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Int("db", db).Dur("ttl", ttl).Msg("lookup cache enabled")
	return New(client, ttl), nil
}

func New(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: defaultPrefix}
}

func (c *RedisCache) generationKey() string { return c.prefix + "generation" }

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) key(ctx context.Context, key string) (string, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", fmt.Errorf("cache: read generation: %w", err)
	}
	return c.prefix + strconv.FormatInt(gen, 10) + ":" + key, nil
}

// Get decodes the cached value for key into dst.
func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	full, err := c.key(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	data, err := c.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	full, err := c.key(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, full, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Invalidate moves to a new generation. Old entries expire through their TTL.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.generationKey()).Result()
	if err != nil {
		return fmt.Errorf("cache: bump generation: %w", err)
	}
	log.Debug().Int64("generation", gen).Msg("lookup cache invalidated")
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
