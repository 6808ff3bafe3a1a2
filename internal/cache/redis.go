// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache is a Redis-backed implementation of Cache. It lets several
// archiver instances share one metadata cache.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

const keyPrefix = "pv:meta:"

// NewRedis creates a Redis-backed cache and verifies connectivity.
func NewRedis(config RedisConfig, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis cache")

	return &RedisCache{client: client, logger: logger}, nil
}

// Get retrieves metadata from the Redis cache.
func (c *RedisCache) Get(url string) (Meta, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, keyPrefix+url).Bytes()
	if err == redis.Nil {
		c.stats.misses.Add(1)
		return Meta{}, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("redis get failed")
		c.stats.misses.Add(1)
		return Meta{}, false
	}

	var meta Meta
	if err := json.Unmarshal(val, &meta); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("json unmarshal failed")
		c.stats.misses.Add(1)
		return Meta{}, false
	}

	c.stats.hits.Add(1)
	return meta, true
}

// Set stores metadata in the Redis cache with TTL.
func (c *RedisCache) Set(url string, meta Meta, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(meta)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("json marshal failed")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+url, data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

// Delete removes a URL from the Redis cache.
func (c *RedisCache) Delete(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, keyPrefix+url).Err(); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("redis delete failed")
	}
}

// Stats returns cache statistics.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis dbsize failed")
		size = 0
	}

	return Stats{
		Hits:   c.stats.hits.Load(),
		Misses: c.stats.misses.Load(),
		Sets:   c.stats.sets.Load(),
		Size:   int(size),
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// HealthCheck checks if Redis is available.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
