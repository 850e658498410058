package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"invengine/internal/domain/dashboard"
	"invengine/pkg/logger"
)

// RedisDashboardCache implements dashboard.Cache over a Redis client,
// grounded on duclm31099-bookstore-backend's internal/infrastructure/
// cache/redis.go RedisCache: JSON-encoded values, TTL set natively on
// the key, read failures degrade to a cache miss rather than an error
// so a Redis outage never blocks a dashboard read.
type RedisDashboardCache struct {
	client *redis.Client
}

// NewRedisDashboardCache constructs a client against addr/password/db
// with the same pool tuning the teacher's RedisCache applied.
func NewRedisDashboardCache(addr, password string, db int) *RedisDashboardCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisDashboardCache{client: client}
}

// Ping verifies connectivity; callers use this at startup, not on the
// read path.
func (c *RedisDashboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisDashboardCache) Close() error {
	return c.client.Close()
}

func (c *RedisDashboardCache) Get(ctx context.Context, key string) (*dashboard.Entry, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logger.Warn(ctx, "dashboard redis get failed", "key", key, "error", err)
		return nil, nil
	}

	var entry dashboard.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warn(ctx, "dashboard redis entry corrupted, evicting", "key", key, "error", err)
		_ = c.client.Del(ctx, key).Err()
		return nil, nil
	}
	return &entry, nil
}

func (c *RedisDashboardCache) Set(ctx context.Context, key string, entry dashboard.Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dashboard entry: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		logger.Warn(ctx, "dashboard redis set failed", "key", key, "error", err)
	}
	return nil
}

// MarkStale loads, flags, and rewrites each entry with its remaining
// TTL preserved, so a stale entry still expires at its original time
// rather than living forever. Missing keys are silently skipped: there
// is nothing to mark stale if the entry was never computed or already
// expired.
func (c *RedisDashboardCache) MarkStale(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		ttl, err := c.client.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			continue
		}
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var entry dashboard.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		entry.IsStale = true
		updated, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if err := c.client.Set(ctx, key, updated, ttl).Err(); err != nil {
			logger.Warn(ctx, "dashboard redis mark-stale failed", "key", key, "error", err)
		}
	}
	return nil
}

var _ dashboard.Cache = (*RedisDashboardCache)(nil)
