// Package cache implements the result cache on Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	portout "triage_server/core/port/out"
)

// =============================================================================
// Redis Result Cache Adapter
// =============================================================================

const (
	classificationKeyPrefix = "triage:classification:"
	extractionKeyPrefix     = "triage:extraction:"

	defaultTTL = 24 * time.Hour
)

// RedisCache implements out.ResultCache on Redis. Entries expire on their
// own; reclassification invalidates eagerly so stale classifications are
// never served across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis result cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient creates and pings a Redis client.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

var _ portout.ResultCache = (*RedisCache)(nil)

// GetClassification returns the cached classification, or nil on a miss.
func (c *RedisCache) GetClassification(ctx context.Context, emailID string) (*domain.ClassificationResult, error) {
	data, err := c.client.Get(ctx, classificationKeyPrefix+emailID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result domain.ClassificationResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		// A corrupt entry is a miss, not a failure.
		return nil, nil
	}
	return &result, nil
}

// SetClassification stores the classification with the configured TTL.
func (c *RedisCache) SetClassification(ctx context.Context, result *domain.ClassificationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, classificationKeyPrefix+result.EmailID, data, c.ttl).Err()
}

// InvalidateEmail drops every cached entry for the email.
func (c *RedisCache) InvalidateEmail(ctx context.Context, emailID string) error {
	return c.client.Del(ctx,
		classificationKeyPrefix+emailID,
		extractionKeyPrefix+emailID,
	).Err()
}
