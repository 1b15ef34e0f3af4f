package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/redis/go-redis/v9"
)

// RedisPriceCache is Tier 1: one JSON value per (ticker, interval) with a
// per-key TTL. Expiry is left entirely to Redis.
type RedisPriceCache struct {
	client redis.UniversalClient
	prefix string
	Logger *logger.Logger
}

// NewRedisPriceCache creates a cache over an existing client.
func NewRedisPriceCache(client redis.UniversalClient, prefix string, log *logger.Logger) *RedisPriceCache {
	return &RedisPriceCache{client: client, prefix: prefix, Logger: log}
}

func (c *RedisPriceCache) key(ticker string, interval models.Interval) string {
	return fmt.Sprintf("%s:price:%s:%s", c.prefix, models.NormalizeTicker(ticker), interval)
}

// Get returns the cached point; found is false on a miss.
func (c *RedisPriceCache) Get(ctx context.Context, ticker string, interval models.Interval) (models.MPricePoint, bool, error) {
	data, err := c.client.Get(ctx, c.key(ticker, interval)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.MPricePoint{}, false, nil
	}
	if err != nil {
		return models.MPricePoint{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var p models.MPricePoint
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is dropped and reported as a miss.
		c.Logger.Warning("Dropping undecodable cache entry %s: %v", c.key(ticker, interval), err)
		_ = c.client.Del(ctx, c.key(ticker, interval)).Err()
		return models.MPricePoint{}, false, nil
	}
	p.Timestamp = p.Timestamp.UTC()
	return p, true, nil
}

// Set stores a point with the given TTL.
func (c *RedisPriceCache) Set(ctx context.Context, ticker string, interval models.Interval, point models.MPricePoint, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", ttl)
	}
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.key(ticker, interval), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Invalidate removes the entry if present.
func (c *RedisPriceCache) Invalidate(ctx context.Context, ticker string, interval models.Interval) error {
	if err := c.client.Del(ctx, c.key(ticker, interval)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}
