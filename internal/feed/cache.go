package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultTrendingCacheTTL is how long a computed trending page is reused.
const DefaultTrendingCacheTTL = 60 * time.Second

// TrendingCache stores computed trending pages keyed by (limit, window).
type TrendingCache interface {
	Get(ctx context.Context, limit, windowHours int) (*TrendingPage, bool, error)
	Set(ctx context.Context, limit, windowHours int, page *TrendingPage) error
}

// NopTrendingCache never hits.
type NopTrendingCache struct{}

// Get implements TrendingCache.
func (NopTrendingCache) Get(context.Context, int, int) (*TrendingPage, bool, error) {
	return nil, false, nil
}

// Set implements TrendingCache.
func (NopTrendingCache) Set(context.Context, int, int, *TrendingPage) error {
	return nil
}

// RedisTrendingCache caches trending pages as JSON strings in Redis.
type RedisTrendingCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTrendingCache creates a Redis-backed trending cache. A
// non-positive ttl uses DefaultTrendingCacheTTL.
func NewRedisTrendingCache(client redis.UniversalClient, ttl time.Duration) *RedisTrendingCache {
	if ttl <= 0 {
		ttl = DefaultTrendingCacheTTL
	}
	return &RedisTrendingCache{client: client, ttl: ttl}
}

func trendingKey(limit, windowHours int) string {
	return fmt.Sprintf("agrolink:feed:trending:%d:%d", limit, windowHours)
}

// Get implements TrendingCache.
func (c *RedisTrendingCache) Get(ctx context.Context, limit, windowHours int) (*TrendingPage, bool, error) {
	data, err := c.client.Get(ctx, trendingKey(limit, windowHours)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read trending cache: %w", err)
	}

	var page TrendingPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false, fmt.Errorf("failed to decode trending cache: %w", err)
	}
	return &page, true, nil
}

// Set implements TrendingCache.
func (c *RedisTrendingCache) Set(ctx context.Context, limit, windowHours int, page *TrendingPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode trending page: %w", err)
	}
	if err := c.client.Set(ctx, trendingKey(limit, windowHours), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write trending cache: %w", err)
	}
	return nil
}
