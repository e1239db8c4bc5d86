package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shopbill/backend/internal/domain"
)

const analyticsKeyPrefix = "reports:analytics:"

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetAnalytics(ctx context.Context, key string) (*domain.SalesAnalytics, bool, error) {
	val, err := c.client.Get(ctx, analyticsKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var analytics domain.SalesAnalytics
	if err := json.Unmarshal([]byte(val), &analytics); err != nil {
		return nil, false, err
	}
	return &analytics, true, nil
}

func (c *RedisReportCache) SetAnalytics(ctx context.Context, key string, value *domain.SalesAnalytics, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, analyticsKeyPrefix+key, payload, ttl).Err()
}

// Invalidate drops every cached analytics entry. Called after each recorded
// sale so reports never serve stale totals beyond the TTL.
func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, analyticsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
