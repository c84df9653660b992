package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pharmadesk/backend/internal/domain"
)

const reportVersionKey = "report:version"

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

func (c *RedisReportCache) Get(ctx context.Context, key string) (*domain.DashboardReport, bool, error) {
	versioned, err := c.versionedKey(ctx, key)
	if err != nil {
		return nil, false, err
	}

	val, err := c.client.Get(ctx, versioned).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.DashboardReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value *domain.DashboardReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	versioned, err := c.versionedKey(ctx, key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, versioned, payload, ttl).Err()
}

// Invalidate bumps the version counter instead of scanning for report keys.
// Stale entries expire on their own TTL.
func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, reportVersionKey).Err()
}

func (c *RedisReportCache) versionedKey(ctx context.Context, key string) (string, error) {
	version, err := c.client.Get(ctx, reportVersionKey).Int64()
	if err == redis.Nil {
		version = 0
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("report:v%d:%s", version, key), nil
}
