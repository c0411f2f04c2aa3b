package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrental/internal/config"
	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	availabilityGenKey = "availability:gen"
	timeKeyLayout      = "20060102T150405Z"
)

// RedisAvailabilityCache stores ListAvailableCars results under a generation counter.
// Invalidate bumps the counter, which orphans every older entry until its TTL runs out.
type RedisAvailabilityCache struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisAvailabilityCache(client *redis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client}
}

func (r *RedisAvailabilityCache) key(ctx context.Context, start, end time.Time) (string, error) {
	gen, err := r.client.Get(ctx, availabilityGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read cache generation: %w", err)
	}
	return fmt.Sprintf("availability:%d:%s:%s", gen,
		start.UTC().Format(timeKeyLayout), end.UTC().Format(timeKeyLayout)), nil
}

func (r *RedisAvailabilityCache) GetAvailableCars(ctx context.Context, start, end time.Time) ([]models.CarSummary, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	key, err := r.key(ctx, start, end)
	if err != nil {
		return nil, false, err
	}
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get availability from redis: %w", err)
	}

	var cars []models.CarSummary
	if err := json.Unmarshal([]byte(val), &cars); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal availability: %w", err)
	}
	return cars, true, nil
}

func (r *RedisAvailabilityCache) SetAvailableCars(ctx context.Context, start, end time.Time, cars []models.CarSummary, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key, err := r.key(ctx, start, end)
	if err != nil {
		return err
	}
	if cars == nil {
		cars = []models.CarSummary{}
	}
	data, err := json.Marshal(cars)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}
	return nil
}

func (r *RedisAvailabilityCache) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Incr(ctx, availabilityGenKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed-window counter; true means the call is allowed.
func (r *RedisAvailabilityCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rk := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}
	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
