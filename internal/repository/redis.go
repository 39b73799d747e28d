package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medbook/internal/config"
	"medbook/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisCalendarCache struct {
	client *redis.Client
	ttl    time.Duration
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

func NewRedisCalendarCache(client *redis.Client, ttl time.Duration) *RedisCalendarCache {
	return &RedisCalendarCache{
		client: client,
		ttl:    ttl,
	}
}

func dayViewKey(doctorID string, date time.Time) string {
	return fmt.Sprintf("day_view:%s:%s", doctorID, date.Format(models.DateLayout))
}

func (r *RedisCalendarCache) GetDayView(ctx context.Context, doctorID string, date time.Time) (*models.DayAvailability, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, dayViewKey(doctorID, date)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get day view from redis: %w", err)
	}

	var view models.DayAvailability
	if err := json.Unmarshal([]byte(val), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal day view: %w", err)
	}
	return &view, nil
}

func (r *RedisCalendarCache) SetDayView(ctx context.Context, doctorID string, date time.Time, view *models.DayAvailability) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal day view: %w", err)
	}
	if err := r.client.Set(ctx, dayViewKey(doctorID, date), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set day view in redis: %w", err)
	}
	return nil
}

func (r *RedisCalendarCache) InvalidateDay(ctx context.Context, doctorID string, date time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, dayViewKey(doctorID, date)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate day view: %w", err)
	}
	return nil
}

func (r *RedisCalendarCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
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

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
