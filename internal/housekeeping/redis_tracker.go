package housekeeping

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/internal/config"
)

// RedisTracker keeps the last activity of every room in one sorted set
// scored by unix milliseconds.
type RedisTracker struct {
	client redis.UniversalClient
	key    string
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisTracker(client redis.UniversalClient, key string) *RedisTracker {
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Touch(ctx context.Context, room string, at time.Time) error {
	if err := t.client.ZAdd(ctx, t.key, redis.Z{Score: float64(at.UnixMilli()), Member: room}).Err(); err != nil {
		return fmt.Errorf("failed to record room activity: %w", err)
	}
	return nil
}

// Idle returns rooms whose last activity is before cutoff.
func (t *RedisTracker) Idle(ctx context.Context, cutoff time.Time) ([]string, error) {
	rooms, err := t.client.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room activity: %w", err)
	}
	return rooms, nil
}

func (t *RedisTracker) Remove(ctx context.Context, room string) error {
	if err := t.client.ZRem(ctx, t.key, room).Err(); err != nil {
		return fmt.Errorf("failed to remove room activity: %w", err)
	}
	return nil
}
