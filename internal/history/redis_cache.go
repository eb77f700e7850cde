package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) (*Page, error)
	Set(ctx context.Context, key string, page *Page, ttl time.Duration) error
	Delete(ctx context.Context, room string) error
}

type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache uses an already connected client; the caller owns it.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Key(room, before string, limit int) string {
	if before == "" {
		before = "latest"
	}
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, room, before, limit)
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Page, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &page, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, page *Page, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Delete removes every cached page of room.
func (c *RedisCache) Delete(ctx context.Context, room string) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", c.prefix, room), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
