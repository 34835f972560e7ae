package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// tombstone is stored in place of a snapshot by Invalidate. It is not valid
// task JSON.
const tombstone = "-"

// redisClient is the part of *redis.Client used by RedisTaskCache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisTaskCache stores tasks as JSON strings with a fixed TTL.
type RedisTaskCache struct {
	client       redisClient
	ttl          time.Duration
	tombstoneTTL time.Duration
}

func NewRedisTaskCache(client *redis.Client, ttl time.Duration) *RedisTaskCache {
	return &RedisTaskCache{client: client, ttl: ttl, tombstoneTTL: TombstoneTTL}
}

// NewRedisClient opens a client for addr and pings it once.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *RedisTaskCache) Get(ctx context.Context, userID, taskID int64) (*models.Task, error) {
	val, err := c.client.Get(ctx, taskKey(userID, taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if val == tombstone {
		return nil, ErrMiss
	}

	task := &models.Task{}
	if err := json.Unmarshal([]byte(val), task); err != nil {
		return nil, fmt.Errorf("decode cached task: %w", err)
	}
	if task.UserID != userID || task.ID != taskID {
		return nil, ErrMiss
	}
	return task, nil
}

// Set stores task with SET NX, so it is a no-op while a snapshot or a
// tombstone occupies the key.
func (c *RedisTaskCache) Set(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := c.client.SetNX(ctx, taskKey(task.UserID, task.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (c *RedisTaskCache) Invalidate(ctx context.Context, userID, taskID int64) error {
	if err := c.client.Set(ctx, taskKey(userID, taskID), tombstone, c.tombstoneTTL).Err(); err != nil {
		return fmt.Errorf("redis set tombstone: %w", err)
	}
	return nil
}
