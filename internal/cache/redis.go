package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskd/internal/models"
	"taskd/pkg/logger"
)

const listKeyPrefix = "tasks:list:"

// Options configures the Redis connection.
type Options struct {
	URL      string
	PoolSize int
	TTL      time.Duration
}

// Client caches task lists in Redis. A nil *Client is a valid, disabled
// cache: every read misses and every write is dropped.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects and pings. On failure the caller decides whether to run
// without a cache.
func New(ctx context.Context, opts Options) (*Client, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info(ctx, "Redis client initialized", "pool_size", ro.PoolSize)
	return NewWithClient(rdb, opts.TTL), nil
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// ListKey returns the cache key for a list filter.
func ListKey(filter string) string {
	return listKeyPrefix + filter
}

// GetTasks reads a cached list. Returns (nil, false) on miss or error.
func (c *Client) GetTasks(ctx context.Context, key string) ([]models.Task, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, ListKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get tasks failed", "error", err, "key", key)
		return nil, false
	}
	var tasks []models.Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		logger.Debug(ctx, "Redis unmarshal tasks failed", "error", err, "key", key)
		return nil, false
	}
	return tasks, true
}

// SetTasks writes a list with the configured TTL.
func (c *Client) SetTasks(ctx context.Context, key string, tasks []models.Task) {
	if c == nil {
		return
	}
	b, err := json.Marshal(tasks)
	if err != nil {
		logger.Debug(ctx, "Marshal tasks for cache failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, ListKey(key), b, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set tasks failed", "error", err, "key", key)
	}
}

// Invalidate deletes every cached list so the next read goes to storage.
func (c *Client) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, listKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Debug(ctx, "Redis scan list keys failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate tasks failed", "error", err)
	}
}

// Ping checks the connection for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
