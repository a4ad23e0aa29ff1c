// Package redis wraps go-redis/v9 for the report service's cache: get/set
// with TTL, key deletion, and pattern-based invalidation for run
// completion events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaliC/popcorn-data-utils/pkg/config"
)

// Client holds a pooled Redis connection.
type Client struct {
	conn *redis.Client
}

// NewClient connects to Redis and verifies the connection with a PING
// before returning.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Get returns the value stored at key. A missing key is redis.Nil; use
// IsNilError to treat it as a cache miss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.conn.Get(ctx, key).Result()
}

// Set stores value at key for the given TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// Del removes the given keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.conn.Del(ctx, keys...).Err()
}

// FlushByPattern deletes every key matching the glob pattern, batching
// deletions so invalidating a large cache does not issue one DEL per key.
// It returns the number of keys removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	const batchSize = 100
	var deleted int64
	batch := make([]string, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.conn.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	iter := c.conn.Scan(ctx, 0, pattern, batchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("deleting matched keys: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("deleting matched keys: %w", err)
	}
	return deleted, nil
}

// IsNilError reports whether err is the Redis missing-key sentinel.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.conn.Close()
}
