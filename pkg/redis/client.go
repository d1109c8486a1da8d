// Package redis provides a thin wrapper around go-redis/v9 used to publish
// document-length histograms as Redis hashes, so the probability estimator
// can read corpus statistics without touching the index files.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client.
type Client struct {
	rdb redis.Cmdable
	cls func() error
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb, cls: rdb.Close}, nil
}

// ReplaceHash atomically replaces the hash at key with fields and applies
// ttl when it is positive.
func (c *Client) ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			values := make(map[string]any, len(fields))
			for k, v := range fields {
				values[k] = v
			}
			pipe.HSet(ctx, key, values)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing hash %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	if c.cls == nil {
		return nil
	}
	return c.cls()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
