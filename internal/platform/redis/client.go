// Package redis builds the shared go-redis client. The service keeps one
// Redis concern, pairing credentials, so a single client with the pool
// sized from configuration serves the whole process.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/config"
)

// Client wraps *redis.Client so platform callers get health checking
// without reaching into go-redis directly.
type Client struct {
	*redis.Client
}

// New connects using cfg and verifies the connection with a ping. A nil
// client with a nil error means Redis is not configured; callers fall back
// to the in-memory credential store.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether Redis still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
