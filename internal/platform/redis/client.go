// Package redis opens the optional read cache connection. The cache is an
// accelerator, never authoritative, so a missing Redis is a supported
// configuration, not a degraded one.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"soulbind/internal/platform/config"
)

// Client wraps the go-redis client with a health check for readiness
// probes.
type Client struct {
	*redis.Client
}

// New connects to Redis from the provided configuration and verifies the
// connection. An empty address returns (nil, nil): caching disabled.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the connection answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
