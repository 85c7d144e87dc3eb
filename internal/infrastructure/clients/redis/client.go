package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/hospital-appointment-api/pkg/config"
	apperrors "github.com/zatekoja/hospital-appointment-api/pkg/errors"
	"github.com/zatekoja/hospital-appointment-api/pkg/retry"
)

const (
	// pingTimeout bounds a single connection check
	pingTimeout = 2 * time.Second

	// connectAttempts and connectTimeout bound the startup connection so a
	// missing Redis fails fast
	connectAttempts = 3
	connectTimeout  = 5 * time.Second
)

// connectRetryConfig is the default retry policy, shortened for startup
func connectRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = connectAttempts
	cfg.MaxTotalTimeout = connectTimeout
	return cfg
}

// Client represents a Redis client
type Client struct {
	client *redis.Client
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, connectRetryConfig(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, apperrors.NewExternalError(fmt.Sprintf("failed to connect to Redis at %s", cfg.RedisAddr()), err)
	}

	return &Client{client: client}, nil
}

// NewClientFrom wraps an existing go-redis client
func NewClientFrom(client *redis.Client) *Client {
	return &Client{client: client}
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping verifies the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
