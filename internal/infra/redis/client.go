package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client stores recent correlation ids in Redis lists so several
// dashboards can share them.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CorrelationKey is the list holding the recent ids of one operation.
func CorrelationKey(operation string) string {
	return fmt.Sprintf("fleet:correlations:%s", operation)
}

// PushCorrelation prepends id to the operation's list, keeps the newest
// limit entries and refreshes the list TTL (0 = no expiry).
func (c *Client) PushCorrelation(
	ctx context.Context,
	operation, id string,
	limit int,
	ttl time.Duration,
) error {
	key := CorrelationKey(operation)

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, id)
	if limit > 0 {
		pipe.LTrim(ctx, key, 0, int64(limit-1))
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push correlation failed: %w", err)
	}
	return nil
}

// RecentCorrelations returns the stored ids of an operation, newest first.
func (c *Client) RecentCorrelations(ctx context.Context, operation string) ([]string, error) {
	ids, err := c.rdb.LRange(ctx, CorrelationKey(operation), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}
	return ids, nil
}
