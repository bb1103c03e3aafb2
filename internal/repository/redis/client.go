package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client coordinates user advancement across processes: advisory locks, the
// advancement throttle and due timers.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to redisURL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	c := Wrap(redis.NewClient(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// Wrap uses an existing connection pool.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the pool for the keyspace subscription.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// EnableExpiryEvents turns on expired-key notifications, which the due
// timers rely on. Managed Redis may refuse CONFIG SET.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	if err := c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		return fmt.Errorf("enable expiry events: %w", err)
	}
	return nil
}
