// Package redisx wraps the go-redis client with the handful of operations
// C1 (access-token cache, channel bindings), C4 (daily like cap, iterator
// sessions), C5 (discovery GEO buckets and sessions), C9 (dead letters) and
// rate limiting need.
package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addrs    []string
	Password string
}

// Client wraps *redis.Client (single-node; the teacher's ClusterClient
// pattern is unnecessary for a non-sharded Redis deployment, the one
// deviation from that file's shape — see DESIGN.md).
type Client struct {
	*redis.Client
}

func New(cfg Config) *Client {
	addr := "localhost:6379"
	if len(cfg.Addrs) > 0 {
		addr = cfg.Addrs[0]
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})
	return &Client{rc}
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.Client.Ping(ctx).Result()
	return err == nil
}

// GeoAdd/GeoSearch back the discovery bucket index (C5).
func (c *Client) GeoAdd(ctx context.Context, key string, members ...*redis.GeoLocation) error {
	return c.Client.GeoAdd(ctx, key, members...).Err()
}

func (c *Client) GeoSearch(ctx context.Context, key string, q *redis.GeoSearchQuery) ([]string, error) {
	return c.Client.GeoSearch(ctx, key, q).Result()
}

func (c *Client) GeoRemove(ctx context.Context, key, member string) error {
	return c.Client.ZRem(ctx, key, member).Err()
}
