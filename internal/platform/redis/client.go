// Package redis provides the cross-instance coordination used when several
// agent processes share one workflow backend: the per-entry audit lock and
// the reminder sweep lease.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bgv-agent:"

// Client wraps the go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient parses url, connects and pings the server.
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// tryAcquire sets key to a fresh token if it is unset.
func (c *Client) tryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token, err := newToken()
	if err != nil {
		return "", false, err
	}
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("setnx failed: %w", err)
	}
	return token, ok, nil
}

func (c *Client) release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

func leaseKey(name string) string {
	return keyPrefix + "lease:" + name
}
