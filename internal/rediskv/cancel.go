package rediskv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/seo-autopilot/internal/cancel"
)

// CancelFlags is a cancel.Registry visible to every process sharing the Redis server.
type CancelFlags struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ cancel.Registry = (*CancelFlags)(nil)

// NewCancelFlags creates the registry. A zero ttl uses cancel.DefaultTTL.
func NewCancelFlags(client *redis.Client, prefix string, ttl time.Duration) *CancelFlags {
	if ttl <= 0 {
		ttl = cancel.DefaultTTL
	}
	return &CancelFlags{client: client, prefix: prefix, ttl: ttl}
}

// Cancel sets the flag for id.
func (c *CancelFlags) Cancel(ctx context.Context, id string) error {
	if err := c.client.Set(ctx, key(c.prefix, "cancel", id), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// IsCancelled reports whether the flag for id is set.
func (c *CancelFlags) IsCancelled(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Exists(ctx, key(c.prefix, "cancel", id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return n > 0, nil
}

// Clear removes the flag for id.
func (c *CancelFlags) Clear(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, key(c.prefix, "cancel", id)).Err(); err != nil {
		return fmt.Errorf("failed to clear cancel flag: %w", err)
	}
	return nil
}
