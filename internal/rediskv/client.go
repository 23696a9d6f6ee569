// Package rediskv shares cancel flags and progress snapshots between
// processes through Redis.
package rediskv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "autopilot"

// Open connects to the Redis server at url and verifies the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func key(prefix, kind, id string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":" + kind + ":" + id
}
