package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// Health reports Redis connectivity for readiness checks.
type Health struct {
	client *goredis.Client
}

// NewHealth creates a health checker backed by the Redis client.
func NewHealth(client *goredis.Client) *Health {
	return &Health{client: client}
}

func (h *Health) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func (h *Health) Name() string {
	return "redis"
}
