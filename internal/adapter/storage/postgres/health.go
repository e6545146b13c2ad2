package postgres

import "context"

// Health reports database connectivity for readiness checks.
type Health struct {
	pool Pool
}

// NewHealth creates a health checker backed by the connection pool.
func NewHealth(pool Pool) *Health {
	return &Health{pool: pool}
}

func (h *Health) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *Health) Name() string {
	return "postgres"
}
