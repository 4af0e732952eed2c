package postgres

import "context"

// Health implements ports.HealthChecker for the database.
type Health struct {
	pool Pool
}

// NewHealth creates a database health checker.
func NewHealth(pool Pool) *Health {
	return &Health{pool: pool}
}

func (h *Health) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *Health) Name() string {
	return "postgres"
}
