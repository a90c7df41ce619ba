package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports the ledger database as healthy when it answers and
// the last migration finished cleanly.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var dirty bool
	if err := h.pool.QueryRow(ctx, `SELECT dirty FROM schema_migrations LIMIT 1`).Scan(&dirty); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return errors.New("ledger schema migration did not complete")
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
