package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// HealthCheck mirrors the PostgreSQL check: the handle answers and the
// embedded schema is not left dirty.
type HealthCheck struct {
	db *sql.DB
}

func NewHealthCheck(db *sql.DB) *HealthCheck {
	return &HealthCheck{db: db}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var dirty bool
	if err := h.db.QueryRowContext(ctx, `SELECT dirty FROM schema_migrations LIMIT 1`).Scan(&dirty); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return errors.New("ledger schema migration did not complete")
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "sqlite"
}
