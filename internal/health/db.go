// Package health provides readiness checks for the feed service's storage
// dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"
)

// Checker is implemented by every dependency check.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker checks PostgreSQL connectivity.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not configured")
	}
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
