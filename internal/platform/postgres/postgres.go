// Package postgres opens the authoritative database connection. Stores
// speak database/sql only; the concrete driver is a deployment choice.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"soulbind/internal/platform/config"
)

// Open connects using the configured driver and verifies the connection.
// Driver "pgx" is the default; "postgres" selects lib/pq for deployments
// standardized on it.
func Open(ctx context.Context, cfg config.Postgres) (*sql.DB, error) {
	driver := cfg.Driver
	switch driver {
	case "", "pgx":
		driver = "pgx"
	case "postgres":
	default:
		return nil, fmt.Errorf("unknown postgres driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}
