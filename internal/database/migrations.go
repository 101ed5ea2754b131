package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/001_init_schema.sql
var migrationSQL string

// RunMigrations applies the schema on startup. The statements are
// idempotent, so running against an already migrated database is a no-op.
func RunMigrations(ctx context.Context, db *pgxpool.Pool, log *logrus.Logger) error {
	log.Info("running database migrations")

	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'positions'
		)
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if migrations needed: %w", err)
	}
	if exists {
		log.Info("database already migrated, skipping")
		return nil
	}

	if _, err := db.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")
	return nil
}
