package acl

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all access control migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_username ON users(username);
			`,
		},
		{
			Version:     2,
			Description: "Create responsibility_centres table",
			SQL: `
				CREATE TABLE IF NOT EXISTS responsibility_centres (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					fiscal_year VARCHAR(50),
					owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_responsibility_centres_owner_id ON responsibility_centres(owner_id);
				CREATE INDEX idx_responsibility_centres_fiscal_year ON responsibility_centres(fiscal_year);
			`,
		},
		{
			Version:     3,
			Description: "Create access_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_grants (
					id BIGSERIAL PRIMARY KEY,
					centre_id BIGINT NOT NULL REFERENCES responsibility_centres(id) ON DELETE CASCADE,
					principal_identifier VARCHAR(255) NOT NULL,
					principal_type VARCHAR(50) NOT NULL,
					principal_display_name VARCHAR(255) NOT NULL DEFAULT '',
					local_user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					access_level VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(centre_id, principal_identifier, principal_type)
				);

				CREATE INDEX idx_access_grants_centre_id ON access_grants(centre_id);
				CREATE INDEX idx_access_grants_principal_identifier ON access_grants(principal_identifier);
				CREATE INDEX idx_access_grants_local_user_id ON access_grants(local_user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS acl_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM acl_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	migrations := GetMigrations()
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		// Start transaction
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		// Execute migration
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		// Record migration
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO acl_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		// Commit transaction
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
