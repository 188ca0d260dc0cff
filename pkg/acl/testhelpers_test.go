package acl

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cccs-paul/rcbudget/pkg/centre"
	"github.com/cccs-paul/rcbudget/pkg/directory"
	"github.com/cccs-paul/rcbudget/pkg/observability"
	"github.com/cccs-paul/rcbudget/pkg/principal"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE responsibility_centres (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			fiscal_year TEXT,
			owner_id INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE access_grants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			centre_id INTEGER NOT NULL,
			principal_identifier TEXT NOT NULL,
			principal_type TEXT NOT NULL,
			principal_display_name TEXT NOT NULL DEFAULT '',
			local_user_id INTEGER,
			access_level TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(centre_id, principal_identifier, principal_type)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *sql.DB, username, fullName string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO users (username, full_name) VALUES ($1, $2) RETURNING id`,
		username, fullName,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return id
}

func createTestCentre(t *testing.T, db *sql.DB, name string, ownerID int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO responsibility_centres (name, fiscal_year, owner_id) VALUES ($1, $2, $3) RETURNING id`,
		name, "2026", ownerID,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create centre %s: %v", name, err)
	}
	return id
}

func countTestUsers(t *testing.T, db *sql.DB) int {
	t.Helper()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatalf("Failed to count users: %v", err)
	}
	return n
}

func newTestEngine(t *testing.T, db *sql.DB, lookup directory.Lookup) *Engine {
	t.Helper()

	users := principal.NewStore(db)
	return NewEngine(EngineConfig{
		Centres:    centre.NewStore(db),
		Principals: principal.NewResolver(users),
		Grants:     NewStore(db),
		Directory:  lookup,
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
}

func mustGrantUser(t *testing.T, e *Engine, centreID int64, requester, target string, level AccessLevel) *Grant {
	t.Helper()

	grant, err := e.GrantUserAccess(context.Background(), centreID, requester, target, level)
	if err != nil {
		t.Fatalf("GrantUserAccess(%s, %s) failed: %v", target, level, err)
	}
	return grant
}
