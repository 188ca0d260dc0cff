package principal

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
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
			email TEXT NOT NULL DEFAULT ''
		);
		INSERT INTO users (username, full_name, email) VALUES ('alice', 'Alice Chan', 'alice@example.org');
		INSERT INTO users (username, full_name) VALUES ('bob', '');
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}
	return db
}

func TestStoreFindByUsername(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	user, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if user == nil {
		t.Fatal("Expected user, got nil")
	}
	if user.FullName != "Alice Chan" || user.Email != "alice@example.org" {
		t.Errorf("Unexpected user: %+v", user)
	}

	missing, err := store.FindByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected (nil, nil) for unknown username")
	}
}

func TestStoreFindByID(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	user, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("Expected alice, got %+v", user)
	}

	missing, err := store.FindByID(ctx, 99)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected (nil, nil) for unknown id")
	}
}

func TestResolverNeverInventsLocalRecords(t *testing.T) {
	db := setupTestDB(t)
	resolver := NewResolver(NewStore(db))
	ctx := context.Background()

	local, err := resolver.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !local.IsLocal() {
		t.Error("Expected alice to resolve locally")
	}

	external, err := resolver.Resolve(ctx, "amy@example.org")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if external.IsLocal() {
		t.Error("Expected unknown identifier to resolve as external")
	}
	if external.Identifier != "amy@example.org" {
		t.Errorf("Expected identifier preserved, got %q", external.Identifier)
	}

	var users int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if users != 2 {
		t.Errorf("Expected resolution to create no records, got %d users", users)
	}
}

func TestPrincipalDisplayName(t *testing.T) {
	cases := []struct {
		name string
		p    Principal
		want string
	}{
		{"local full name", Principal{Local: &LocalUser{Username: "alice", FullName: "Alice Chan"}}, "Alice Chan"},
		{"local username fallback", Principal{Local: &LocalUser{Username: "bob"}}, "bob"},
		{"external hint", Principal{Identifier: "amy", DisplayNameHint: "Amy Wong"}, "Amy Wong"},
		{"external identifier fallback", Principal{Identifier: "amy"}, "amy"},
	}
	for _, tc := range cases {
		if got := tc.p.DisplayName(); got != tc.want {
			t.Errorf("%s: DisplayName() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
