package principal

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides read access to locally known user accounts
type Store struct {
	db *sql.DB
}

// NewStore creates a new principal store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByUsername retrieves a local user by username. Returns (nil, nil) when
// no local account exists, so callers can distinguish "unknown locally" from
// a storage failure.
func (s *Store) FindByUsername(ctx context.Context, username string) (*LocalUser, error) {
	query := `
		SELECT id, username, full_name, email
		FROM users
		WHERE username = $1
	`

	var user LocalUser
	var fullName, email sql.NullString

	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&fullName,
		&email,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}

	if fullName.Valid {
		user.FullName = fullName.String
	}
	if email.Valid {
		user.Email = email.String
	}

	return &user, nil
}

// FindByID retrieves a local user by primary key
func (s *Store) FindByID(ctx context.Context, id int64) (*LocalUser, error) {
	query := `
		SELECT id, username, full_name, email
		FROM users
		WHERE id = $1
	`

	var user LocalUser
	var fullName, email sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&fullName,
		&email,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %d: %w", id, err)
	}

	if fullName.Valid {
		user.FullName = fullName.String
	}
	if email.Valid {
		user.Email = email.String
	}

	return &user, nil
}

// Resolver turns identifier strings into principals for authorization
// checks. Resolution never contacts the directory; identities unknown
// locally are treated as potentially directory-sourced.
type Resolver struct {
	users *Store
}

// NewResolver creates a new principal resolver
func NewResolver(users *Store) *Resolver {
	return &Resolver{users: users}
}

// Resolve looks up the identifier against local accounts only. The returned
// principal is external (Local == nil) when no account matches.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (Principal, error) {
	user, err := r.users.FindByUsername(ctx, identifier)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		Local:      user,
		Identifier: identifier,
	}, nil
}
