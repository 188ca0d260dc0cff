// Package centre provides storage access for Responsibility Centres, the
// shareable resource that access control governs. Every centre has exactly
// one owner, stored as a first-class column rather than a grant row.
package centre

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Centre is a Responsibility Centre
type Centre struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FiscalYear string    `json:"fiscal_year,omitempty"`
	OwnerID    int64     `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Owner identity, joined from the users table
	OwnerUsername    string `json:"owner_username"`
	OwnerDisplayName string `json:"owner_display_name"`
}

// Store handles Responsibility Centre persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new centre store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByID retrieves a centre with its owner's identity. Returns (nil, nil)
// when the centre does not exist.
func (s *Store) FindByID(ctx context.Context, id int64) (*Centre, error) {
	query := `
		SELECT c.id, c.name, c.fiscal_year, c.owner_id, c.created_at, c.updated_at,
		       u.username, u.full_name
		FROM responsibility_centres c
		JOIN users u ON u.id = c.owner_id
		WHERE c.id = $1
	`

	var c Centre
	var fiscalYear, fullName sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&fiscalYear,
		&c.OwnerID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.OwnerUsername,
		&fullName,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get centre %d: %w", id, err)
	}

	if fiscalYear.Valid {
		c.FiscalYear = fiscalYear.String
	}
	if fullName.Valid && fullName.String != "" {
		c.OwnerDisplayName = fullName.String
	} else {
		c.OwnerDisplayName = c.OwnerUsername
	}

	return &c, nil
}

// Create persists a new centre owned by the given user
func (s *Store) Create(ctx context.Context, c *Centre) error {
	query := `
		INSERT INTO responsibility_centres (name, fiscal_year, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	var fiscalYear sql.NullString
	if c.FiscalYear != "" {
		fiscalYear = sql.NullString{String: c.FiscalYear, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, query,
		c.Name,
		fiscalYear,
		c.OwnerID,
		now,
		now,
	).Scan(&c.ID)

	if err != nil {
		return fmt.Errorf("failed to create centre: %w", err)
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// ListByOwner lists all centres owned by a user
func (s *Store) ListByOwner(ctx context.Context, ownerID int64) ([]Centre, error) {
	query := `
		SELECT c.id, c.name, c.fiscal_year, c.owner_id, c.created_at, c.updated_at,
		       u.username, u.full_name
		FROM responsibility_centres c
		JOIN users u ON u.id = c.owner_id
		WHERE c.owner_id = $1
		ORDER BY c.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list centres: %w", err)
	}
	defer rows.Close()

	var centres []Centre
	for rows.Next() {
		var c Centre
		var fiscalYear, fullName sql.NullString

		err := rows.Scan(
			&c.ID,
			&c.Name,
			&fiscalYear,
			&c.OwnerID,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.OwnerUsername,
			&fullName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan centre: %w", err)
		}

		if fiscalYear.Valid {
			c.FiscalYear = fiscalYear.String
		}
		if fullName.Valid && fullName.String != "" {
			c.OwnerDisplayName = fullName.String
		} else {
			c.OwnerDisplayName = c.OwnerUsername
		}

		centres = append(centres, c)
	}

	return centres, rows.Err()
}

// Delete removes a centre. Access grants cascade at the storage layer.
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM responsibility_centres WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete centre: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("centre not found: %d", id)
	}

	return nil
}
