package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store handles access grant persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const grantColumns = `id, centre_id, principal_identifier, principal_type, principal_display_name, local_user_id, access_level, created_at, updated_at`

func scanGrant(row interface{ Scan(...interface{}) error }) (*Grant, error) {
	var g Grant
	var localUserID sql.NullInt64
	err := row.Scan(
		&g.ID,
		&g.CentreID,
		&g.PrincipalIdentifier,
		&g.PrincipalType,
		&g.PrincipalDisplayName,
		&localUserID,
		&g.Level,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if localUserID.Valid {
		id := localUserID.Int64
		g.LocalUserID = &id
	}
	return &g, nil
}

// isUniqueViolation reports whether err is the database's unique constraint
// failure. Postgres reports class 23505; the sqlite driver used in tests
// only exposes the message.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new grant and populates its ID and timestamps. The
// unique constraint on (centre_id, principal_identifier, principal_type)
// is the authoritative duplicate check; a violation is reported as
// ErrDuplicateGrant.
func (s *Store) Create(ctx context.Context, grant *Grant) error {
	query := `
		INSERT INTO access_grants (centre_id, principal_identifier, principal_type, principal_display_name, local_user_id, access_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		grant.CentreID,
		grant.PrincipalIdentifier,
		grant.PrincipalType,
		grant.PrincipalDisplayName,
		grant.LocalUserID,
		grant.Level,
		now,
		now,
	).Scan(&grant.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("failed to create grant: %w", err)
	}

	grant.CreatedAt = now
	grant.UpdatedAt = now
	return nil
}

// GetByID retrieves a grant by ID. Returns (nil, nil) when no grant exists.
func (s *Store) GetByID(ctx context.Context, grantID int64) (*Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE id = $1
	`

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, grantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// ByCentre lists every grant on a centre, users first, then by display name.
func (s *Store) ByCentre(ctx context.Context, centreID int64) ([]*Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE centre_id = $1
		ORDER BY CASE principal_type WHEN 'USER' THEN 0 ELSE 1 END, principal_display_name, id
	`

	rows, err := s.db.QueryContext(ctx, query, centreID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// ByCentreAndIdentifier retrieves the grant held directly by the given
// principal identifier and type on a centre. Returns (nil, nil) when no
// such grant exists.
func (s *Store) ByCentreAndIdentifier(ctx context.Context, centreID int64, identifier string, principalType PrincipalType) (*Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE centre_id = $1 AND principal_identifier = $2 AND principal_type = $3
	`

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, centreID, identifier, principalType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// ByCentreAndLocalUser retrieves the user grant tied to a local user record
// on a centre. Returns (nil, nil) when no such grant exists.
func (s *Store) ByCentreAndLocalUser(ctx context.Context, centreID, userID int64) (*Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE centre_id = $1 AND local_user_id = $2 AND principal_type = 'USER'
	`

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, centreID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// ByCentreAndGroupIdentifiers retrieves every group and distribution list
// grant on a centre whose identifier appears in identifiers.
func (s *Store) ByCentreAndGroupIdentifiers(ctx context.Context, centreID int64, identifiers []string) ([]*Grant, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(identifiers))
	args := make([]interface{}, 0, len(identifiers)+1)
	args = append(args, centreID)
	for i, id := range identifiers {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := `
		SELECT ` + grantColumns + `
		FROM access_grants
		WHERE centre_id = $1
		  AND principal_type IN ('GROUP', 'DISTRIBUTION_LIST')
		  AND principal_identifier IN (` + strings.Join(placeholders, ", ") + `)
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list group grants: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// UpdateLevel changes a grant's access level. Returns (nil, nil) when the
// grant does not exist.
func (s *Store) UpdateLevel(ctx context.Context, grantID int64, level AccessLevel) (*Grant, error) {
	query := `
		UPDATE access_grants
		SET access_level = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, level, time.Now(), grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to update grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update grant: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, grantID)
}

// Delete removes a grant. Returns false when the grant does not exist.
func (s *Store) Delete(ctx context.Context, grantID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_grants WHERE id = $1`, grantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}
	return affected > 0, nil
}
