// Package directory provides lookup of external identities (users, groups,
// distribution lists) from the organisation's directory gateway. The engine
// only consults the directory while creating a grant for an identifier with
// no local account; authorization checks never reach here.
package directory

import (
	"context"
	"strings"
)

// Identity is a single directory search result
type Identity struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name,omitempty"`
	Source      string `json:"source"`
	Email       string `json:"email,omitempty"`
}

// Lookup searches the directory for identities matching a term
type Lookup interface {
	Search(ctx context.Context, query string, limit int) ([]Identity, error)
}

// Static is an in-memory Lookup for tests and single-node dev deployments
type Static struct {
	Identities []Identity
}

// Search returns identities whose identifier, display name or email
// contains the query, case-insensitively, up to limit results
func (s *Static) Search(ctx context.Context, query string, limit int) ([]Identity, error) {
	q := strings.ToLower(query)
	var out []Identity
	for _, id := range s.Identities {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(id.Identifier), q) ||
			strings.Contains(strings.ToLower(id.DisplayName), q) ||
			strings.Contains(strings.ToLower(id.Email), q) {
			out = append(out, id)
		}
	}
	return out, nil
}
