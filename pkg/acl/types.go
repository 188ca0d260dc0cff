package acl

import (
	"time"
)

// AccessLevel represents the privilege attached to a grant, ranked
// OWNER > READ_WRITE > READ_ONLY
type AccessLevel string

const (
	LevelOwner     AccessLevel = "OWNER"
	LevelReadWrite AccessLevel = "READ_WRITE"
	LevelReadOnly  AccessLevel = "READ_ONLY"
)

// Valid reports whether the level is one of the known access levels
func (l AccessLevel) Valid() bool {
	switch l {
	case LevelOwner, LevelReadWrite, LevelReadOnly:
		return true
	}
	return false
}

// rank orders levels by privilege; higher is more privileged
func (l AccessLevel) rank() int {
	switch l {
	case LevelOwner:
		return 3
	case LevelReadWrite:
		return 2
	case LevelReadOnly:
		return 1
	}
	return 0
}

// AtLeast reports whether the level grants at least the privilege of other
func (l AccessLevel) AtLeast(other AccessLevel) bool {
	return l.rank() >= other.rank()
}

// MaxLevel returns the most privileged of the two levels
func MaxLevel(a, b AccessLevel) AccessLevel {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// PrincipalType distinguishes the kind of identity a grant is held by
type PrincipalType string

const (
	PrincipalUser             PrincipalType = "USER"
	PrincipalGroup            PrincipalType = "GROUP"
	PrincipalDistributionList PrincipalType = "DISTRIBUTION_LIST"
)

// Valid reports whether the type is one of the known principal types
func (t PrincipalType) Valid() bool {
	switch t {
	case PrincipalUser, PrincipalGroup, PrincipalDistributionList:
		return true
	}
	return false
}

// EntityLabel returns the label used when naming the principal kind in
// user-facing messages. User grants are unqualified.
func (t PrincipalType) EntityLabel() string {
	switch t {
	case PrincipalGroup:
		return "Group"
	case PrincipalDistributionList:
		return "Distribution list"
	}
	return ""
}

// Grant is a persisted access grant for one (centre, principal) pair.
// LocalUserID is set only when the grant's principal is a locally known
// user; it is always absent for directory-only principals and for groups
// and distribution lists.
type Grant struct {
	ID                   int64         `json:"id"`
	CentreID             int64         `json:"centre_id"`
	PrincipalIdentifier  string        `json:"principal_identifier"`
	PrincipalType        PrincipalType `json:"principal_type"`
	PrincipalDisplayName string        `json:"principal_display_name"`
	LocalUserID          *int64        `json:"local_user_id,omitempty"`
	Level                AccessLevel   `json:"access_level"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}
