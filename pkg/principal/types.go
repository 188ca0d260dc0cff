// Package principal resolves identifier strings into actionable principals
// for authorization checks. A principal is either a locally known user
// account or a directory-sourced identity with no local record; the two
// coexist without a shared persisted base type.
package principal

// LocalUser is a locally known user account
type LocalUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// DisplayName returns the user's full name, falling back to the username
func (u *LocalUser) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Principal is the tagged union of a local account and a directory-sourced
// identity. Local is nil for principals with no local record; the Identifier
// is always populated.
type Principal struct {
	Local           *LocalUser
	Identifier      string
	DisplayNameHint string
}

// IsLocal reports whether the principal has a local account
func (p Principal) IsLocal() bool {
	return p.Local != nil
}

// DisplayName returns the best available label for the principal. It prefers
// the local display name and falls back to the directory hint or the raw
// identifier.
func (p Principal) DisplayName() string {
	if p.Local != nil {
		return p.Local.DisplayName()
	}
	if p.DisplayNameHint != "" {
		return p.DisplayNameHint
	}
	return p.Identifier
}
