package acl

import (
	"errors"
	"fmt"
)

// ErrDuplicateGrant is returned by the store when a grant insert hits the
// unique constraint on (centre, principal identifier, principal type).
var ErrDuplicateGrant = errors.New("grant already exists for principal")

// Validation error codes. Handlers map these to HTTP statuses without
// inspecting message text.
const (
	CodeNotFound  = "not-found"
	CodeDuplicate = "duplicate"
	CodeInvalid   = "invalid"
)

// ValidationError reports a request that cannot be satisfied as stated:
// a missing resource, a duplicate grant, or malformed input. Message is
// safe to surface to the caller verbatim.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthorizationError reports that the requester lacks the privilege the
// operation requires.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

func validationf(code, format string, args ...interface{}) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func authorizationf(format string, args ...interface{}) error {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a ValidationError carrying the
// not-found code.
func IsNotFound(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Code == CodeNotFound
}

// IsDuplicate reports whether err is a ValidationError carrying the
// duplicate code.
func IsDuplicate(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Code == CodeDuplicate
}
