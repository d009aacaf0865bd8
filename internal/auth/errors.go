package auth

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can map it to a status
// without knowing which operation produced it.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified business failure. Code is stable and machine
// readable; Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so a sentinel still matches
// after it has been re-created with a cause attached.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withCause returns a copy of e carrying err as its cause.
func (e *Error) withCause(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

// KindOf classifies err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ValidationError builds an ad hoc validation failure.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_error", Message: message}
}

// Credential and token failures.
var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Code: "invalid_credentials", Message: "Incorrect email or password"}
	ErrAccountInactive    = &Error{Kind: KindForbidden, Code: "account_inactive", Message: "User account is inactive"}
	ErrInvalidToken       = &Error{Kind: KindUnauthenticated, Code: "invalid_token", Message: "Invalid refresh token"}
	ErrSessionNotFound    = &Error{Kind: KindUnauthenticated, Code: "session_not_found", Message: "Session not found or has been revoked"}

	ErrUserInactiveOrMissing      = &Error{Kind: KindUnauthenticated, Code: "user_inactive_or_missing", Message: "User not found or inactive"}
	ErrIncorrectPassword          = &Error{Kind: KindValidation, Code: "incorrect_password", Message: "Incorrect old password"}
	ErrInvalidOrExpiredResetToken = &Error{Kind: KindValidation, Code: "invalid_reset_token", Message: "Invalid or expired reset token"}

	ErrUnauthenticated         = &Error{Kind: KindUnauthenticated, Code: "unauthenticated", Message: "Could not validate credentials"}
	ErrSessionExpiredOrRevoked = &Error{Kind: KindUnauthenticated, Code: "session_revoked", Message: "Session expired or revoked"}
	ErrTokenExpired            = &Error{Kind: KindUnauthenticated, Code: "token_expired", Message: "Token has expired"}
)

// Authorisation failures.
var (
	ErrForbidden        = &Error{Kind: KindForbidden, Code: "forbidden", Message: "Not enough permissions"}
	ErrSelfModification = &Error{Kind: KindForbidden, Code: "self_modification", Message: "Cannot change your own role, deactivate or delete yourself"}
)

// Directory failures.
var (
	ErrDuplicateEmail       = &Error{Kind: KindValidation, Code: "duplicate_email", Message: "Email already registered"}
	ErrDuplicateUsername    = &Error{Kind: KindValidation, Code: "duplicate_username", Message: "Username already taken"}
	ErrOrganizationRequired = &Error{Kind: KindValidation, Code: "organization_required", Message: "Organization is required for this role"}
	ErrInvalidRole          = &Error{Kind: KindValidation, Code: "invalid_role", Message: "Invalid or inactive role"}
	ErrInvalidOrganization  = &Error{Kind: KindValidation, Code: "invalid_organization", Message: "Invalid or inactive organization"}
	ErrConflict             = &Error{Kind: KindConflict, Code: "conflict", Message: "Resource already exists"}

	ErrUserNotFound         = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "User not found"}
	ErrRoleNotFound         = &Error{Kind: KindNotFound, Code: "role_not_found", Message: "Role not found"}
	ErrOrganizationNotFound = &Error{Kind: KindNotFound, Code: "organization_not_found", Message: "Organization not found"}

	ErrDuplicateRoleName         = &Error{Kind: KindValidation, Code: "duplicate_role", Message: "Role name already exists"}
	ErrRoleInUse                 = &Error{Kind: KindValidation, Code: "role_in_use", Message: "Role is assigned to users and cannot be deleted"}
	ErrCanonicalRole             = &Error{Kind: KindValidation, Code: "canonical_role", Message: "Built-in roles cannot be renamed or deleted"}
	ErrDuplicateOrganizationCode = &Error{Kind: KindValidation, Code: "duplicate_organization_code", Message: "Organization code already exists"}
)
