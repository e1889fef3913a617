package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// TextCodeCredentialInvalid marks every credential failure: forged,
// malformed, and expired credentials fold into one outcome so callers
// only ever re-authenticate.
const TextCodeCredentialInvalid = "CREDENTIAL_INVALID"

// TextCodeTokenExpired marks verification tokens past their lifetime
const TextCodeTokenExpired = "TOKEN_EXPIRED"

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrCredentialInvalid is the single outcome for any structural,
// signature, or expiry failure of a session credential
var ErrCredentialInvalid = errors.New("invalid session credential", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeCredentialInvalid)

// ErrUnableToFindCredential is returned when a request carries no credential
var ErrUnableToFindCredential = errors.New("unable to find session credential", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned for failed password checks
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty password input
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation)

// ErrUserPending blocks authentication until email verification
var ErrUserPending = errors.New("account pending email verification", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("USER_PENDING")

// ErrUserInactive blocks authentication for deactivated accounts
var ErrUserInactive = errors.New("account is inactive", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("USER_INACTIVE")

// ErrVerificationTokenNotFound covers absent and already consumed tokens
var ErrVerificationTokenNotFound = errors.New("verification token not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrVerificationTokenExpired covers tokens past their lifetime
var ErrVerificationTokenExpired = errors.New("verification token has expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrSignupDisabled is returned when the signup feature gate is off
var ErrSignupDisabled = errors.New("signup is currently disabled", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden)

// ErrPasswordResetDisabled is returned when the reset feature gate is off
var ErrPasswordResetDisabled = errors.New("password reset is currently disabled", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden)

// ErrDuplicateEmail surfaces unique-constraint conflicts at creation
var ErrDuplicateEmail = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode("DUPLICATE_EMAIL")

// statusAuthError maps a user lifecycle status to the error that
// blocks authentication, nil when the status allows it.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive:
		return nil
	case UserStatusPending:
		return ErrUserPending
	case UserStatusInactive:
		return ErrUserInactive
	default:
		return errors.New("unknown user status", errors.CategoryAuth).
			WithMetadata(map[string]any{"status": status})
	}
}

// IsDuplicateKeyError sniffs driver-level unique constraint failures.
// bun surfaces them as raw driver errors, so string matching is the
// only portable check across sqlite and postgres.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
