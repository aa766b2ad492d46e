package lmsauth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountState matches every *AccountStateError.
	ErrAccountState = errors.New("account not usable")
	// ErrSessionConflict is returned under PolicyRejectExisting when the user is at the session limit.
	ErrSessionConflict = errors.New("already logged in on another device")
	// ErrUnauthenticated covers a missing, malformed, expired or forged bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionInvalid is returned when a token's session is no longer active.
	ErrSessionInvalid = errors.New("session invalid: logged in elsewhere or logged out")
	// ErrSessionExpired is returned when the session idled past the configured timeout.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden is returned by role and ownership checks.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a session to revoke does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps store and user directory faults.
	ErrPersistence = errors.New("persistence failure")
	// ErrTokenIssuance is returned when signing tokens for a fresh session fails.
	ErrTokenIssuance = errors.New("token issuance failed")
	// ErrSessionInvalidationFailed is joined with the cause when a side-effect revocation fails.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")

	// ErrUserNotFound must be returned by UserProvider lookups for missing or soft-deleted users.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCurrentPassword is returned by ChangePassword when the current password does not verify.
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	// ErrPasswordPolicy is returned when a new password is too short.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrInvalidAccountState is returned for an unknown account state value.
	ErrInvalidAccountState = errors.New("invalid account state")

	ErrAuthorityNotReady = errors.New("authority not initialized")
)

// AccountStateError reports why an otherwise valid login is refused.
//
// Message carries the user facing text for the state.
type AccountStateError struct {
	State   string
	Message string
}

func (e *AccountStateError) Error() string {
	return "account " + e.State + ": " + e.Message
}

// Is reports true for ErrAccountState.
func (e *AccountStateError) Is(target error) bool {
	return target == ErrAccountState
}

var (
	errAccountDeleted  = &AccountStateError{State: "deleted", Message: "Account has been deleted"}
	errAccountInactive = &AccountStateError{State: "inactive", Message: "Account is not active. Please contact support."}
	errAccountBanned   = &AccountStateError{State: "banned", Message: "Account has been banned. Please contact support."}
	errAccountPending  = &AccountStateError{State: "pending", Message: "Account is pending approval"}
)
