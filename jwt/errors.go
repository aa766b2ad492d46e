package jwt

import "errors"

// ErrInvalidToken matches every verification failure via errors.Is.
var ErrInvalidToken = errors.New("invalid token")

// Reason classifies why a token failed verification. Reasons are for logs;
// callers must not expose them to clients.
type Reason string

const (
	ReasonMalformed         Reason = "malformed"
	ReasonSignatureMismatch Reason = "signature-mismatch"
	ReasonExpired           Reason = "expired"
)

// InvalidTokenError is returned by VerifyAccess and VerifyRefresh.
type InvalidTokenError struct {
	Reason Reason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err == nil {
		return "invalid token: " + string(e.Reason)
	}
	return "invalid token: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// Is reports ErrInvalidToken as a match so callers can test the class
// without a type assertion.
func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}
