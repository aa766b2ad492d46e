package flows

import (
	"context"

	"github.com/rs/zerolog"
)

// Deps groups flow dependency sets. The root authority builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login        LoginDeps
	Authenticate AuthenticateDeps
	Revoke       RevokeDeps
	Account      AccountDeps
}

// UserRecord is the flow-local user model.
type UserRecord struct {
	ID           string
	Email        string
	Role         string
	State        string
	PasswordHash string
	IsActive     bool
	IsDeleted    bool
	// Profile is the caller's full user value, returned untouched.
	Profile any
}

// AuditFunc emits one audit event. meta is only evaluated when audit is on.
type AuditFunc func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)

func noAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noMetric(int) {}

func nopLogger(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l
}
