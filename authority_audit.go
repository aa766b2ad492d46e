package lmsauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/lmsauth/jwt"
)

const (
	auditEventLoginSuccess   = "login_success"
	auditEventLoginFailure   = "login_failure"
	auditEventSessionEvicted = "session_evicted"
	auditEventSessionExpired = "session_expired"
	auditEventLogout         = "logout"
	auditEventSessionKilled  = "session_killed"
	auditEventForceLogout    = "force_logout"
	auditEventPasswordChange = "password_change"
	auditEventAccountState   = "account_state_change"
	auditEventAccountDeleted = "account_deleted"
)

// AuditErrorCode is the stable reason string recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountState        AuditErrorCode = "account_state"
	auditErrSessionConflict     AuditErrorCode = "session_conflict"
	auditErrUnauthenticated     AuditErrorCode = "unauthenticated"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrSessionInvalid      AuditErrorCode = "session_invalid"
	auditErrSessionExpired      AuditErrorCode = "session_expired"
	auditErrNotFound            AuditErrorCode = "not_found"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrPasswordIncorrect   AuditErrorCode = "current_password_incorrect"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrPasswordReuse       AuditErrorCode = "password_reuse"
	auditErrSessionInvalidation AuditErrorCode = "session_invalidation_failed"
	auditErrTokenIssuance       AuditErrorCode = "token_issuance"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (a *Authority) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if a == nil || a.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	a.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountState):
		return auditErrAccountState
	case errors.Is(err, ErrSessionConflict):
		return auditErrSessionConflict
	case errors.Is(err, jwt.ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCurrentPassword):
		return auditErrPasswordIncorrect
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrTokenIssuance):
		return auditErrTokenIssuance
	case errors.Is(err, ErrPersistence):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
