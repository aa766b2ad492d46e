package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// AuthFailureKind classifies authentication failures for root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureMissingToken
	AuthFailureInvalidToken
	AuthFailureSessionInvalid
	AuthFailureSessionExpired
	AuthFailurePersistence
)

// AuthenticateResult returns either the verified claims or a classified failure.
type AuthenticateResult struct {
	Failure AuthFailureKind
	Err     error
	Claims  *jwt.Claims
	Session *session.Session
}

// AuthenticateDeps captures request authentication dependencies.
type AuthenticateDeps struct {
	IdleTimeout      time.Duration
	Now              func() time.Time
	VerifyAccess     func(string) (*jwt.Claims, error)
	ValidTokenFormat func(string) bool
	Store            session.Store
	Logger           *zerolog.Logger
	// OnExpired runs after an idle session has been deactivated.
	OnExpired func(ctx context.Context, sess *session.Session)
}

// RunAuthenticate resolves a bearer token to an active, non-idle session and
// records activity on it.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = nopLogger(deps.Logger)

	if token == "" {
		return AuthenticateResult{Failure: AuthFailureMissingToken}
	}

	claims, err := deps.VerifyAccess(token)
	if err != nil {
		return AuthenticateResult{Failure: AuthFailureInvalidToken, Err: err}
	}
	if deps.ValidTokenFormat != nil && !deps.ValidTokenFormat(claims.SessionID) {
		return AuthenticateResult{Failure: AuthFailureSessionInvalid, Claims: claims}
	}

	sess, err := deps.Store.FindActive(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return AuthenticateResult{Failure: AuthFailureSessionInvalid, Claims: claims}
		}
		return AuthenticateResult{Failure: AuthFailurePersistence, Err: err, Claims: claims}
	}
	if sess.UserID != claims.UserID {
		deps.Logger.Warn().Str("user_id", claims.UserID).Str("session_id", sess.ID).Msg("token user does not own session")
		return AuthenticateResult{Failure: AuthFailureSessionInvalid, Claims: claims}
	}

	if sess.IdleFor(deps.Now()) > deps.IdleTimeout {
		if _, err := deps.Store.Deactivate(ctx, sess.Token); err != nil {
			// Still expired: the next request or the sweeper retries.
			deps.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("deactivate idle session failed")
		} else if deps.OnExpired != nil {
			deps.OnExpired(ctx, sess)
		}
		return AuthenticateResult{Failure: AuthFailureSessionExpired, Claims: claims, Session: sess}
	}

	if err := deps.Store.Touch(ctx, sess.Token); err != nil {
		deps.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session touch failed")
	}

	return AuthenticateResult{Claims: claims, Session: sess}
}
