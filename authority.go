package lmsauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/flows"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// Authority is the single decision point for session lifecycle: admission,
// request authentication and revocation.
//
// Authority is safe for concurrent use. It keeps no session state in
// process; every call consults the session store.
type Authority struct {
	config  Config
	store   session.Store
	users   UserProvider
	hasher  password.Hasher
	tokens  *jwt.Manager
	flows   flows.Service
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// HealthStatus reports session store reachability.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// Close drains the audit dispatcher.
func (a *Authority) Close() {
	if a == nil {
		return
	}
	a.audit.Close()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (a *Authority) AuditDropped() uint64 {
	if a == nil {
		return 0
	}
	return a.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (a *Authority) MetricsSnapshot() MetricsSnapshot {
	if a == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return a.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (a *Authority) Config() Config {
	return cloneConfig(a.config)
}

func (a *Authority) metricInc(id MetricID) {
	if a == nil || a.metrics == nil {
		return
	}
	a.metrics.Inc(id)
}

func (a *Authority) metricIncInt(id int) {
	a.metricInc(MetricID(id))
}

func (a *Authority) metricAddInt(id, n int) {
	if a == nil || a.metrics == nil || n <= 0 {
		return
	}
	a.metrics.Add(MetricID(id), uint64(n))
}

// Login admits a session for creds.
//
// Under PolicyEvictOldest the least recently active sessions are deactivated
// to stay within MaxSessions. Under PolicyRejectExisting a user at the limit
// gets ErrSessionConflict and no session is created.
func (a *Authority) Login(ctx context.Context, creds Credentials, client ClientInfo) (*LoginResult, error) {
	if a == nil || !a.flows.Initialized() {
		return nil, ErrAuthorityNotReady
	}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		a.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	out, err := a.flows.Login(ctx, flows.LoginInput{
		Email:      creds.Email,
		Password:   creds.Password,
		DeviceInfo: client.DeviceInfo,
		IPAddress:  client.IPAddress,
	})
	if err != nil {
		return nil, err
	}

	user, _ := out.User.Profile.(User)
	return &LoginResult{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		User:         user.Public(),
	}, nil
}

func (a *Authority) issueTokens(user flows.UserRecord, sessionToken string) (string, string, error) {
	claims := jwt.Claims{
		UserID:    user.ID,
		SessionID: sessionToken,
		Email:     user.Email,
		Role:      user.Role,
	}
	access, err := a.tokens.IssueAccess(claims)
	if err != nil {
		return "", "", err
	}
	refresh, err := a.tokens.IssueRefresh(claims)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Authenticate resolves a bearer token to the identity of an active session
// and records activity on it.
//
// Errors: ErrUnauthenticated (joined with the *jwt.InvalidTokenError when the
// token itself is bad), ErrSessionInvalid, ErrSessionExpired, ErrPersistence.
func (a *Authority) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if a == nil || !a.flows.Initialized() {
		return nil, ErrAuthorityNotReady
	}

	start := time.Now()
	result := a.flows.Authenticate(ctx, token)
	if a.metrics.Enabled() {
		a.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}

	switch result.Failure {
	case flows.AuthFailureNone:
		a.metricInc(MetricAuthenticateSuccess)
		return &Identity{
			UserID:    result.Claims.UserID,
			Email:     result.Claims.Email,
			Role:      Role(result.Claims.Role),
			SessionID: result.Claims.SessionID,
		}, nil
	case flows.AuthFailureMissingToken:
		a.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthenticated
	case flows.AuthFailureInvalidToken:
		a.metricInc(MetricAuthenticateFailure)
		var ite *jwt.InvalidTokenError
		if errors.As(result.Err, &ite) {
			a.logger.Debug().Str("reason", string(ite.Reason)).Msg("bearer token rejected")
		}
		return nil, errors.Join(ErrUnauthenticated, result.Err)
	case flows.AuthFailureSessionInvalid:
		a.metricInc(MetricAuthenticateFailure)
		return nil, ErrSessionInvalid
	case flows.AuthFailureSessionExpired:
		a.metricInc(MetricAuthenticateFailure)
		return nil, ErrSessionExpired
	default:
		a.metricInc(MetricPersistenceFailure)
		a.logger.Error().Err(result.Err).Msg("authenticate store lookup failed")
		return nil, errors.Join(ErrPersistence, result.Err)
	}
}

// Health pings the session store.
func (a *Authority) Health(ctx context.Context) HealthStatus {
	if a == nil || a.store == nil {
		return HealthStatus{}
	}
	ok, latency := a.flows.Health(ctx)
	return HealthStatus{StoreAvailable: ok, StoreLatency: latency}
}
