package lmsauth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/lmsauth/session"
)

// Logout deactivates the caller's own session, identified by the session
// token carried in its bearer token. Logging out twice is not an error.
func (a *Authority) Logout(ctx context.Context, sessionToken string) error {
	if a == nil || !a.flows.Initialized() {
		return ErrAuthorityNotReady
	}
	ok, err := a.flows.Logout(ctx, sessionToken)
	if err != nil {
		a.metricInc(MetricPersistenceFailure)
		a.emitAudit(ctx, auditEventLogout, false, "", "", err, nil)
		return err
	}
	if ok {
		a.metricInc(MetricLogout)
		a.emitAudit(ctx, auditEventLogout, true, "", "", nil, func() map[string]string {
			return map[string]string{"token_prefix": session.TokenPrefix(sessionToken)}
		})
	}
	return nil
}

// ListSessions returns the redacted active sessions of userID, most
// recently active first.
func (a *Authority) ListSessions(ctx context.Context, userID string) ([]SessionView, error) {
	if a == nil || !a.flows.Initialized() {
		return nil, ErrAuthorityNotReady
	}
	sessions, err := a.flows.ListSessions(ctx, userID)
	if err != nil {
		a.metricInc(MetricPersistenceFailure)
		return nil, err
	}

	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{
			ID:           s.ID,
			DeviceInfo:   s.DeviceInfo,
			IPAddress:    s.IPAddress,
			LastActivity: s.LastActivity,
			CreatedAt:    s.CreatedAt,
		})
	}
	return out, nil
}

// KillSession deactivates sessionID if userID owns it. It returns false for a
// session that belongs to someone else or is already inactive.
func (a *Authority) KillSession(ctx context.Context, userID, sessionID string) (bool, error) {
	if a == nil || !a.flows.Initialized() {
		return false, ErrAuthorityNotReady
	}
	ok, err := a.flows.KillSession(ctx, userID, sessionID)
	if err != nil {
		a.metricInc(MetricPersistenceFailure)
	} else if ok {
		a.metricInc(MetricSessionKilled)
	}
	a.emitAudit(ctx, auditEventSessionKilled, ok, userID, sessionID, err, nil)
	return ok, err
}

// ForceLogoutAll deactivates every active session of userID and returns how
// many were active.
func (a *Authority) ForceLogoutAll(ctx context.Context, userID string) (int, error) {
	if a == nil || !a.flows.Initialized() {
		return 0, ErrAuthorityNotReady
	}
	n, err := a.flows.ForceLogoutAll(ctx, userID)
	if err != nil {
		a.metricInc(MetricPersistenceFailure)
	} else {
		a.metricInc(MetricForceLogout)
		a.metrics.Add(MetricSessionInvalidated, uint64(n))
	}
	a.emitAudit(ctx, auditEventForceLogout, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, err
}

// HasActiveSession reports whether userID is logged in anywhere.
func (a *Authority) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	if a == nil || !a.flows.Initialized() {
		return false, ErrAuthorityNotReady
	}
	return a.flows.HasActiveSession(ctx, userID)
}

// SweepExpired deactivates every session idle longer than the configured
// timeout. Authentication enforces expiry on its own; the sweep only keeps
// counts and listings tidy.
func (a *Authority) SweepExpired(ctx context.Context) (int, error) {
	if a == nil || !a.flows.Initialized() {
		return 0, ErrAuthorityNotReady
	}
	n, err := a.flows.SweepExpired(ctx)
	if err != nil {
		a.metricInc(MetricPersistenceFailure)
		return 0, err
	}
	a.metrics.Add(MetricSweepDeactivated, uint64(n))
	if n > 0 {
		a.logger.Info().Int("count", n).Msg("expired sessions swept")
	}
	return n, nil
}
