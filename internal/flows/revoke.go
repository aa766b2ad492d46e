package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/session"
)

// RevokeDeps captures revocation and introspection dependencies.
type RevokeDeps struct {
	Store       session.Store
	IdleTimeout time.Duration
	LockTimeout time.Duration
	Persistence error
}

// RunLogout deactivates the session bound to sessionToken. Repeating it is
// harmless and reports false.
func RunLogout(ctx context.Context, sessionToken string, deps RevokeDeps) (bool, error) {
	if sessionToken == "" {
		return false, nil
	}
	ok, err := deps.Store.Deactivate(ctx, sessionToken)
	if err != nil {
		return false, errors.Join(deps.Persistence, err)
	}
	return ok, nil
}

// RunListSessions returns the active sessions of userID, most recent first.
func RunListSessions(ctx context.Context, userID string, deps RevokeDeps) ([]*session.Session, error) {
	sessions, err := deps.Store.ListActive(ctx, userID)
	if err != nil {
		return nil, errors.Join(deps.Persistence, err)
	}
	return sessions, nil
}

// RunKillSession deactivates sessionID only when userID owns it. Foreign and
// already inactive sessions both report false.
func RunKillSession(ctx context.Context, userID, sessionID string, deps RevokeDeps) (bool, error) {
	if userID == "" || sessionID == "" {
		return false, nil
	}
	ok, err := deps.Store.DeactivateByID(ctx, sessionID, userID)
	if err != nil {
		return false, errors.Join(deps.Persistence, err)
	}
	return ok, nil
}

// RunForceLogoutAll deactivates every active session of userID, including
// one an in-flight login is about to create.
func RunForceLogoutAll(ctx context.Context, userID string, deps RevokeDeps) (int, error) {
	if deps.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.LockTimeout)
		defer cancel()
	}
	n, err := deactivateLocked(ctx, userID, deps.Store)
	if err != nil {
		return 0, errors.Join(deps.Persistence, err)
	}
	return n, nil
}

// RunHasActiveSession reports whether userID has at least one active session.
func RunHasActiveSession(ctx context.Context, userID string, deps RevokeDeps) (bool, error) {
	n, err := deps.Store.CountActive(ctx, userID)
	if err != nil {
		return false, errors.Join(deps.Persistence, err)
	}
	return n > 0, nil
}

// RunSweepExpired deactivates sessions idle longer than the configured timeout.
func RunSweepExpired(ctx context.Context, deps RevokeDeps) (int, error) {
	n, err := deps.Store.SweepExpired(ctx, deps.IdleTimeout)
	if err != nil {
		return 0, errors.Join(deps.Persistence, err)
	}
	return n, nil
}

// RunHealth pings the session store.
func RunHealth(ctx context.Context, deps RevokeDeps) (bool, time.Duration) {
	latency, err := deps.Store.Ping(ctx)
	if err != nil {
		return false, 0
	}
	return true, latency
}
