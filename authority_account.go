package lmsauth

import (
	"context"
	"errors"
	"strconv"
)

// ChangePassword verifies current, stores a hash of next and revokes every
// session of userID, including the one that made the request.
func (a *Authority) ChangePassword(ctx context.Context, userID, current, next string) error {
	if a == nil || !a.flows.Initialized() {
		return ErrAuthorityNotReady
	}
	res, err := a.flows.ChangePassword(ctx, userID, current, next)
	if err != nil {
		a.metricInc(MetricPasswordChangeFailure)
		a.countPersistence(err)
	} else {
		a.metricInc(MetricPasswordChangeSuccess)
		a.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
	}
	a.emitAudit(ctx, auditEventPasswordChange, err == nil, userID, "", err, revokedMeta(res.Revoked))
	return err
}

// UpdateAccountState sets the approval state of userID. Moving to
// StateBanned revokes every session.
func (a *Authority) UpdateAccountState(ctx context.Context, userID string, state AccountState) error {
	if a == nil || !a.flows.Initialized() {
		return ErrAuthorityNotReady
	}
	res, err := a.flows.UpdateAccountState(ctx, userID, string(state))
	if err != nil {
		a.countPersistence(err)
	} else if state == StateBanned {
		a.metricInc(MetricAccountBanned)
		a.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
	}
	a.emitAudit(ctx, auditEventAccountState, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{"state": string(state), "revoked": strconv.Itoa(res.Revoked)}
	})
	return err
}

// DeleteAccount soft deletes userID and revokes every session.
func (a *Authority) DeleteAccount(ctx context.Context, userID string) error {
	if a == nil || !a.flows.Initialized() {
		return ErrAuthorityNotReady
	}
	res, err := a.flows.DeleteAccount(ctx, userID)
	if err != nil {
		a.countPersistence(err)
	} else {
		a.metricInc(MetricAccountDeleted)
		a.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
	}
	a.emitAudit(ctx, auditEventAccountDeleted, err == nil, userID, "", err, revokedMeta(res.Revoked))
	return err
}

func (a *Authority) countPersistence(err error) {
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrSessionInvalidationFailed) {
		a.metricInc(MetricPersistenceFailure)
	}
}

func revokedMeta(n int) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	}
}
