package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// LoginInput is the flow-local login request.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
}

// LoginOutput is the flow-local login response.
type LoginOutput struct {
	AccessToken  string
	RefreshToken string
	User         UserRecord
	Session      *session.Session
	Evicted      int
}

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	LoginSuccess       int
	LoginFailure       int
	LoginAccountState  int
	LoginConflict      int
	SessionCreated     int
	SessionEvicted     int
	PasswordRehashed   int
	PersistenceFailure int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess   string
	LoginFailure   string
	SessionEvicted string
}

// LoginErrors carries root sentinel errors used by the login flow.
type LoginErrors struct {
	NotReady           error
	InvalidCredentials error
	UserNotFound       error
	SessionConflict    error
	Persistence        error
	TokenIssuance      error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	MaxSessions    int
	RejectExisting bool
	LockTimeout    time.Duration
	// DummyHash is verified against when the email is unknown so that both
	// failure paths cost one hash verification.
	DummyHash string

	FindUserByEmail   func(context.Context, string) (UserRecord, error)
	FindUserByID      func(context.Context, string) (UserRecord, error)
	VerifyPassword    func(plain, hash string) bool
	NeedsRehash       func(hash string) bool
	HashPassword      func(string) (string, error)
	UpdatePassword    func(context.Context, string, string) error
	AccountStateError func(UserRecord) error

	Store           session.Store
	NewSessionToken func() (string, error)
	IssueTokens     func(user UserRecord, sessionToken string) (access, refresh string, err error)

	Logger    *zerolog.Logger
	MetricInc func(int)
	MetricAdd func(id, n int)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials, applies the admission policy under the
// per-user lock, creates the session and mints its tokens.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginOutput, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noMetric
	}
	if deps.MetricAdd == nil {
		deps.MetricAdd = func(id, n int) {
			for range n {
				deps.MetricInc(id)
			}
		}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noAudit
	}
	deps.Logger = nopLogger(deps.Logger)
	if deps.FindUserByEmail == nil ||
		deps.FindUserByID == nil ||
		deps.VerifyPassword == nil ||
		deps.AccountStateError == nil ||
		deps.Store == nil ||
		deps.NewSessionToken == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.NotReady
	}

	fail := func(userID, reason string, err error) (*LoginOutput, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{"reason": reason, "ip": in.IPAddress}
		})
		return nil, err
	}

	user, err := deps.FindUserByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			deps.MetricInc(deps.Metrics.PersistenceFailure)
			deps.Logger.Error().Err(err).Msg("login user lookup failed")
			return fail("", "user_lookup", errors.Join(deps.Errors.Persistence, err))
		}
		deps.VerifyPassword(in.Password, deps.DummyHash)
		return fail("", "unknown_email", deps.Errors.InvalidCredentials)
	}

	if !deps.VerifyPassword(in.Password, user.PasswordHash) {
		return fail(user.ID, "bad_password", deps.Errors.InvalidCredentials)
	}

	if err := deps.AccountStateError(user); err != nil {
		deps.MetricInc(deps.Metrics.LoginAccountState)
		return fail(user.ID, "account_state", err)
	}

	user.PasswordHash = upgradePasswordHash(ctx, user, in.Password, deps)

	sess, evicted, err := admit(ctx, user, in, deps)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionConflict) {
			deps.MetricInc(deps.Metrics.LoginConflict)
			return fail(user.ID, "session_conflict", err)
		}
		deps.MetricInc(deps.Metrics.PersistenceFailure)
		deps.Logger.Error().Err(err).Str("user_id", user.ID).Msg("login admission failed")
		return fail(user.ID, "admission", err)
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	// discard revokes the new session before any token for it exists.
	discard := func() {
		if _, derr := deps.Store.Deactivate(context.WithoutCancel(ctx), sess.Token); derr != nil {
			deps.Logger.Error().Err(derr).Str("session_id", sess.ID).Msg("deactivate after failed login")
		}
	}

	if reason, err := recheckUser(ctx, user, in.Password, deps); err != nil {
		discard()
		if reason == "account_state" {
			deps.MetricInc(deps.Metrics.LoginAccountState)
		}
		return fail(user.ID, reason, err)
	}

	access, refresh, err := deps.IssueTokens(user, sess.Token)
	if err != nil {
		discard()
		deps.Logger.Error().Err(err).Str("user_id", user.ID).Msg("token issuance failed")
		return fail(user.ID, "token_issuance", errors.Join(deps.Errors.TokenIssuance, err))
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"ip": in.IPAddress, "device": sess.DeviceInfo}
	})
	deps.Logger.Debug().Str("user_id", user.ID).Str("session_id", sess.ID).Int("evicted", evicted).Msg("login admitted")

	return &LoginOutput{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
		Session:      sess,
		Evicted:      evicted,
	}, nil
}

// admit runs count, policy and create inside the user's lock scope.
// LockTimeout bounds both the wait for the lock and the work done under it.
func admit(ctx context.Context, user UserRecord, in LoginInput, deps LoginDeps) (*session.Session, int, error) {
	lockCtx := ctx
	if deps.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, deps.LockTimeout)
		defer cancel()
	}
	lock, err := deps.Store.LockUser(lockCtx, user.ID)
	if err != nil {
		return nil, 0, errors.Join(deps.Errors.Persistence, err)
	}
	defer lock.Release()

	count, err := lock.CountActive(lockCtx)
	if err != nil {
		return nil, 0, errors.Join(deps.Errors.Persistence, err)
	}

	evicted := 0
	if count >= deps.MaxSessions {
		if deps.RejectExisting {
			return nil, 0, deps.Errors.SessionConflict
		}
		// A loop, not a single eviction: MaxSessions may have been lowered.
		for count >= deps.MaxSessions {
			ok, err := lock.DeleteOldest(lockCtx)
			if err != nil {
				return nil, 0, errors.Join(deps.Errors.Persistence, err)
			}
			if !ok {
				break
			}
			count--
			evicted++
		}
	}

	token, err := deps.NewSessionToken()
	if err != nil {
		return nil, 0, errors.Join(deps.Errors.Persistence, err)
	}
	sess, err := lock.Create(lockCtx, session.NewSession{
		UserID:     user.ID,
		Token:      token,
		DeviceInfo: in.DeviceInfo,
		IPAddress:  in.IPAddress,
	})
	if err != nil {
		return nil, 0, errors.Join(deps.Errors.Persistence, err)
	}
	if err := lock.Commit(lockCtx); err != nil {
		return nil, 0, errors.Join(deps.Errors.Persistence, err)
	}

	if evicted > 0 {
		deps.MetricAdd(deps.Metrics.SessionEvicted, evicted)
		deps.EmitAudit(ctx, deps.Events.SessionEvicted, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"count": strconv.Itoa(evicted)}
		})
	}
	return sess, evicted, nil
}

// recheckUser reads the user again once the session is committed. An account
// change that wrote before this read is seen here; one that writes after it
// revokes the committed session itself.
func recheckUser(ctx context.Context, admitted UserRecord, plain string, deps LoginDeps) (reason string, err error) {
	user, err := deps.FindUserByID(ctx, admitted.ID)
	switch {
	case errors.Is(err, deps.Errors.UserNotFound):
		user = UserRecord{ID: admitted.ID, IsDeleted: true}
	case err != nil:
		deps.MetricInc(deps.Metrics.PersistenceFailure)
		deps.Logger.Error().Err(err).Str("user_id", admitted.ID).Msg("login user recheck failed")
		return "user_recheck", errors.Join(deps.Errors.Persistence, err)
	}
	if err := deps.AccountStateError(user); err != nil {
		return "account_state", err
	}
	// A concurrent login may have upgraded the hash without changing the
	// password, so a differing hash is verified before it is rejected.
	if user.PasswordHash != admitted.PasswordHash && !deps.VerifyPassword(plain, user.PasswordHash) {
		return "password_changed", deps.Errors.InvalidCredentials
	}
	return "", nil
}

// upgradePasswordHash returns the hash stored for the user afterwards.
func upgradePasswordHash(ctx context.Context, user UserRecord, plain string, deps LoginDeps) string {
	if deps.NeedsRehash == nil || deps.HashPassword == nil || deps.UpdatePassword == nil {
		return user.PasswordHash
	}
	if !deps.NeedsRehash(user.PasswordHash) {
		return user.PasswordHash
	}
	hash, err := deps.HashPassword(plain)
	if err != nil {
		deps.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash failed")
		return user.PasswordHash
	}
	if err := deps.UpdatePassword(ctx, user.ID, hash); err != nil {
		deps.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash not stored")
		return user.PasswordHash
	}
	deps.MetricInc(deps.Metrics.PasswordRehashed)
	return hash
}
