package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth/session"
)

// Service is the centralized flow runner built once by the root authority.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.VerifyAccess != nil && s.deps.Revoke.Store != nil
}

func (s Service) Login(ctx context.Context, in LoginInput) (*LoginOutput, error) {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) Authenticate(ctx context.Context, token string) AuthenticateResult {
	return RunAuthenticate(ctx, token, s.deps.Authenticate)
}

func (s Service) Logout(ctx context.Context, sessionToken string) (bool, error) {
	return RunLogout(ctx, sessionToken, s.deps.Revoke)
}

func (s Service) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return RunListSessions(ctx, userID, s.deps.Revoke)
}

func (s Service) KillSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return RunKillSession(ctx, userID, sessionID, s.deps.Revoke)
}

func (s Service) ForceLogoutAll(ctx context.Context, userID string) (int, error) {
	return RunForceLogoutAll(ctx, userID, s.deps.Revoke)
}

func (s Service) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	return RunHasActiveSession(ctx, userID, s.deps.Revoke)
}

func (s Service) SweepExpired(ctx context.Context) (int, error) {
	return RunSweepExpired(ctx, s.deps.Revoke)
}

func (s Service) Health(ctx context.Context) (bool, time.Duration) {
	return RunHealth(ctx, s.deps.Revoke)
}

func (s Service) ChangePassword(ctx context.Context, userID, current, next string) (AccountResult, error) {
	return RunChangePassword(ctx, userID, current, next, s.deps.Account)
}

func (s Service) UpdateAccountState(ctx context.Context, userID, state string) (AccountResult, error) {
	return RunUpdateAccountState(ctx, userID, state, s.deps.Account)
}

func (s Service) DeleteAccount(ctx context.Context, userID string) (AccountResult, error) {
	return RunDeleteAccount(ctx, userID, s.deps.Account)
}
