package flows

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// AccountErrors carries root sentinel errors used by account flows.
type AccountErrors struct {
	NotReady               error
	UserNotFound           error
	InvalidCurrentPassword error
	PasswordPolicy         error
	PasswordReuse          error
	InvalidState           error
	Persistence            error
	InvalidationFailed     error
}

// AccountDeps captures dependencies of account mutations that carry session
// side effects.
type AccountDeps struct {
	MinPasswordLength int
	BannedState       string
	LockTimeout       time.Duration

	FindUserByID       func(context.Context, string) (UserRecord, error)
	VerifyPassword     func(plain, hash string) bool
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(context.Context, string, string) error
	UpdateState        func(context.Context, string, string) error
	ValidState         func(string) bool
	SoftDelete         func(context.Context, string) error

	Store  session.Store
	Logger *zerolog.Logger

	Errors AccountErrors
}

// AccountResult reports how many sessions a mutation revoked.
type AccountResult struct {
	Revoked int
}

// RunChangePassword verifies the current password, stores the new hash and
// revokes every session of the user, including the caller's.
func RunChangePassword(ctx context.Context, userID, current, next string, deps AccountDeps) (AccountResult, error) {
	if deps.FindUserByID == nil || deps.VerifyPassword == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return AccountResult{}, deps.Errors.NotReady
	}
	deps.Logger = nopLogger(deps.Logger)

	user, err := findUser(ctx, userID, deps)
	if err != nil {
		return AccountResult{}, err
	}
	if !deps.VerifyPassword(current, user.PasswordHash) {
		return AccountResult{}, deps.Errors.InvalidCurrentPassword
	}
	if utf8.RuneCountInString(next) < deps.MinPasswordLength {
		return AccountResult{}, deps.Errors.PasswordPolicy
	}
	if current == next {
		return AccountResult{}, deps.Errors.PasswordReuse
	}

	hash, err := deps.HashPassword(next)
	if err != nil {
		return AccountResult{}, errors.Join(deps.Errors.Persistence, err)
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return AccountResult{}, mapUserErr(err, deps)
	}

	return revokeAll(ctx, user.ID, deps)
}

// RunUpdateAccountState writes state and, for the banned state, revokes every
// session of the user.
func RunUpdateAccountState(ctx context.Context, userID, state string, deps AccountDeps) (AccountResult, error) {
	if deps.FindUserByID == nil || deps.UpdateState == nil {
		return AccountResult{}, deps.Errors.NotReady
	}
	deps.Logger = nopLogger(deps.Logger)
	if deps.ValidState != nil && !deps.ValidState(state) {
		return AccountResult{}, deps.Errors.InvalidState
	}

	user, err := findUser(ctx, userID, deps)
	if err != nil {
		return AccountResult{}, err
	}
	if user.State != state {
		if err := deps.UpdateState(ctx, user.ID, state); err != nil {
			return AccountResult{}, mapUserErr(err, deps)
		}
	}
	if state != deps.BannedState {
		return AccountResult{}, nil
	}
	return revokeAll(ctx, user.ID, deps)
}

// RunDeleteAccount soft deletes the user and revokes every session.
func RunDeleteAccount(ctx context.Context, userID string, deps AccountDeps) (AccountResult, error) {
	if deps.FindUserByID == nil || deps.SoftDelete == nil {
		return AccountResult{}, deps.Errors.NotReady
	}
	deps.Logger = nopLogger(deps.Logger)

	user, err := findUser(ctx, userID, deps)
	if err != nil {
		return AccountResult{}, err
	}
	if err := deps.SoftDelete(ctx, user.ID); err != nil {
		return AccountResult{}, mapUserErr(err, deps)
	}
	return revokeAll(ctx, user.ID, deps)
}

func findUser(ctx context.Context, userID string, deps AccountDeps) (UserRecord, error) {
	if userID == "" {
		return UserRecord{}, deps.Errors.UserNotFound
	}
	user, err := deps.FindUserByID(ctx, userID)
	if err != nil {
		return UserRecord{}, mapUserErr(err, deps)
	}
	return user, nil
}

func mapUserErr(err error, deps AccountDeps) error {
	if errors.Is(err, deps.Errors.UserNotFound) {
		return deps.Errors.UserNotFound
	}
	return errors.Join(deps.Errors.Persistence, err)
}

// revokeAll runs after the user write has committed; a failure here leaves
// sessions the caller must retry revoking. It takes the admission lock so an
// in-flight login finishes first and its session is revoked with the rest.
func revokeAll(ctx context.Context, userID string, deps AccountDeps) (AccountResult, error) {
	lockCtx := ctx
	if deps.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, deps.LockTimeout)
		defer cancel()
	}

	n, err := deactivateLocked(lockCtx, userID, deps.Store)
	if err != nil {
		deps.Logger.Error().Err(err).Str("user_id", userID).Msg("session revocation after account change failed")
		return AccountResult{}, errors.Join(deps.Errors.InvalidationFailed, err)
	}
	return AccountResult{Revoked: n}, nil
}

func deactivateLocked(ctx context.Context, userID string, store session.Store) (int, error) {
	lock, err := store.LockUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	n, err := lock.DeactivateAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := lock.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
