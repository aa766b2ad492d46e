package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrSessionNotFound is returned when no active session matches a lookup.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps every storage fault.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrDuplicateToken is returned by Create when the token is already recorded.
	ErrDuplicateToken = errors.New("duplicate session token")
	// ErrLockTimeout is returned when the per-user admission lock cannot be taken in time.
	ErrLockTimeout = errors.New("session lock timeout")
)

// Store is the ledger of session records.
//
// Every mutation is atomic at the storage layer. The store applies no idle
// policy on reads; FindActive returns sessions regardless of idle age.
type Store interface {
	Create(ctx context.Context, in NewSession) (*Session, error)
	FindActive(ctx context.Context, token string) (*Session, error)
	FindByID(ctx context.Context, id, userID string) (*Session, error)
	CountActive(ctx context.Context, userID string) (int, error)
	// ListActive returns active sessions ordered by LastActivity, newest first.
	ListActive(ctx context.Context, userID string) ([]*Session, error)
	// Touch moves LastActivity forward to now; it never moves it backward.
	Touch(ctx context.Context, token string) error
	Deactivate(ctx context.Context, token string) (bool, error)
	// DeactivateByID only affects a session owned by userID.
	DeactivateByID(ctx context.Context, id, userID string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int, error)
	// DeleteOldest soft-revokes the active session with the smallest
	// LastActivity, breaking ties by CreatedAt.
	DeleteOldest(ctx context.Context, userID string) (bool, error)
	SweepExpired(ctx context.Context, idleTimeout time.Duration) (int, error)
	// LockUser serializes admission decisions for one user across processes.
	// ctx bounds the wait for the lock. The returned scope must be released.
	LockUser(ctx context.Context, userID string) (UserLock, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// UserLock is a held per-user lock. Its operations act on the locked user
// and must not be mixed with calls that need a second store connection.
type UserLock interface {
	CountActive(ctx context.Context) (int, error)
	DeleteOldest(ctx context.Context) (bool, error)
	Create(ctx context.Context, in NewSession) (*Session, error)
	DeactivateAll(ctx context.Context) (int, error)
	// Commit makes the writes made under the lock visible and releases it.
	Commit(ctx context.Context) error
	// Release drops the lock. Uncommitted writes are discarded where the
	// backend is transactional. Calling it after Commit is a no-op.
	Release()
}

// Option configures a store implementation.
type Option func(*options)

type options struct {
	now            func() time.Time
	logger         zerolog.Logger
	prefix         string
	retainInactive time.Duration
	lockTTL        time.Duration
}

func defaultOptions() options {
	return options{
		now:            time.Now,
		logger:         zerolog.Nop(),
		prefix:         "ls",
		retainInactive: 30 * 24 * time.Hour,
		lockTTL:        10 * time.Second,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source used for LastActivity and sweeps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger attaches a logger for debug traces.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithKeyPrefix sets the Redis key namespace. Ignored by PostgresStore.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithInactiveRetention sets how long revoked records stay readable in Redis.
// Zero keeps them forever. Ignored by PostgresStore, which never hard-deletes.
func WithInactiveRetention(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retainInactive = d
		}
	}
}

// WithLockTTL bounds how long a Redis admission lock survives a crashed holder.
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// TokenPrefix returns the first characters of a session token, enough to
// correlate log lines without exposing the credential.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
