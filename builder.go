package lmsauth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth/internal"
	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/flows"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// Builder assembles an Authority. A Builder can be built once.
type Builder struct {
	config Config

	store     session.Store
	users     UserProvider
	hasher    password.Hasher
	auditSink AuditSink
	logger    zerolog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSessionStore sets the session ledger. Required.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider sets the credential store collaborator. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithHasher sets the password verifier. Defaults to bcrypt at
// password.DefaultBcryptCost.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination; it only receives events when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for idle checks and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Authority.
func (b *Builder) Build() (*Authority, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		bc, err := password.NewBcrypt(password.DefaultBcryptCost)
		if err != nil {
			return nil, err
		}
		hasher = bc
	}

	tokens, err := jwt.NewManager(jwtConfig(cfg.JWT, now))
	if err != nil {
		return nil, err
	}

	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}

	a := &Authority{
		config:  cfg,
		store:   b.store,
		users:   b.users,
		hasher:  hasher,
		tokens:  tokens,
		logger:  b.logger.With().Str("component", "authority").Logger(),
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}
	a.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, a.logger)
	a.flows = flows.New(a.flowDeps(dummyHash))

	b.built = true
	return a, nil
}

func jwtConfig(c JWTConfig, now func() time.Time) jwt.Config {
	out := jwt.Config{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Issuer:        c.Issuer,
		Leeway:        c.Leeway,
		Now:           now,
		Access:        jwt.KeyConfig{TTL: c.AccessTTL},
		Refresh:       jwt.KeyConfig{TTL: c.RefreshTTL},
	}
	if out.SigningMethod == jwt.MethodEd25519 {
		out.Access.PrivateKey = cloneBytes(c.AccessPrivateKey)
		out.Access.PublicKey = cloneBytes(c.AccessPublicKey)
		out.Refresh.PrivateKey = cloneBytes(c.RefreshPrivateKey)
		out.Refresh.PublicKey = cloneBytes(c.RefreshPublicKey)
	} else {
		out.Access.PrivateKey = cloneBytes(c.AccessSecret)
		out.Refresh.PrivateKey = cloneBytes(c.RefreshSecret)
	}
	return out
}

func newDummyHash(h password.Hasher) (string, error) {
	raw, err := internal.RandomBytes(24)
	if err != nil {
		return "", err
	}
	return h.Hash(base64.RawURLEncoding.EncodeToString(raw))
}

func (a *Authority) flowDeps(dummyHash string) flows.Deps {
	var (
		needsRehash func(string) bool
		hashFn      func(string) (string, error)
		updatePw    func(context.Context, string, string) error
	)
	if r, ok := a.hasher.(password.Rehasher); ok && a.config.Password.UpgradeOnLogin {
		needsRehash = r.NeedsRehash
		hashFn = a.hasher.Hash
		updatePw = a.users.UpdatePasswordHash
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			MaxSessions:    a.config.Session.MaxSessions,
			RejectExisting: a.config.Session.LoginPolicy == PolicyRejectExisting,
			LockTimeout:    a.config.Session.LockTimeout,
			DummyHash:      dummyHash,

			FindUserByEmail: func(ctx context.Context, email string) (flows.UserRecord, error) {
				u, err := a.users.FindByEmail(ctx, strings.TrimSpace(email))
				if err != nil {
					return flows.UserRecord{}, err
				}
				return toUserRecord(u), nil
			},
			FindUserByID:      a.findUserRecord,
			VerifyPassword:    a.hasher.Verify,
			NeedsRehash:       needsRehash,
			HashPassword:      hashFn,
			UpdatePassword:    updatePw,
			AccountStateError: accountStateError,

			Store:           a.store,
			NewSessionToken: internal.NewSessionToken,
			IssueTokens:     a.issueTokens,

			Logger:    &a.logger,
			MetricInc: a.metricIncInt,
			MetricAdd: a.metricAddInt,
			EmitAudit: a.emitAudit,

			Metrics: flows.LoginMetrics{
				LoginSuccess:       int(MetricLoginSuccess),
				LoginFailure:       int(MetricLoginFailure),
				LoginAccountState:  int(MetricLoginAccountState),
				LoginConflict:      int(MetricLoginConflict),
				SessionCreated:     int(MetricSessionCreated),
				SessionEvicted:     int(MetricSessionEvicted),
				PasswordRehashed:   int(MetricPasswordRehashed),
				PersistenceFailure: int(MetricPersistenceFailure),
			},
			Events: flows.LoginEvents{
				LoginSuccess:   auditEventLoginSuccess,
				LoginFailure:   auditEventLoginFailure,
				SessionEvicted: auditEventSessionEvicted,
			},
			Errors: flows.LoginErrors{
				NotReady:           ErrAuthorityNotReady,
				InvalidCredentials: ErrInvalidCredentials,
				UserNotFound:       ErrUserNotFound,
				SessionConflict:    ErrSessionConflict,
				Persistence:        ErrPersistence,
				TokenIssuance:      ErrTokenIssuance,
			},
		},
		Authenticate: flows.AuthenticateDeps{
			IdleTimeout:      a.config.Session.IdleTimeout,
			Now:              a.now,
			VerifyAccess:     a.tokens.VerifyAccess,
			ValidTokenFormat: internal.ValidSessionToken,
			Store:            a.store,
			Logger:           &a.logger,
			OnExpired: func(ctx context.Context, sess *session.Session) {
				a.metricInc(MetricSessionExpired)
				a.emitAudit(ctx, auditEventSessionExpired, true, sess.UserID, sess.ID, nil, nil)
			},
		},
		Revoke: flows.RevokeDeps{
			Store:       a.store,
			IdleTimeout: a.config.Session.IdleTimeout,
			LockTimeout: a.config.Session.LockTimeout,
			Persistence: ErrPersistence,
		},
		Account: flows.AccountDeps{
			MinPasswordLength: a.config.Password.MinLength,
			BannedState:       string(StateBanned),
			LockTimeout:       a.config.Session.LockTimeout,

			FindUserByID:       a.findUserRecord,
			VerifyPassword:     a.hasher.Verify,
			HashPassword:       a.hasher.Hash,
			UpdatePasswordHash: a.users.UpdatePasswordHash,
			UpdateState: func(ctx context.Context, id, state string) error {
				return a.users.UpdateAccountState(ctx, id, AccountState(state))
			},
			ValidState: func(s string) bool { return AccountState(s).Valid() },
			SoftDelete: a.users.SoftDelete,

			Store:  a.store,
			Logger: &a.logger,

			Errors: flows.AccountErrors{
				NotReady:               ErrAuthorityNotReady,
				UserNotFound:           ErrUserNotFound,
				InvalidCurrentPassword: ErrInvalidCurrentPassword,
				PasswordPolicy:         ErrPasswordPolicy,
				PasswordReuse:          ErrPasswordReuse,
				InvalidState:           ErrInvalidAccountState,
				Persistence:            ErrPersistence,
				InvalidationFailed:     ErrSessionInvalidationFailed,
			},
		},
	}
}

func (a *Authority) findUserRecord(ctx context.Context, id string) (flows.UserRecord, error) {
	u, err := a.users.FindByID(ctx, id)
	if err != nil {
		return flows.UserRecord{}, err
	}
	return toUserRecord(u), nil
}

func toUserRecord(u User) flows.UserRecord {
	return flows.UserRecord{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		State:        string(u.State),
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.IsDeleted,
		Profile:      u,
	}
}

// accountStateError checks usability in a fixed order so that a deleted and
// banned account reports deletion.
func accountStateError(u flows.UserRecord) error {
	switch {
	case u.IsDeleted:
		return errAccountDeleted
	case !u.IsActive:
		return errAccountInactive
	case u.State == string(StateBanned):
		return errAccountBanned
	case u.State == string(StatePending):
		return errAccountPending
	}
	return nil
}
