package lmsauth

import (
	"errors"
	"time"
)

// Config holds every tunable of the authority.
//
// Config is copied by Builder.WithConfig and treated as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the bearer token codec.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 key material, PEM or raw.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer string
	Leeway time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// LoginPolicy selects what Login does when the user is at MaxSessions.
type LoginPolicy string

const (
	// PolicyEvictOldest deactivates the least recently active sessions and admits the login.
	PolicyEvictOldest LoginPolicy = "evict-oldest"
	// PolicyRejectExisting refuses the login with ErrSessionConflict.
	PolicyRejectExisting LoginPolicy = "reject-existing"
)

// SessionConfig bounds concurrent sessions and idle lifetime.
type SessionConfig struct {
	IdleTimeout time.Duration
	MaxSessions int
	LoginPolicy LoginPolicy
	// LockTimeout bounds waiting for the per-user admission lock.
	LockTimeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the password policy enforced on change.
type PasswordConfig struct {
	MinLength int
	// UpgradeOnLogin rehashes stored hashes that the hasher reports as outdated.
	UpgradeOnLogin bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns defaults matching the documented environment
// defaults. Secrets are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
			MaxSessions: 2,
			LoginPolicy: PolicyEvictOldest,
			LockTimeout: 5 * time.Second,
		},
		Password: PasswordConfig{
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
		if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
			return errors.New("JWT AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessPublicKey) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("ed25519 requires access and refresh public keys")
		}
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.RefreshPrivateKey) == 0 {
			return errors.New("ed25519 requires access and refresh private keys")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Session
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.MaxSessions < 1 {
		return errors.New("Session MaxSessions must be >= 1")
	}
	if c.Session.LoginPolicy != PolicyEvictOldest && c.Session.LoginPolicy != PolicyRejectExisting {
		return errors.New("Session LoginPolicy must be 'evict-oldest' or 'reject-existing'")
	}
	if c.Session.LockTimeout <= 0 {
		return errors.New("Session LockTimeout must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
