// Package config loads server settings from the environment and an optional
// .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/db"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/spf13/viper"
)

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds process configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for users and, with SESSION_STORE=postgres, sessions.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBMaxConns caps the pool; admission locks hold one connection per concurrent login.
	DBMaxConns int32 `mapstructure:"DB_MAX_CONNS"`

	// SessionStore is "postgres" or "redis".
	SessionStore  string `mapstructure:"SESSION_STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret           string `mapstructure:"JWT_SECRET"`
	JWTExpiresIn        string `mapstructure:"JWT_EXPIRES_IN"`
	JWTRefreshSecret    string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTRefreshExpiresIn string `mapstructure:"JWT_REFRESH_EXPIRES_IN"`
	JWTIssuer           string `mapstructure:"JWT_ISSUER"`

	SessionTimeoutMinutes int    `mapstructure:"SESSION_TIMEOUT_MINUTES"`
	MaxSessions           int    `mapstructure:"MAX_SESSIONS"`
	LoginPolicy           string `mapstructure:"LOGIN_POLICY"`
	// SweepInterval is how often idle sessions are swept; "0" disables the sweeper.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	// PasswordHasher is "bcrypt" or "argon2"; the other format still verifies.
	PasswordHasher    string `mapstructure:"PASSWORD_HASHER"`
	BcryptCost        int    `mapstructure:"BCRYPT_COST"`
	PasswordMinLength int    `mapstructure:"PASSWORD_MIN_LENGTH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// LogFile, when set, receives logs through a rotating writer.
	LogFile string `mapstructure:"LOG_FILE"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// Load reads envFile (if present), then builds and validates Config from the
// environment. A missing file is ignored; env vars override file values.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("SESSION_STORE", StorePostgres)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_REFRESH_EXPIRES_IN", "7d")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("SESSION_TIMEOUT_MINUTES", 30)
	v.SetDefault("MAX_SESSIONS", 2)
	v.SetDefault("LOGIN_POLICY", string(lmsauth.PolicyEvictOldest))
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("PASSWORD_HASHER", "bcrypt")
	v.SetDefault("BCRYPT_COST", password.DefaultBcryptCost)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("METRICS_ENABLED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.SessionStore != StorePostgres && c.SessionStore != StoreRedis {
		return fmt.Errorf("config: SESSION_STORE must be %q or %q", StorePostgres, StoreRedis)
	}
	if c.SessionTimeoutMinutes <= 0 {
		return errors.New("config: SESSION_TIMEOUT_MINUTES must be > 0")
	}
	if c.MaxSessions < 1 {
		return errors.New("config: MAX_SESSIONS must be >= 1")
	}
	switch lmsauth.LoginPolicy(c.LoginPolicy) {
	case lmsauth.PolicyEvictOldest, lmsauth.PolicyRejectExisting:
	default:
		return fmt.Errorf("config: LOGIN_POLICY %q is not supported", c.LoginPolicy)
	}
	if _, err := c.hasherName(); err != nil {
		return err
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	for key, val := range map[string]string{
		"JWT_EXPIRES_IN":         c.JWTExpiresIn,
		"JWT_REFRESH_EXPIRES_IN": c.JWTRefreshExpiresIn,
		"SWEEP_INTERVAL":         c.SweepInterval,
	} {
		if _, err := ParseDuration(val); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: LOG_FORMAT %q must be json or console", c.LogFormat)
	}
	return nil
}

// Authority builds the authority configuration. Secrets are checked later by
// lmsauth.Config.Validate.
func (c *Config) Authority() lmsauth.Config {
	out := lmsauth.DefaultConfig()

	out.JWT.AccessSecret = []byte(c.JWTSecret)
	out.JWT.RefreshSecret = []byte(c.JWTRefreshSecret)
	out.JWT.AccessTTL, _ = ParseDuration(c.JWTExpiresIn)
	out.JWT.RefreshTTL, _ = ParseDuration(c.JWTRefreshExpiresIn)
	out.JWT.Issuer = c.JWTIssuer

	out.Session.IdleTimeout = time.Duration(c.SessionTimeoutMinutes) * time.Minute
	out.Session.MaxSessions = c.MaxSessions
	out.Session.LoginPolicy = lmsauth.LoginPolicy(c.LoginPolicy)

	out.Password.MinLength = c.PasswordMinLength
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	return out
}

// Hasher builds the password verifier chain. Both formats always verify so
// accounts migrate on their next login.
func (c *Config) Hasher() (*password.Chain, error) {
	name, err := c.hasherName()
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(c.BcryptCost)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(password.DefaultArgon2Config())
	if err != nil {
		return nil, err
	}
	return password.NewChain(name, bc, a2)
}

func (c *Config) hasherName() (string, error) {
	switch strings.ToLower(c.PasswordHasher) {
	case "bcrypt":
		return "bcrypt", nil
	case "argon2", "argon2id":
		return "argon2id", nil
	}
	return "", fmt.Errorf("config: PASSWORD_HASHER %q must be bcrypt or argon2", c.PasswordHasher)
}

// Pool returns the database pool settings.
func (c *Config) Pool() *db.PoolConfig {
	return &db.PoolConfig{ConnString: c.DatabaseURL, MaxConns: c.DBMaxConns}
}

// Sweep returns the sweeper interval; zero disables it.
func (c *Config) Sweep() time.Duration {
	d, _ := ParseDuration(c.SweepInterval)
	return d
}

// ParseDuration accepts Go durations plus a day suffix ("7d") and bare
// numbers, read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
