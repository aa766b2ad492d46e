package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature primitive used for both token kinds.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret per token kind.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an ed25519 key pair per token kind.
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType distinguishes access tokens from refresh tokens inside the payload.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// KeyConfig holds the key material and lifetime of one token kind.
//
// For HS256 PrivateKey is the shared secret and PublicKey is ignored.
type KeyConfig struct {
	TTL        time.Duration
	PrivateKey []byte
	PublicKey  []byte
}

// Config defines the codec configuration.
//
// Access and Refresh must use independent keys.
type Config struct {
	SigningMethod SigningMethod
	Access        KeyConfig
	Refresh       KeyConfig
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Type      TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed bearer tokens.
//
// Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	method  SigningMethod
	access  signer
	refresh signer
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

type signer struct {
	ttl    time.Duration
	sign   interface{}
	verify interface{}
}

// NewManager validates cfg and prepares the signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Access.TTL <= 0 || cfg.Refresh.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	access, err := newSigner(cfg.SigningMethod, cfg.Access, "access")
	if err != nil {
		return nil, err
	}
	refresh, err := newSigner(cfg.SigningMethod, cfg.Refresh, "refresh")
	if err != nil {
		return nil, err
	}
	if cfg.SigningMethod == MethodHS256 && string(cfg.Access.PrivateKey) == string(cfg.Refresh.PrivateKey) {
		return nil, errors.New("access and refresh secrets must differ")
	}

	return &Manager{
		method:  cfg.SigningMethod,
		access:  access,
		refresh: refresh,
		issuer:  cfg.Issuer,
		leeway:  cfg.Leeway,
		now:     cfg.Now,
	}, nil
}

func newSigner(method SigningMethod, kc KeyConfig, kind string) (signer, error) {
	s := signer{ttl: kc.TTL}
	switch method {
	case MethodHS256:
		if len(kc.PrivateKey) == 0 {
			return s, fmt.Errorf("hs256 requires a %s secret", kind)
		}
		s.sign = kc.PrivateKey
		s.verify = kc.PrivateKey
	case MethodEd25519:
		pub, err := parseEdPublicKey(kc.PublicKey)
		if err != nil {
			return s, fmt.Errorf("%s key: %w", kind, err)
		}
		s.verify = pub
		// A verify-only deployment may omit the private key.
		if len(kc.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(kc.PrivateKey)
			if err != nil {
				return s, fmt.Errorf("%s key: %w", kind, err)
			}
			s.sign = priv
		}
	default:
		return s, errors.New("unsupported signing method")
	}
	return s, nil
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.access.ttl }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refresh.ttl }

// IssueAccess signs an access token for c using the access key and TTL.
func (m *Manager) IssueAccess(c Claims) (string, error) {
	return m.issue(c, TypeAccess, m.access)
}

// IssueRefresh signs a refresh token for c using the refresh key and TTL.
func (m *Manager) IssueRefresh(c Claims) (string, error) {
	return m.issue(c, TypeRefresh, m.refresh)
}

func (m *Manager) issue(c Claims, typ TokenType, s signer) (string, error) {
	if s.sign == nil {
		return "", errors.New("signing key not configured")
	}

	now := m.now()
	c.Type = typ
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		Issuer:    m.issuer,
	}

	return jwt.NewWithClaims(m.jwtMethod(), c).SignedString(s.sign)
}

// VerifyAccess checks signature, expiry and token kind of an access token.
//
// All failures are *InvalidTokenError values.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, TypeAccess, m.access)
}

// VerifyRefresh checks signature, expiry and token kind of a refresh token.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, TypeRefresh, m.refresh)
}

func (m *Manager) verify(token string, typ TokenType, s signer) (*Claims, error) {
	if token == "" {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: errors.New("empty token")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.jwtMethod().Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.leeway > 0 {
		options = append(options, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.verify, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: jwt.ErrTokenInvalidClaims}
	}
	if claims.Type != typ {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: fmt.Errorf("unexpected token type %q", claims.Type)}
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, &InvalidTokenError{Reason: ReasonMalformed, Err: errors.New("missing subject claims")}
	}

	return claims, nil
}

func classify(err error) *InvalidTokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &InvalidTokenError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &InvalidTokenError{Reason: ReasonSignatureMismatch, Err: err}
	default:
		return &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	}
}

func (m *Manager) jwtMethod() jwt.SigningMethod {
	if m.method == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
