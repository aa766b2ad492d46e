package password

import (
	"errors"
	"strings"
)

// ErrEmptyPassword is returned by Hash for an empty plaintext.
var ErrEmptyPassword = errors.New("password is empty")

// Hasher derives and checks one-way password hashes.
//
// Verify must never panic on a malformed stored hash; it reports false.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Rehasher is implemented by hashers that can tell when a stored hash
// should be replaced after a successful verification.
type Rehasher interface {
	NeedsRehash(hash string) bool
}

// Chain verifies with whichever hasher recognises the stored hash format and
// always hashes with the primary one. It lets a deployment move from bcrypt
// to argon2id without forcing a password reset.
type Chain struct {
	primary Hasher
	bcrypt  *Bcrypt
	argon2  *Argon2
}

var _ Hasher = (*Chain)(nil)

// NewChain builds a Chain whose primary hasher is bc or a2, selected by
// primary ("bcrypt" or "argon2id").
func NewChain(primary string, bc *Bcrypt, a2 *Argon2) (*Chain, error) {
	c := &Chain{bcrypt: bc, argon2: a2}
	switch primary {
	case "bcrypt":
		if bc == nil {
			return nil, errors.New("bcrypt hasher not configured")
		}
		c.primary = bc
	case "argon2id":
		if a2 == nil {
			return nil, errors.New("argon2id hasher not configured")
		}
		c.primary = a2
	default:
		return nil, errors.New("unsupported password hasher")
	}
	return c, nil
}

// Hash hashes with the primary hasher.
func (c *Chain) Hash(plain string) (string, error) {
	return c.primary.Hash(plain)
}

// Verify dispatches on the stored hash prefix.
func (c *Chain) Verify(plain, hash string) bool {
	switch {
	case isBcryptHash(hash) && c.bcrypt != nil:
		return c.bcrypt.Verify(plain, hash)
	case strings.HasPrefix(hash, "$argon2id$") && c.argon2 != nil:
		return c.argon2.Verify(plain, hash)
	default:
		return false
	}
}

// NeedsRehash reports true when hash was produced by a non-primary hasher or
// with weaker parameters than the primary's.
func (c *Chain) NeedsRehash(hash string) bool {
	switch p := c.primary.(type) {
	case *Bcrypt:
		return !isBcryptHash(hash) || p.NeedsRehash(hash)
	case *Argon2:
		return p.NeedsRehash(hash)
	}
	return false
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}
