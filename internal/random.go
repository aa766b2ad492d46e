package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// sessionTokenSize is 256 bits of entropy.
const sessionTokenSize = 32

// NewSessionToken returns a fresh base64url session token.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidSessionToken reports whether token has the shape NewSessionToken produces.
func ValidSessionToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(sessionTokenSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == sessionTokenSize
}

var errShortRead = errors.New("short random read")

// RandomBytes fills n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	if read != n {
		return nil, errShortRead
	}
	return b, nil
}
