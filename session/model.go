package session

import (
	"time"
	"unicode/utf8"
)

const (
	// MaxDeviceInfoLen bounds the stored user-agent descriptor.
	MaxDeviceInfoLen = 500
	// MaxIPAddressLen bounds the stored client address.
	MaxIPAddressLen = 50
)

// Session is one server-side login record.
//
// Token is the secret embedded in bearer tokens and is never exposed through
// listing APIs. ID is the public handle used for targeted revocation.
type Session struct {
	ID           string
	UserID       string
	Token        string
	DeviceInfo   string
	IPAddress    string
	LastActivity time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdleFor reports how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// NewSession carries the caller-supplied fields for Store.Create.
type NewSession struct {
	UserID     string
	Token      string
	DeviceInfo string
	IPAddress  string
}

func (n NewSession) normalized() NewSession {
	n.DeviceInfo = truncate(n.DeviceInfo, MaxDeviceInfoLen)
	n.IPAddress = truncate(n.IPAddress, MaxIPAddressLen)
	return n
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
