package lmsauth

import (
	"context"
	"time"
)

// Role is the user role string stored with the account.
type Role string

const (
	RoleStudent         Role = "Student"
	RoleInstructor      Role = "Instructor"
	RoleUniversityAdmin Role = "University-admin"
	RoleSuperAdmin      Role = "Super-admin"
)

// AdminRoles may act on any user's sessions.
var AdminRoles = []Role{RoleSuperAdmin, RoleUniversityAdmin}

// IsAdmin reports whether r is one of AdminRoles.
func (r Role) IsAdmin() bool {
	for _, a := range AdminRoles {
		if r == a {
			return true
		}
	}
	return false
}

// AccountState is the approval state of an account.
type AccountState string

const (
	StateActive  AccountState = "Active"
	StatePending AccountState = "Pending"
	StateBanned  AccountState = "Banned"
)

// Valid reports whether s is a known state.
func (s AccountState) Valid() bool {
	switch s {
	case StateActive, StatePending, StateBanned:
		return true
	}
	return false
}

// User is the account record read through UserProvider.
type User struct {
	ID           string
	Email        string
	Name         string
	University   string
	PasswordHash string
	Role         Role
	State        AccountState
	IsActive     bool
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the user shape returned to clients. It never carries the
// password hash or session fields.
type PublicUser struct {
	ID         string       `json:"id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	University string       `json:"university,omitempty"`
	Role       Role         `json:"role"`
	State      AccountState `json:"status"`
	IsActive   bool         `json:"isActive"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Public strips secrets from u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		University: u.University,
		Role:       u.Role,
		State:      u.State,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// UserProvider is the credential store collaborator.
//
// FindByEmail and FindByID must exclude soft-deleted users and return
// ErrUserNotFound for them.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateAccountState(ctx context.Context, id string, state AccountState) error
	SoftDelete(ctx context.Context, id string) error
}

// Credentials is the login input.
type Credentials struct {
	Email    string
	Password string
}

// ClientInfo describes the device a login comes from.
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
}

// Identity is attached to an authenticated request.
//
// SessionID is the session token the bearer token is bound to.
type Identity struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	SessionID string `json:"sessionId"`
}

// SessionView is the redacted session shape shown to its owner or an admin.
type SessionView struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"deviceInfo"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}
