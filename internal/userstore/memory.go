package userstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/google/uuid"
)

// Memory is an in-process lmsauth.UserProvider for tests and the load
// harness.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]lmsauth.User
	byEmail map[string]string
	now     func() time.Time
}

var _ lmsauth.UserProvider = (*Memory)(nil)

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{
		byID:    map[string]lmsauth.User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

// Create adds a user. Unlike Store.Create, an empty State means Active and
// the account starts usable.
func (m *Memory) Create(_ context.Context, in NewUser) (lmsauth.User, error) {
	key := strings.ToLower(strings.TrimSpace(in.Email))

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[key]; exists {
		return lmsauth.User{}, ErrDuplicateEmail
	}

	now := m.now()
	u := lmsauth.User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(in.Email),
		Name:         in.Name,
		University:   in.University,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		State:        in.State,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Role == "" {
		u.Role = lmsauth.RoleStudent
	}
	if u.State == "" {
		u.State = lmsauth.StateActive
	}

	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	return u, nil
}

// Put stores u as given, replacing any user with the same id.
func (m *Memory) Put(u lmsauth.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
	m.byEmail[strings.ToLower(u.Email)] = u.ID
}

func (m *Memory) FindByEmail(_ context.Context, email string) (lmsauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return lmsauth.User{}, lmsauth.ErrUserNotFound
	}
	return m.visible(id)
}

func (m *Memory) FindByID(_ context.Context, id string) (lmsauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible(id)
}

func (m *Memory) visible(id string) (lmsauth.User, error) {
	u, ok := m.byID[id]
	if !ok || u.IsDeleted {
		return lmsauth.User{}, lmsauth.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return m.update(id, func(u *lmsauth.User) { u.PasswordHash = hash })
}

func (m *Memory) UpdateAccountState(_ context.Context, id string, state lmsauth.AccountState) error {
	if !state.Valid() {
		return lmsauth.ErrInvalidAccountState
	}
	return m.update(id, func(u *lmsauth.User) { u.State = state })
}

func (m *Memory) SoftDelete(_ context.Context, id string) error {
	return m.update(id, func(u *lmsauth.User) {
		u.IsDeleted = true
		u.IsActive = false
	})
}

func (m *Memory) update(id string, fn func(*lmsauth.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok || u.IsDeleted {
		return lmsauth.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = m.now()
	m.byID[id] = u
	return nil
}
