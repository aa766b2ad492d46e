package lmsauth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/session"
)

// hookStore runs hook once, on the first LockUser call, before the lock is
// taken. The hook may call back into the authority.
type hookStore struct {
	session.Store
	hook  func(ctx context.Context, userID string)
	fired atomic.Bool
	wrap  func(session.UserLock) session.UserLock
}

func (s *hookStore) LockUser(ctx context.Context, userID string) (session.UserLock, error) {
	if s.hook != nil && s.fired.CompareAndSwap(false, true) {
		s.hook(ctx, userID)
	}
	lock, err := s.Store.LockUser(ctx, userID)
	if err != nil || s.wrap == nil {
		return lock, err
	}
	return s.wrap(lock), nil
}

// hookProvider runs hook once, after the first FindByID has read the user.
// Login only calls FindByID for its final recheck.
type hookProvider struct {
	lmsauth.UserProvider
	hook  func(ctx context.Context, id string)
	fired atomic.Bool
}

func (p *hookProvider) FindByID(ctx context.Context, id string) (lmsauth.User, error) {
	u, err := p.UserProvider.FindByID(ctx, id)
	if p.hook != nil && p.fired.CompareAndSwap(false, true) {
		p.hook(ctx, id)
	}
	return u, err
}

func buildWith(t *testing.T, h *harness, store session.Store, users lmsauth.UserProvider) *lmsauth.Authority {
	t.Helper()
	auth, err := lmsauth.New().
		WithConfig(testConfig()).
		WithSessionStore(store).
		WithUserProvider(users).
		WithHasher(h.hasher).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(auth.Close)
	return auth
}

var accountChanges = []struct {
	name    string
	apply   func(ctx context.Context, auth *lmsauth.Authority, userID string) error
	wantErr error
}{
	{
		name: "ban",
		apply: func(ctx context.Context, auth *lmsauth.Authority, userID string) error {
			return auth.UpdateAccountState(ctx, userID, lmsauth.StateBanned)
		},
		wantErr: lmsauth.ErrAccountState,
	},
	{
		name: "password change",
		apply: func(ctx context.Context, auth *lmsauth.Authority, userID string) error {
			return auth.ChangePassword(ctx, userID, testPassword, "a-different-password")
		},
		wantErr: lmsauth.ErrInvalidCredentials,
	},
	{
		name: "delete",
		apply: func(ctx context.Context, auth *lmsauth.Authority, userID string) error {
			return auth.DeleteAccount(ctx, userID)
		},
		wantErr: lmsauth.ErrAccountState,
	},
}

// An account change that lands while a login waits for its admission lock
// must not leave that login with a live session.
func TestAccountChangeDuringAdmissionFailsLogin(t *testing.T) {
	for _, tc := range accountChanges {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			u := h.seedUser(t, "ivy@lms.edu", lmsauth.RoleStudent)
			ctx := context.Background()

			store := &hookStore{Store: h.store}
			auth := buildWith(t, h, store, h.users)

			var changeErr error
			store.hook = func(ctx context.Context, userID string) {
				changeErr = tc.apply(ctx, auth, userID)
			}

			res, err := auth.Login(ctx, lmsauth.Credentials{Email: "ivy@lms.edu", Password: testPassword}, lmsauth.ClientInfo{DeviceInfo: "laptop"})
			if changeErr != nil {
				t.Fatalf("%s: %v", tc.name, changeErr)
			}
			if !store.fired.Load() {
				t.Fatal("admission lock was never taken")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("login after %s: expected %v, got %v (result %v)", tc.name, tc.wantErr, err, res)
			}
			if n := h.countActive(t, u.ID); n != 0 {
				t.Fatalf("active sessions after %s = %d, want 0", tc.name, n)
			}
		})
	}
}

// An account change that lands after login has read the user one last time
// revokes the session that login is about to return.
func TestAccountChangeAfterAdmissionRevokesSession(t *testing.T) {
	for _, tc := range accountChanges {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			u := h.seedUser(t, "jon@lms.edu", lmsauth.RoleStudent)
			ctx := context.Background()

			users := &hookProvider{UserProvider: h.users}
			auth := buildWith(t, h, h.store, users)

			var changeErr error
			users.hook = func(ctx context.Context, id string) {
				changeErr = tc.apply(ctx, auth, id)
			}

			res, err := auth.Login(ctx, lmsauth.Credentials{Email: "jon@lms.edu", Password: testPassword}, lmsauth.ClientInfo{DeviceInfo: "laptop"})
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if changeErr != nil {
				t.Fatalf("%s: %v", tc.name, changeErr)
			}
			if _, err := auth.Authenticate(ctx, res.AccessToken); !errors.Is(err, lmsauth.ErrSessionInvalid) {
				t.Fatalf("session after %s: expected ErrSessionInvalid, got %v", tc.name, err)
			}
			if n := h.countActive(t, u.ID); n != 0 {
				t.Fatalf("active sessions after %s = %d, want 0", tc.name, n)
			}
		})
	}
}

func TestForceLogoutAllDuringAdmission(t *testing.T) {
	h := newHarness(t, testConfig())
	u := h.seedUser(t, "kim@lms.edu", lmsauth.RoleStudent)
	ctx := context.Background()

	store := &hookStore{Store: h.store}
	auth := buildWith(t, h, store, h.users)

	var revoked int
	store.hook = func(ctx context.Context, userID string) {
		n, err := auth.ForceLogoutAll(ctx, userID)
		if err != nil {
			t.Errorf("ForceLogoutAll: %v", err)
		}
		revoked = n
	}

	res, err := auth.Login(ctx, lmsauth.Credentials{Email: "kim@lms.edu", Password: testPassword}, lmsauth.ClientInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	// The logout ran before the login's admission, so the new session stands.
	if revoked != 0 {
		t.Fatalf("revoked = %d, want 0", revoked)
	}
	if _, err := auth.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if n := h.countActive(t, u.ID); n != 1 {
		t.Fatalf("active sessions = %d, want 1", n)
	}
}

// staleLock reports nothing to evict, as when the count and the index disagree.
type staleLock struct {
	session.UserLock
}

func (staleLock) DeleteOldest(context.Context) (bool, error) { return false, nil }

func TestEvictionMetricsOnlyCountRemovedSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxSessions = 1
	cfg.Audit.Enabled = true
	h := newHarness(t, cfg)
	h.seedUser(t, "lee@lms.edu", lmsauth.RoleStudent)
	ctx := context.Background()

	sink := lmsauth.NewChannelSink(16)
	store := &hookStore{
		Store: h.store,
		wrap:  func(l session.UserLock) session.UserLock { return staleLock{l} },
	}
	auth, err := lmsauth.New().
		WithConfig(cfg).
		WithSessionStore(store).
		WithUserProvider(h.users).
		WithHasher(h.hasher).
		WithClock(h.clock.Now).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer auth.Close()

	for i := 0; i < 2; i++ {
		if _, err := auth.Login(ctx, lmsauth.Credentials{Email: "lee@lms.edu", Password: testPassword}, lmsauth.ClientInfo{}); err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
	}

	if got := auth.MetricsSnapshot().Counters[lmsauth.MetricSessionEvicted]; got != 0 {
		t.Fatalf("evicted counter = %d, want 0", got)
	}
	for _, ev := range collect(t, sink.Events(), 2) {
		if ev.EventType != "login_success" {
			t.Fatalf("unexpected audit event: %+v", ev)
		}
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("eviction audited although nothing was evicted: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
