package lmsauth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/userstore"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-password-123"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	auth   *lmsauth.Authority
	store  *session.RedisStore
	users  *userstore.Memory
	hasher password.Hasher
	clock  *fakeClock
	mr     *miniredis.Miniredis
}

func testConfig() lmsauth.Config {
	cfg := lmsauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests")
	return cfg
}

func newTestHasher(t testing.TB) *password.Bcrypt {
	t.Helper()
	h, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	return h
}

func newHarness(t testing.TB, cfg lmsauth.Config, configure ...func(*lmsauth.Builder)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		users:  userstore.NewMemory(),
		hasher: newTestHasher(t),
		clock:  newFakeClock(),
		mr:     mr,
	}
	h.store = session.NewRedisStore(rdb, session.WithClock(h.clock.Now))

	b := lmsauth.New().
		WithConfig(cfg).
		WithSessionStore(h.store).
		WithUserProvider(h.users).
		WithHasher(h.hasher).
		WithClock(h.clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	auth, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(auth.Close)
	h.auth = auth
	return h
}

func (h *harness) seedUser(t testing.TB, email string, role lmsauth.Role) lmsauth.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u, err := h.users.Create(context.Background(), userstore.NewUser{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func (h *harness) login(t testing.TB, email, device string) *lmsauth.LoginResult {
	t.Helper()
	res, err := h.auth.Login(context.Background(),
		lmsauth.Credentials{Email: email, Password: testPassword},
		lmsauth.ClientInfo{DeviceInfo: device, IPAddress: "203.0.113.7"},
	)
	if err != nil {
		t.Fatalf("Login(%s, %s): %v", email, device, err)
	}
	return res
}

func (h *harness) countActive(t *testing.T, userID string) int {
	t.Helper()
	n, err := h.store.CountActive(context.Background(), userID)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	return n
}
