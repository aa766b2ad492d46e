package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newRedisStoreTest(t *testing.T, opts ...Option) (*RedisStore, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewRedisStore(rdb, opts...), clock, mr
}

func mustCreate(t *testing.T, s Store, userID, token string) *Session {
	t.Helper()
	sess, err := s.Create(context.Background(), NewSession{
		UserID:     userID,
		Token:      token,
		DeviceInfo: "Mozilla/5.0",
		IPAddress:  "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("create %s: %v", token, err)
	}
	return sess
}

func TestRedisCreateAndFindActive(t *testing.T) {
	store, clock, _ := newRedisStoreTest(t)
	ctx := context.Background()

	created := mustCreate(t, store, "u1", "tok-a")
	if created.ID == "" || !created.IsActive {
		t.Fatalf("unexpected created session: %+v", created)
	}

	got, err := store.FindActive(ctx, "tok-a")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.ID != created.ID || got.UserID != "u1" || got.DeviceInfo != "Mozilla/5.0" || got.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.LastActivity.Equal(clock.Now().Truncate(time.Millisecond)) {
		t.Fatalf("expected last activity %v, got %v", clock.Now(), got.LastActivity)
	}

	if _, err := store.FindActive(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisCreateRejectsDuplicateToken(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	mustCreate(t, store, "u1", "tok-a")

	_, err := store.Create(context.Background(), NewSession{UserID: "u2", Token: "tok-a"})
	if !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestRedisCreateTruncatesAdvisoryFields(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()

	_, err := store.Create(ctx, NewSession{
		UserID:     "u1",
		Token:      "tok-long",
		DeviceInfo: strings.Repeat("d", 900),
		IPAddress:  strings.Repeat("1", 80),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.FindActive(ctx, "tok-long")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.DeviceInfo) != MaxDeviceInfoLen || len(got.IPAddress) != MaxIPAddressLen {
		t.Fatalf("expected truncation, got device=%d ip=%d", len(got.DeviceInfo), len(got.IPAddress))
	}
}

func TestRedisDeactivateIsIdempotent(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	mustCreate(t, store, "u1", "tok-a")

	first, err := store.Deactivate(ctx, "tok-a")
	if err != nil || !first {
		t.Fatalf("first deactivate: ok=%v err=%v", first, err)
	}
	second, err := store.Deactivate(ctx, "tok-a")
	if err != nil || second {
		t.Fatalf("second deactivate: ok=%v err=%v", second, err)
	}
	unknown, err := store.Deactivate(ctx, "never-existed")
	if err != nil || unknown {
		t.Fatalf("unknown deactivate: ok=%v err=%v", unknown, err)
	}

	if _, err := store.FindActive(ctx, "tok-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session to be hidden, got %v", err)
	}
	if n, _ := store.CountActive(ctx, "u1"); n != 0 {
		t.Fatalf("expected 0 active, got %d", n)
	}
}

func TestRedisDeactivatedRecordIsRetained(t *testing.T) {
	store, _, mr := newRedisStoreTest(t, WithInactiveRetention(time.Hour))
	ctx := context.Background()
	mustCreate(t, store, "u1", "tok-a")

	if _, err := store.Deactivate(ctx, "tok-a"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	key := store.sessionKey("tok-a")
	if !mr.Exists(key) {
		t.Fatal("expected revoked record to remain for audit")
	}
	if got := mr.HGet(key, "act"); got != "0" {
		t.Fatalf("expected act=0, got %q", got)
	}
	mr.FastForward(2 * time.Hour)
	if mr.Exists(key) {
		t.Fatal("expected revoked record to expire after retention")
	}
}

func TestRedisListActiveOrdersByRecentActivity(t *testing.T) {
	store, clock, _ := newRedisStoreTest(t)
	ctx := context.Background()

	mustCreate(t, store, "u1", "tok-a")
	clock.Advance(time.Minute)
	mustCreate(t, store, "u1", "tok-b")
	clock.Advance(time.Minute)
	mustCreate(t, store, "u1", "tok-c")
	mustCreate(t, store, "u2", "tok-other")

	clock.Advance(time.Minute)
	if err := store.Touch(ctx, "tok-a"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	list, err := store.ListActive(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var order []string
	for _, s := range list {
		order = append(order, s.Token)
	}
	if strings.Join(order, ",") != "tok-a,tok-c,tok-b" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestRedisTouchIsMonotonic(t *testing.T) {
	store, clock, _ := newRedisStoreTest(t)
	ctx := context.Background()
	mustCreate(t, store, "u1", "tok-a")

	clock.Advance(10 * time.Minute)
	if err := store.Touch(ctx, "tok-a"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	advanced, _ := store.FindActive(ctx, "tok-a")

	clock.Advance(-5 * time.Minute)
	if err := store.Touch(ctx, "tok-a"); err != nil {
		t.Fatalf("touch with skewed clock: %v", err)
	}
	after, _ := store.FindActive(ctx, "tok-a")
	if after.LastActivity.Before(advanced.LastActivity) {
		t.Fatalf("last activity moved backward: %v -> %v", advanced.LastActivity, after.LastActivity)
	}
}

func TestRedisTouchIgnoresInactive(t *testing.T) {
	store, clock, mr := newRedisStoreTest(t)
	ctx := context.Background()
	mustCreate(t, store, "u1", "tok-a")
	if _, err := store.Deactivate(ctx, "tok-a"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	clock.Advance(time.Minute)
	if err := store.Touch(ctx, "tok-a"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if n, _ := store.CountActive(ctx, "u1"); n != 0 {
		t.Fatalf("touch must not reactivate, active=%d", n)
	}
	if mr.HGet(store.sessionKey("tok-a"), "act") != "0" {
		t.Fatal("touch must not flip act")
	}
}

func TestRedisDeactivateByIDEnforcesOwnership(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	victim := mustCreate(t, store, "u2", "tok-victim")

	ok, err := store.DeactivateByID(ctx, victim.ID, "u1")
	if err != nil || ok {
		t.Fatalf("foreign deactivate must fail: ok=%v err=%v", ok, err)
	}
	if _, err := store.FindActive(ctx, "tok-victim"); err != nil {
		t.Fatalf("victim session must remain active: %v", err)
	}
	if _, err := store.FindByID(ctx, victim.ID, "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign FindByID must be not found, got %v", err)
	}

	ok, err = store.DeactivateByID(ctx, victim.ID, "u2")
	if err != nil || !ok {
		t.Fatalf("owner deactivate: ok=%v err=%v", ok, err)
	}
	ok, _ = store.DeactivateByID(ctx, victim.ID, "u2")
	if ok {
		t.Fatal("second owner deactivate must report false")
	}
}

func TestRedisDeactivateAllForUser(t *testing.T) {
	store, _, _ := newRedisStoreTest(t)
	ctx := context.Background()
	mustCreate(t, store, "u1", "tok-a")
	mustCreate(t, store, "u1", "tok-b")
	mustCreate(t, store, "u2", "tok-c")

	n, err := store.DeactivateAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deactivated, got %d", n)
	}
	for _, tok := range []string{"tok-a", "tok-b"} {
		if _, err := store.FindActive(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("%s must be inactive, got %v", tok, err)
		}
	}
	if _, err := store.FindActive(ctx, "tok-c"); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestRedisDeleteOldestPicksLeastRecentlyActive(t *testing.T) {
	store, clock, _ := newRedisStoreTest(t)
	ctx := context.Background()

	mustCreate(t, store, "u1", "tok-a")
	clock.Advance(time.Minute)
	mustCreate(t, store, "u1", "tok-b")
	clock.Advance(time.Minute)
	if err := store.Touch(ctx, "tok-a"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	ok, err := store.DeleteOldest(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("delete oldest: ok=%v err=%v", ok, err)
	}
	if _, err := store.FindActive(ctx, "tok-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected tok-b evicted, got %v", err)
	}
	if _, err := store.FindActive(ctx, "tok-a"); err != nil {
		t.Fatalf("expected tok-a kept: %v", err)
	}

	empty, _, _ := newRedisStoreTest(t)
	ok, err = empty.DeleteOldest(ctx, "nobody")
	if err != nil || ok {
		t.Fatalf("delete oldest on empty: ok=%v err=%v", ok, err)
	}
}

func TestRedisDeleteOldestBreaksTiesByCreatedAt(t *testing.T) {
	store, clock, mr := newRedisStoreTest(t)
	ctx := context.Background()

	mustCreate(t, store, "u1", "tok-z")
	clock.Advance(time.Second)
	mustCreate(t, store, "u1", "tok-a")

	// Force equal activity scores; tok-z was created first.
	score := float64(clock.Now().UnixMilli())
	if _, err := mr.ZAdd(store.userKey("u1"), score, "tok-z"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	mr.HSet(store.sessionKey("tok-z"), "la", mr.HGet(store.sessionKey("tok-a"), "la"))

	ok, err := store.DeleteOldest(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("delete oldest: ok=%v err=%v", ok, err)
	}
	if _, err := store.FindActive(ctx, "tok-z"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected earlier-created tok-z evicted, got %v", err)
	}
}

func TestRedisSweepExpired(t *testing.T) {
	store, clock, _ := newRedisStoreTest(t)
	ctx := context.Background()

	mustCreate(t, store, "u1", "tok-old")
	mustCreate(t, store, "u2", "tok-old-2")
	clock.Advance(20 * time.Minute)
	mustCreate(t, store, "u1", "tok-fresh")
	clock.Advance(11 * time.Minute)

	n, err := store.SweepExpired(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if _, err := store.FindActive(ctx, "tok-fresh"); err != nil {
		t.Fatalf("fresh session must survive sweep: %v", err)
	}
	if c, _ := store.CountActive(ctx, "u1"); c != 1 {
		t.Fatalf("expected 1 active for u1, got %d", c)
	}
}

func TestRedisLockUserSerializes(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, WithLockTTL(200*time.Millisecond))
	ctx := context.Background()

	lock, err := store.LockUser(ctx, "u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := store.LockUser(short, "u1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	other, err := store.LockUser(ctx, "u2")
	if err != nil {
		t.Fatalf("lock for a different user must not block: %v", err)
	}
	other.Release()

	lock.Release()
	again, err := store.LockUser(ctx, "u1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again.Release()
}

func TestRedisUserLockScope(t *testing.T) {
	store, _, mr := newRedisStoreTest(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, NewSession{UserID: "u1", Token: "tok-old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lock, err := store.LockUser(ctx, "u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if n, err := lock.CountActive(ctx); err != nil || n != 1 {
		t.Fatalf("count under lock: n=%d err=%v", n, err)
	}
	if ok, err := lock.DeleteOldest(ctx); err != nil || !ok {
		t.Fatalf("evict under lock: ok=%v err=%v", ok, err)
	}
	// The scope's user wins over whatever the caller put in NewSession.
	sess, err := lock.Create(ctx, NewSession{UserID: "u2", Token: "tok-new"})
	if err != nil {
		t.Fatalf("create under lock: %v", err)
	}
	if sess.UserID != "u1" {
		t.Fatalf("session bound to %q, want u1", sess.UserID)
	}
	if err := lock.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mr.Exists(store.lockKey("u1")) {
		t.Fatal("commit must release the lock")
	}
	lock.Release()

	lock, err = store.LockUser(ctx, "u1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	defer lock.Release()
	if n, err := lock.DeactivateAll(ctx); err != nil || n != 1 {
		t.Fatalf("deactivate all under lock: n=%d err=%v", n, err)
	}
}

func TestRedisUnlockDoesNotReleaseForeignOwner(t *testing.T) {
	store, _, mr := newRedisStoreTest(t)
	ctx := context.Background()

	lock, err := store.LockUser(ctx, "u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and takeover by another process.
	mr.Set(store.lockKey("u1"), "someone-else")
	lock.Release()

	if got, _ := mr.Get(store.lockKey("u1")); got != "someone-else" {
		t.Fatalf("foreign lock released, value=%q", got)
	}
}

// Scripts receive their primary keys in KEYS and derive the rest from the
// prefix; both must land in the same namespace.
func TestRedisScriptsStayInPrefix(t *testing.T) {
	store, clock, mr := newRedisStoreTest(t, WithKeyPrefix("lmsx"))
	ctx := context.Background()

	a := mustCreate(t, store, "u1", "tok-a")
	mustCreate(t, store, "u1", "tok-b")
	mustCreate(t, store, "u2", "tok-c")
	clock.Advance(time.Minute)

	if err := store.Touch(ctx, "tok-b"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if ok, err := store.DeactivateByID(ctx, a.ID, "u1"); err != nil || !ok {
		t.Fatalf("deactivate by id: ok=%v err=%v", ok, err)
	}
	if ok, err := store.DeleteOldest(ctx, "u1"); err != nil || !ok {
		t.Fatalf("delete oldest: ok=%v err=%v", ok, err)
	}
	if _, err := store.SweepExpired(ctx, time.Second); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for _, key := range mr.Keys() {
		if !strings.HasPrefix(key, "lmsx:") {
			t.Fatalf("key %q escaped the prefix", key)
		}
	}
	if mr.Exists("lmsx:u:u1") {
		if members, _ := mr.ZMembers("lmsx:u:u1"); len(members) != 0 {
			t.Fatalf("u1 index should be empty, got %v", members)
		}
	}
	if members, _ := mr.ZMembers("lmsx:a"); len(members) != 0 {
		t.Fatalf("activity index should be empty after sweep, got %v", members)
	}
}
