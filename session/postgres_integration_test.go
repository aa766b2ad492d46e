//go:build integration

package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth/internal/db"
	"github.com/MrEthical07/lmsauth/internal/db/dbtest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func insertUser(t *testing.T, pool *pgxpool.Pool, email string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (name, email, password_hash, status) VALUES ('test', $1, 'x', 'Active') RETURNING id::text`,
		email,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestIntegration_PostgresStore(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.StartPostgres(t)

	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := NewPostgresStore(pool, WithClock(clock))
	userID := insertUser(t, pool, "pg-session@example.edu")

	first, err := store.Create(ctx, NewSession{UserID: userID, Token: "tok-first", DeviceInfo: "laptop", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	advance(time.Minute)
	second, err := store.Create(ctx, NewSession{UserID: userID, Token: "tok-second", DeviceInfo: "phone"})
	require.NoError(t, err)

	t.Run("duplicate token", func(t *testing.T) {
		_, err := store.Create(ctx, NewSession{UserID: userID, Token: "tok-first"})
		require.ErrorIs(t, err, ErrDuplicateToken)
	})

	t.Run("find and count", func(t *testing.T) {
		got, err := store.FindActive(ctx, "tok-first")
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
		require.Equal(t, "laptop", got.DeviceInfo)

		n, err := store.CountActive(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		_, err = store.FindActive(ctx, "missing")
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := store.ListActive(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, second.ID, list[0].ID)
	})

	t.Run("touch never moves backward", func(t *testing.T) {
		advance(time.Minute)
		require.NoError(t, store.Touch(ctx, "tok-first"))
		touched, err := store.FindActive(ctx, "tok-first")
		require.NoError(t, err)

		advance(-10 * time.Minute)
		require.NoError(t, store.Touch(ctx, "tok-first"))
		again, err := store.FindActive(ctx, "tok-first")
		require.NoError(t, err)
		require.True(t, again.LastActivity.Equal(touched.LastActivity))
		advance(10 * time.Minute)
	})

	t.Run("delete oldest picks least recently active", func(t *testing.T) {
		// tok-first was touched last, so tok-second is now the oldest.
		ok, err := store.DeleteOldest(ctx, userID)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = store.FindActive(ctx, "tok-second")
		require.ErrorIs(t, err, ErrSessionNotFound)
		_, err = store.FindActive(ctx, "tok-first")
		require.NoError(t, err)
	})

	t.Run("deactivate by id enforces ownership", func(t *testing.T) {
		other := insertUser(t, pool, "other@example.edu")
		ok, err := store.DeactivateByID(ctx, first.ID, other)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = store.DeactivateByID(ctx, first.ID, userID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.Deactivate(ctx, "tok-first")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("sweep expired", func(t *testing.T) {
		_, err := store.Create(ctx, NewSession{UserID: userID, Token: "tok-idle"})
		require.NoError(t, err)
		advance(time.Hour)
		_, err = store.Create(ctx, NewSession{UserID: userID, Token: "tok-fresh"})
		require.NoError(t, err)

		n, err := store.SweepExpired(ctx, 30*time.Minute)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = store.DeactivateAllForUser(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("lock user serializes holders", func(t *testing.T) {
		lock, err := store.LockUser(ctx, userID)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		_, err = store.LockUser(waitCtx, userID)
		require.ErrorIs(t, err, ErrLockTimeout)

		lock.Release()
		again, err := store.LockUser(ctx, userID)
		require.NoError(t, err)
		again.Release()
	})

	t.Run("lock scope rolls back on release", func(t *testing.T) {
		lock, err := store.LockUser(ctx, userID)
		require.NoError(t, err)
		_, err = lock.Create(ctx, NewSession{Token: "tok-discarded"})
		require.NoError(t, err)
		lock.Release()

		_, err = store.FindActive(ctx, "tok-discarded")
		require.ErrorIs(t, err, ErrSessionNotFound)

		lock, err = store.LockUser(ctx, userID)
		require.NoError(t, err)
		_, err = lock.Create(ctx, NewSession{Token: "tok-committed"})
		require.NoError(t, err)
		require.NoError(t, lock.Commit(ctx))
		lock.Release()

		sess, err := store.FindActive(ctx, "tok-committed")
		require.NoError(t, err)
		require.Equal(t, userID, sess.UserID)
	})

	t.Run("ping", func(t *testing.T) {
		_, err := store.Ping(ctx)
		require.NoError(t, err)
	})
}

// Admissions hold one pooled connection each; a pool smaller than the number
// of concurrent logins must queue them, not wedge.
func TestIntegration_PostgresAdmissionOnSmallPool(t *testing.T) {
	pool := dbtest.StartPostgres(t, func(c *db.PoolConfig) {
		c.MaxConns = 2
		c.MinConns = 1
	})
	store := NewPostgresStore(pool)

	shared := insertUser(t, pool, "pg-shared@example.edu")
	users := []string{shared, shared}
	for i := range 4 {
		users = append(users, insertUser(t, pool, fmt.Sprintf("pg-small-%d@example.edu", i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	admit := func(userID, token string) error {
		lock, err := store.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		defer lock.Release()
		if _, err := lock.CountActive(ctx); err != nil {
			return err
		}
		if _, err := lock.Create(ctx, NewSession{Token: token}); err != nil {
			return err
		}
		return lock.Commit(ctx)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, userID := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = admit(userID, fmt.Sprintf("tok-small-%d", i))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "admission %d", i)
	}
	n, err := store.CountActive(ctx, shared)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = store.Ping(ctx)
	require.NoError(t, err, "pool must be usable after the burst")
}
