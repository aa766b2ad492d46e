package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/userstore"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/alecthomas/kong"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/crypto/bcrypt"
)

const loadPassword = "load-test-password"

type CLI struct {
	Users       int    `help:"number of users to seed" default:"200"`
	Logins      int    `help:"concurrent login attempts per user in the race phase" default:"8"`
	Concurrency int    `help:"number of concurrent workers" default:"64"`
	Ops         int    `help:"authenticate calls in the latency phase" default:"50000"`
	MaxSessions int    `help:"session limit per user" default:"2"`
	Policy      string `help:"admission policy" enum:"evict-oldest,reject-existing" default:"evict-oldest"`
	RedisAddr   string `help:"redis address; if empty, REDIS_ADDR env or miniredis is used" env:"REDIS_ADDR"`
	Prefix      string `help:"session key prefix" default:"lt"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("lmsauth-loadtest"),
		kong.Description("Drives concurrent logins and authentications against the session authority."),
	)
	if cli.Users <= 0 || cli.Logins <= 0 || cli.Concurrency <= 0 || cli.Ops <= 0 || cli.MaxSessions <= 0 {
		kctx.Fatalf("users, logins, concurrency, ops and max-sessions must be > 0")
	}

	ctx := context.Background()

	var (
		cleanup func()
		client  *redis.Client
	)
	if cli.RedisAddr == "" {
		mr, err := miniredis.Run()
		kctx.FatalIfErrorf(err, "failed to start miniredis")
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: cli.RedisAddr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", cli.RedisAddr)
	}
	defer cleanup()

	store := session.NewRedisStore(client, session.WithKeyPrefix(cli.Prefix))

	// Minimum cost keeps the run dominated by session work, not hashing.
	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	kctx.FatalIfErrorf(err)

	users := userstore.NewMemory()
	ids := make([]string, cli.Users)
	hash, err := hasher.Hash(loadPassword)
	kctx.FatalIfErrorf(err)

	fmt.Printf("seeding %d users...\n", cli.Users)
	for i := range ids {
		u, err := users.Create(ctx, userstore.NewUser{
			Name:         fmt.Sprintf("Load User %d", i),
			Email:        emailFor(i),
			PasswordHash: hash,
		})
		kctx.FatalIfErrorf(err)
		ids[i] = u.ID
	}

	cfg := lmsauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret")
	cfg.Session.MaxSessions = cli.MaxSessions
	cfg.Session.LoginPolicy = lmsauth.LoginPolicy(cli.Policy)
	cfg.Session.LockTimeout = 30 * time.Second
	cfg.Password.UpgradeOnLogin = false

	auth, err := lmsauth.New().
		WithConfig(cfg).
		WithSessionStore(store).
		WithUserProvider(users).
		WithHasher(hasher).
		Build()
	kctx.FatalIfErrorf(err)
	defer auth.Close()

	loginStats := runLoginRace(ctx, auth, cli.Users, cli.Logins, cli.Concurrency)

	violations := 0
	for _, id := range ids {
		n, err := store.CountActive(ctx, id)
		kctx.FatalIfErrorf(err)
		if n > cli.MaxSessions {
			violations++
			fmt.Fprintf(os.Stderr, "user %s has %d active sessions, limit %d\n", id, n, cli.MaxSessions)
		}
	}

	tokens := make([]string, cli.Users)
	if cli.Policy == string(lmsauth.PolicyRejectExisting) {
		for _, id := range ids {
			_, err := auth.ForceLogoutAll(ctx, id)
			kctx.FatalIfErrorf(err)
		}
	}
	for i := range tokens {
		res, err := auth.Login(ctx, lmsauth.Credentials{Email: emailFor(i), Password: loadPassword}, lmsauth.ClientInfo{DeviceInfo: "lmsauth-loadtest"})
		kctx.FatalIfErrorf(err)
		tokens[i] = res.AccessToken
	}

	authStats := runAuthenticatePhase(ctx, auth, tokens, cli.Ops, cli.Concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("authenticate", authStats)

	snap := auth.MetricsSnapshot()
	fmt.Printf("sessions created=%d evicted=%d conflicts=%d\n",
		snap.Counters[lmsauth.MetricSessionCreated],
		snap.Counters[lmsauth.MetricSessionEvicted],
		snap.Counters[lmsauth.MetricLoginConflict],
	)

	if violations > 0 {
		fmt.Fprintf(os.Stderr, "session limit violated for %d users\n", violations)
		os.Exit(1)
	}
	fmt.Println("session limit held for every user")
}

func emailFor(i int) string {
	return fmt.Sprintf("load-%d@lms.test", i)
}

// runLoginRace fires logins concurrently for every user. Conflicts under
// reject-existing are counted as rejections, not failures.
func runLoginRace(ctx context.Context, auth *lmsauth.Authority, users, perUser, concurrency int) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, users*perUser)
		mu        sync.Mutex
	)

	p := pool.New().WithMaxGoroutines(concurrency)
	start := time.Now()
	for u := 0; u < users; u++ {
		for a := 0; a < perUser; a++ {
			email := emailFor(u)
			device := fmt.Sprintf("loadtest/%d", a)
			p.Go(func() {
				t0 := time.Now()
				_, err := auth.Login(ctx, lmsauth.Credentials{Email: email, Password: loadPassword}, lmsauth.ClientInfo{DeviceInfo: device})
				d := time.Since(t0)
				if err != nil && !errors.Is(err, lmsauth.ErrSessionConflict) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			})
		}
	}
	p.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runAuthenticatePhase(ctx context.Context, auth *lmsauth.Authority, tokens []string, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	p := pool.New().WithMaxGoroutines(concurrency)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		p.Go(func() {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			for {
				if atomic.AddInt64(&cursor, 1) > int64(ops) {
					return
				}
				t0 := time.Now()
				_, err := auth.Authenticate(ctx, tokens[r.Intn(len(tokens))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	p.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
