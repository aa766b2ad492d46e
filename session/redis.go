package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout (p = prefix):
//
//	p:s:<token>  hash   id uid dev ip la ca ua act
//	p:i:<id>     string token
//	p:u:<uid>    zset   active tokens scored by last activity (ms)
//	p:a          zset   all active tokens scored by last activity (ms)
//	p:l:<uid>    string admission lock owner
//
// Timestamps are unix milliseconds. Every mutation runs as one Lua script.
// Scripts declare the keys they are addressed by in KEYS and derive the rest
// from stored fields, so the layout needs every key on one node.

const luaDeactivate = `
local function deactivate(prefix, token, now, retain)
  local skey = prefix .. ":s:" .. token
  if redis.call("HGET", skey, "act") ~= "1" then
    return 0
  end
  local uid = redis.call("HGET", skey, "uid")
  local id = redis.call("HGET", skey, "id")
  redis.call("HSET", skey, "act", "0", "ua", now)
  redis.call("ZREM", prefix .. ":u:" .. uid, token)
  redis.call("ZREM", prefix .. ":a", token)
  if retain > 0 then
    redis.call("PEXPIRE", skey, retain)
    redis.call("PEXPIRE", prefix .. ":i:" .. id, retain)
  end
  return 1
end
`

// KEYS: session, id index, user zset, activity zset.
var createLua = redis.NewScript(`
local token = ARGV[1]
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local now = ARGV[6]
redis.call("HSET", KEYS[1],
  "id", ARGV[2], "uid", ARGV[3], "dev", ARGV[4], "ip", ARGV[5],
  "la", now, "ca", now, "ua", now, "act", "1")
redis.call("SET", KEYS[2], token)
redis.call("ZADD", KEYS[3], now, token)
redis.call("ZADD", KEYS[4], now, token)
return 1
`)

// KEYS: session, activity zset.
var touchLua = redis.NewScript(`
local prefix = ARGV[1]
local token = ARGV[2]
local now = tonumber(ARGV[3])
if redis.call("HGET", KEYS[1], "act") ~= "1" then
  return 0
end
local last = tonumber(redis.call("HGET", KEYS[1], "la") or "0")
if now > last then
  local uid = redis.call("HGET", KEYS[1], "uid")
  redis.call("HSET", KEYS[1], "la", now, "ua", now)
  redis.call("ZADD", prefix .. ":u:" .. uid, now, token)
  redis.call("ZADD", KEYS[2], now, token)
end
return 1
`)

// KEYS: session, activity zset.
var deactivateLua = redis.NewScript(luaDeactivate + `
return deactivate(ARGV[1], ARGV[2], ARGV[3], tonumber(ARGV[4]))
`)

// KEYS: id index, activity zset.
var deactivateByIDLua = redis.NewScript(luaDeactivate + `
local prefix = ARGV[1]
local token = redis.call("GET", KEYS[1])
if not token then
  return 0
end
if redis.call("HGET", prefix .. ":s:" .. token, "uid") ~= ARGV[2] then
  return 0
end
return deactivate(prefix, token, ARGV[3], tonumber(ARGV[4]))
`)

// KEYS: user zset, activity zset.
var deactivateAllLua = redis.NewScript(luaDeactivate + `
local prefix = ARGV[1]
local tokens = redis.call("ZRANGE", KEYS[1], 0, -1)
local n = 0
for _, token in ipairs(tokens) do
  n = n + deactivate(prefix, token, ARGV[2], tonumber(ARGV[3]))
end
redis.call("DEL", KEYS[1])
return n
`)

// KEYS: user zset, activity zset.
var deleteOldestLua = redis.NewScript(luaDeactivate + `
local prefix = ARGV[1]
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if #first == 0 then
  return 0
end
local tied = redis.call("ZRANGEBYSCORE", KEYS[1], first[2], first[2])
local victim = tied[1]
local oldest = nil
for _, token in ipairs(tied) do
  local created = tonumber(redis.call("HGET", prefix .. ":s:" .. token, "ca") or "0")
  if oldest == nil or created < oldest then
    oldest = created
    victim = token
  end
end
return deactivate(prefix, victim, ARGV[2], tonumber(ARGV[3]))
`)

// KEYS: activity zset.
var sweepLua = redis.NewScript(luaDeactivate + `
local prefix = ARGV[1]
local tokens = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[2], "LIMIT", 0, tonumber(ARGV[5]))
local n = 0
for _, token in ipairs(tokens) do
  local removed = deactivate(prefix, token, ARGV[3], tonumber(ARGV[4]))
  if removed == 0 then
    redis.call("ZREM", KEYS[1], token)
  end
  n = n + removed
end
return {n, #tokens}
`)

var unlockLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

const sweepBatch = 500

// RedisStore keeps sessions in Redis.
//
// It needs a single keyspace: a standalone server or a Sentinel-managed
// primary. Redis Cluster is not supported.
type RedisStore struct {
	redis *redis.Client
	opts  options
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store backed by client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{redis: client, opts: buildOptions(opts)}
}

func (s *RedisStore) sessionKey(token string) string { return s.opts.prefix + ":s:" + token }
func (s *RedisStore) userKey(userID string) string   { return s.opts.prefix + ":u:" + userID }
func (s *RedisStore) idKey(id string) string         { return s.opts.prefix + ":i:" + id }
func (s *RedisStore) lockKey(userID string) string   { return s.opts.prefix + ":l:" + userID }
func (s *RedisStore) activityKey() string            { return s.opts.prefix + ":a" }

func (s *RedisStore) nowMillis() int64 { return s.opts.now().UnixMilli() }

func (s *RedisStore) retainMillis() int64 { return s.opts.retainInactive.Milliseconds() }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Create records a new active session.
func (s *RedisStore) Create(ctx context.Context, in NewSession) (*Session, error) {
	in = in.normalized()
	id := uuid.NewString()
	now := s.nowMillis()

	created, err := createLua.Run(ctx, s.redis,
		[]string{s.sessionKey(in.Token), s.idKey(id), s.userKey(in.UserID), s.activityKey()},
		in.Token, id, in.UserID, in.DeviceInfo, in.IPAddress, now,
	).Int()
	if err != nil {
		return nil, unavailable(err)
	}
	if created == 0 {
		return nil, ErrDuplicateToken
	}

	ts := time.UnixMilli(now)
	s.opts.logger.Debug().Str("user_id", in.UserID).Str("session_id", id).Msg("session created")

	return &Session{
		ID:           id,
		UserID:       in.UserID,
		Token:        in.Token,
		DeviceInfo:   in.DeviceInfo,
		IPAddress:    in.IPAddress,
		LastActivity: ts,
		IsActive:     true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}

// FindActive returns the session for token if it is still active.
func (s *RedisStore) FindActive(ctx context.Context, token string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(token)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sess, ok := decodeHash(token, fields)
	if !ok || !sess.IsActive {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// FindByID returns the active session id owned by userID.
func (s *RedisStore) FindByID(ctx context.Context, id, userID string) (*Session, error) {
	token, err := s.redis.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, unavailable(err)
	}
	sess, err := s.FindActive(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CountActive returns the number of active sessions of userID.
func (s *RedisStore) CountActive(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.ZCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// ListActive returns the active sessions of userID, most recent activity first.
func (s *RedisStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	tokens, err := s.redis.ZRevRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(tokens) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	out := make([]*Session, 0, len(tokens))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, unavailable(err)
		}
		sess, ok := decodeHash(tokens[i], fields)
		if !ok || !sess.IsActive {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Touch advances LastActivity of an active session.
func (s *RedisStore) Touch(ctx context.Context, token string) error {
	if err := touchLua.Run(ctx, s.redis, []string{s.sessionKey(token), s.activityKey()},
		s.opts.prefix, token, s.nowMillis(),
	).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Deactivate revokes the session for token. It reports false when the
// session was already inactive or unknown.
func (s *RedisStore) Deactivate(ctx context.Context, token string) (bool, error) {
	n, err := deactivateLua.Run(ctx, s.redis, []string{s.sessionKey(token), s.activityKey()},
		s.opts.prefix, token, s.nowMillis(), s.retainMillis(),
	).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// DeactivateByID revokes session id only if userID owns it.
func (s *RedisStore) DeactivateByID(ctx context.Context, id, userID string) (bool, error) {
	n, err := deactivateByIDLua.Run(ctx, s.redis, []string{s.idKey(id), s.activityKey()},
		s.opts.prefix, userID, s.nowMillis(), s.retainMillis(),
	).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// DeactivateAllForUser revokes every active session of userID in one script.
func (s *RedisStore) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := deactivateAllLua.Run(ctx, s.redis, []string{s.userKey(userID), s.activityKey()},
		s.opts.prefix, s.nowMillis(), s.retainMillis(),
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	s.opts.logger.Debug().Str("user_id", userID).Int("count", n).Msg("sessions deactivated for user")
	return n, nil
}

// DeleteOldest revokes the least recently active session of userID.
func (s *RedisStore) DeleteOldest(ctx context.Context, userID string) (bool, error) {
	n, err := deleteOldestLua.Run(ctx, s.redis, []string{s.userKey(userID), s.activityKey()},
		s.opts.prefix, s.nowMillis(), s.retainMillis(),
	).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// SweepExpired revokes every active session idle longer than idleTimeout.
func (s *RedisStore) SweepExpired(ctx context.Context, idleTimeout time.Duration) (int, error) {
	now := s.opts.now()
	cutoff := now.Add(-idleTimeout).UnixMilli()

	total := 0
	for {
		res, err := sweepLua.Run(ctx, s.redis, []string{s.activityKey()},
			s.opts.prefix, cutoff, now.UnixMilli(), s.retainMillis(), sweepBatch,
		).Int64Slice()
		if err != nil {
			return total, unavailable(err)
		}
		total += int(res[0])
		if res[1] < sweepBatch {
			return total, nil
		}
	}
}

// LockUser takes the admission lock for userID, retrying until ctx is done.
// The lock key expires after the lock TTL if the holder dies.
func (s *RedisStore) LockUser(ctx context.Context, userID string) (UserLock, error) {
	key := s.lockKey(userID)
	owner, err := randomOwner()
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	_, err = backoff.Retry(ctx, func() (bool, error) {
		ok, err := s.redis.SetNX(ctx, key, owner, s.opts.lockTTL).Result()
		if err != nil {
			return false, backoff.Permanent(unavailable(err))
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(s.opts.lockTTL))
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}

	return &redisUserLock{store: s, userID: userID, key: key, owner: owner}, nil
}

// redisUserLock runs each operation as its own script. Writes are durable as
// soon as they return, so Release cannot undo them.
type redisUserLock struct {
	store  *RedisStore
	userID string
	key    string
	owner  string
	once   sync.Once
}

func (l *redisUserLock) CountActive(ctx context.Context) (int, error) {
	return l.store.CountActive(ctx, l.userID)
}

func (l *redisUserLock) DeleteOldest(ctx context.Context) (bool, error) {
	return l.store.DeleteOldest(ctx, l.userID)
}

func (l *redisUserLock) Create(ctx context.Context, in NewSession) (*Session, error) {
	in.UserID = l.userID
	return l.store.Create(ctx, in)
}

func (l *redisUserLock) DeactivateAll(ctx context.Context) (int, error) {
	return l.store.DeactivateAllForUser(ctx, l.userID)
}

func (l *redisUserLock) Commit(context.Context) error {
	l.Release()
	return nil
}

func (l *redisUserLock) Release() {
	l.once.Do(func() {
		// Released with a fresh context; the caller's may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockLua.Run(ctx, l.store.redis, []string{l.key}, l.owner).Err(); err != nil {
			l.store.opts.logger.Warn().Err(err).Str("user_id", l.userID).Msg("session lock release failed")
		}
	})
}

var errLockHeld = errors.New("lock held")

func randomOwner() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// Ping measures a round trip to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, unavailable(err)
	}
	return time.Since(start), nil
}

func decodeHash(token string, f map[string]string) (*Session, bool) {
	if len(f) == 0 || f["id"] == "" {
		return nil, false
	}
	return &Session{
		ID:           f["id"],
		UserID:       f["uid"],
		Token:        token,
		DeviceInfo:   f["dev"],
		IPAddress:    f["ip"],
		LastActivity: millis(f["la"]),
		IsActive:     f["act"] == "1",
		CreatedAt:    millis(f["ca"]),
		UpdatedAt:    millis(f["ua"]),
	}, true
}

func millis(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}
