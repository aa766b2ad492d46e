package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id::text, user_id::text, session_token, device_info, ip_address,
	last_activity, is_active, created_at, updated_at`

// PostgresStore keeps sessions in the sessions table.
//
// Revocation is a soft update of is_active; rows are never deleted.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create inserts a new active session.
func (s *PostgresStore) Create(ctx context.Context, in NewSession) (*Session, error) {
	return s.create(ctx, s.pool, in)
}

func (s *PostgresStore) create(ctx context.Context, q querier, in NewSession) (*Session, error) {
	in = in.normalized()
	now := s.opts.now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Token:        in.Token,
		DeviceInfo:   in.DeviceInfo,
		IPAddress:    in.IPAddress,
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO sessions (
			id, user_id, session_token, device_info, ip_address,
			last_activity, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $6, $6)
	`
	_, err := q.Exec(ctx, query, sess.ID, sess.UserID, sess.Token, sess.DeviceInfo, sess.IPAddress, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateToken
		}
		return nil, unavailable(err)
	}

	s.opts.logger.Debug().Str("user_id", sess.UserID).Str("session_id", sess.ID).Msg("session created")
	return sess, nil
}

// FindActive returns the active session for token.
func (s *PostgresStore) FindActive(ctx context.Context, token string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_token = $1 AND is_active`
	return s.queryOne(ctx, query, token)
}

// FindByID returns the active session id owned by userID.
func (s *PostgresStore) FindByID(ctx context.Context, id, userID string) (*Session, error) {
	if !validUUID(id) || !validUUID(userID) {
		return nil, ErrSessionNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND user_id = $2 AND is_active`
	return s.queryOne(ctx, query, id, userID)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, unavailable(err)
	}
	return sess, nil
}

// CountActive returns the number of active sessions of userID.
func (s *PostgresStore) CountActive(ctx context.Context, userID string) (int, error) {
	return countActive(ctx, s.pool, userID)
}

func countActive(ctx context.Context, q querier, userID string) (int, error) {
	if !validUUID(userID) {
		return 0, nil
	}
	var n int
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM sessions WHERE user_id = $1 AND is_active`, userID,
	).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// ListActive returns active sessions of userID ordered by last activity, newest first.
func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	if !validUUID(userID) {
		return []*Session{}, nil
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY last_activity DESC, created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Touch moves last_activity forward; GREATEST keeps it monotonic under
// concurrent requests.
func (s *PostgresStore) Touch(ctx context.Context, token string) error {
	now := s.opts.now()
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET last_activity = GREATEST(last_activity, $2), updated_at = $2
		WHERE session_token = $1 AND is_active
	`, token, now)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Deactivate revokes the session for token.
func (s *PostgresStore) Deactivate(ctx context.Context, token string) (bool, error) {
	return execAffected(ctx, s.pool, `
		UPDATE sessions SET is_active = FALSE, updated_at = $2
		WHERE session_token = $1 AND is_active
	`, token, s.opts.now())
}

// DeactivateByID revokes session id only if userID owns it.
func (s *PostgresStore) DeactivateByID(ctx context.Context, id, userID string) (bool, error) {
	if !validUUID(id) || !validUUID(userID) {
		return false, nil
	}
	return execAffected(ctx, s.pool, `
		UPDATE sessions SET is_active = FALSE, updated_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active
	`, id, userID, s.opts.now())
}

// DeactivateAllForUser revokes every active session of userID.
func (s *PostgresStore) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	return s.deactivateAll(ctx, s.pool, userID)
}

func (s *PostgresStore) deactivateAll(ctx context.Context, q querier, userID string) (int, error) {
	if !validUUID(userID) {
		return 0, nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, updated_at = $2
		WHERE user_id = $1 AND is_active
	`, userID, s.opts.now())
	if err != nil {
		return 0, unavailable(err)
	}
	s.opts.logger.Debug().Str("user_id", userID).Int64("count", tag.RowsAffected()).Msg("sessions deactivated for user")
	return int(tag.RowsAffected()), nil
}

// DeleteOldest revokes the least recently active session of userID.
func (s *PostgresStore) DeleteOldest(ctx context.Context, userID string) (bool, error) {
	return s.deleteOldest(ctx, s.pool, userID)
}

func (s *PostgresStore) deleteOldest(ctx context.Context, q querier, userID string) (bool, error) {
	if !validUUID(userID) {
		return false, nil
	}
	return execAffected(ctx, q, `
		UPDATE sessions SET is_active = FALSE, updated_at = $2
		WHERE is_active AND id = (
			SELECT id FROM sessions
			WHERE user_id = $1 AND is_active
			ORDER BY last_activity ASC, created_at ASC
			LIMIT 1
			FOR UPDATE
		)
	`, userID, s.opts.now())
}

// SweepExpired revokes all active sessions idle longer than idleTimeout.
func (s *PostgresStore) SweepExpired(ctx context.Context, idleTimeout time.Duration) (int, error) {
	now := s.opts.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, updated_at = $2
		WHERE is_active AND last_activity < $1
	`, now.Add(-idleTimeout), now)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

// LockUser opens a transaction holding a transaction-level advisory lock
// keyed by userID. Every operation of the returned scope runs on that
// transaction, so an admission never needs a second pooled connection.
func (s *PostgresStore) LockUser(ctx context.Context, userID string) (UserLock, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		}
		return nil, unavailable(err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		rollback(tx)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		}
		return nil, unavailable(err)
	}
	return &pgUserLock{store: s, tx: tx, userID: userID}, nil
}

type pgUserLock struct {
	store  *PostgresStore
	tx     pgx.Tx
	userID string
}

func (l *pgUserLock) CountActive(ctx context.Context) (int, error) {
	return countActive(ctx, l.tx, l.userID)
}

func (l *pgUserLock) DeleteOldest(ctx context.Context) (bool, error) {
	return l.store.deleteOldest(ctx, l.tx, l.userID)
}

func (l *pgUserLock) Create(ctx context.Context, in NewSession) (*Session, error) {
	in.UserID = l.userID
	return l.store.create(ctx, l.tx, in)
}

func (l *pgUserLock) DeactivateAll(ctx context.Context) (int, error) {
	return l.store.deactivateAll(ctx, l.tx, l.userID)
}

func (l *pgUserLock) Commit(ctx context.Context) error {
	if err := l.tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (l *pgUserLock) Release() { rollback(l.tx) }

// rollback discards its error; after a commit it reports pgx.ErrTxClosed.
func rollback(tx pgx.Tx) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tx.Rollback(ctx)
}

// Ping measures a round trip to the database.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return 0, unavailable(err)
	}
	return time.Since(start), nil
}

func execAffected(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess       Session
		deviceInfo *string
		ipAddress  *string
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Token,
		&deviceInfo,
		&ipAddress,
		&sess.LastActivity,
		&sess.IsActive,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deviceInfo != nil {
		sess.DeviceInfo = *deviceInfo
	}
	if ipAddress != nil {
		sess.IPAddress = *ipAddress
	}
	return &sess, nil
}

func validUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
