package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEmail is returned by Create when the address is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

const userColumns = `id::text, name, email, password_hash, role, university, status,
	is_active, is_deleted, created_at, updated_at`

// Store implements lmsauth.UserProvider on the users table.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ lmsauth.UserProvider = (*Store)(nil)

// New creates a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// NewUser carries the fields for Create.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         lmsauth.Role
	University   string
	State        lmsauth.AccountState
}

// Create inserts a user. Empty Role and State fall back to the column defaults.
func (s *Store) Create(ctx context.Context, in NewUser) (lmsauth.User, error) {
	role := in.Role
	if role == "" {
		role = lmsauth.RoleStudent
	}
	state := in.State
	if state == "" {
		state = lmsauth.StatePending
	}

	query := `
		INSERT INTO users (name, email, password_hash, role, university, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING ` + userColumns
	u, err := scanUser(s.pool.QueryRow(ctx, query,
		in.Name, strings.TrimSpace(in.Email), in.PasswordHash, string(role), in.University, string(state)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return lmsauth.User{}, ErrDuplicateEmail
		}
		return lmsauth.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// FindByEmail matches email case-insensitively and skips soft-deleted rows.
func (s *Store) FindByEmail(ctx context.Context, email string) (lmsauth.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return lmsauth.User{}, lmsauth.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND NOT is_deleted`
	return s.queryOne(ctx, query, email)
}

// FindByID skips soft-deleted rows.
func (s *Store) FindByID(ctx context.Context, id string) (lmsauth.User, error) {
	if !validUUID(id) {
		return lmsauth.User{}, lmsauth.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND NOT is_deleted`
	return s.queryOne(ctx, query, id)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (lmsauth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lmsauth.User{}, lmsauth.ErrUserNotFound
		}
		return lmsauth.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND NOT is_deleted`,
		id, hash, s.now())
}

// UpdateAccountState sets the approval state.
func (s *Store) UpdateAccountState(ctx context.Context, id string, state lmsauth.AccountState) error {
	if !state.Valid() {
		return lmsauth.ErrInvalidAccountState
	}
	return s.update(ctx, `UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 AND NOT is_deleted`,
		id, string(state), s.now())
}

// SoftDelete marks the user deleted and inactive. The row is kept.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	return s.update(ctx, `UPDATE users SET is_deleted = TRUE, is_active = FALSE, updated_at = $2 WHERE id = $1 AND NOT is_deleted`,
		id, s.now())
}

func (s *Store) update(ctx context.Context, query, id string, args ...any) error {
	if !validUUID(id) {
		return lmsauth.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lmsauth.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (lmsauth.User, error) {
	var (
		u          lmsauth.User
		role       string
		state      string
		university *string
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&university,
		&state,
		&u.IsActive,
		&u.IsDeleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return lmsauth.User{}, err
	}
	u.Role = lmsauth.Role(role)
	u.State = lmsauth.AccountState(state)
	if university != nil {
		u.University = *university
	}
	return u, nil
}

func validUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
