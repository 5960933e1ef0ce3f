package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/user"
)

const userColumns = `username, password_hash, profile_picture, last_seen, created_at`

// UserStore implements user.Store on PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ user.Store = (*UserStore)(nil)

// NewUserStore wraps pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanAccount(row pgx.Row) (*user.Account, error) {
	var a user.Account
	if err := row.Scan(&a.Username, &a.PasswordHash, &a.ProfilePicture, &a.LastSeen, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account, mapping unique violations to user.ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, username, passwordHash string) (*user.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash) VALUES ($1, $2)
		RETURNING `+userColumns,
		username, passwordHash,
	)

	a, err := scanAccount(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, user.ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return a, nil
}

// GetByUsername returns user.ErrNotFound for unknown users.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*user.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return a, nil
}

// UpdateAvatar overwrites the stored profile picture reference.
func (s *UserStore) UpdateAvatar(ctx context.Context, username, profilePicture string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET profile_picture = $2 WHERE username = $1`, username, profilePicture)
	if err != nil {
		return fmt.Errorf("update avatar %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// TouchLastSeen stamps last_seen; unknown users are a no-op.
func (s *UserStore) TouchLastSeen(ctx context.Context, username string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = $2 WHERE username = $1`, username, at); err != nil {
		return fmt.Errorf("touch last seen %s: %w", username, err)
	}
	return nil
}

// Search matches usernames case-insensitively, ordered alphabetically.
func (s *UserStore) Search(ctx context.Context, query, exclude string, limit int) ([]user.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE username ILIKE $1 AND username <> $2
		ORDER BY lower(username) ASC
		LIMIT $3`,
		likePattern(query), exclude, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	out := make([]user.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	return out, rows.Err()
}
