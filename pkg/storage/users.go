package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash never leaves this package's
// callers in serialized form.
type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateUser inserts a new user with a store-assigned id.
// Returns ErrDuplicate if the email is already registered.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, email, password_hash, created_at)
        VALUES (?, ?, ?, ?)
    `, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUserByEmail looks up a user by (lowercased) email.
// Returns ErrNotFound when no such user exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, created_at FROM users WHERE email = ?
    `, strings.ToLower(strings.TrimSpace(email)))

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID looks up a user by id. Returns ErrNotFound when absent.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, created_at FROM users WHERE id = ?
    `, id)

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUsersExcept returns all users except the one with the given id,
// ordered by email. Used for the collaborator picker.
func (s *Store) ListUsersExcept(ctx context.Context, excludeUserID string) ([]*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, email, password_hash, created_at FROM users WHERE id != ? ORDER BY email
    `, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
