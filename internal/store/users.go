package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// ErrInvalidCredentials is returned by Authenticate for unknown emails and
// wrong passwords alike.
var ErrInvalidCredentials = errors.New("store: invalid credentials")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateUser inserts a new user. An empty password creates an account that
// cannot log in with a password.
func (d *DB) CreateUser(ctx context.Context, username, email, password, avatar string) (*User, error) {
	hash := ""
	if password != "" {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	}

	u := &User{
		ID:           newID(),
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Avatar:       avatar,
		PasswordHash: hash,
		CreatedAt:    d.timestamp(),
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, avatar, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Avatar, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %s: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return u, nil
}

// GetUser returns a user by id.
func (d *DB) GetUser(ctx context.Context, id string) (*User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM users WHERE id = ?
	`, id))
}

// GetUserByEmail returns a user by email, case-insensitively.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM users WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (d *DB) scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// Authenticate checks email/password and returns the user if valid.
func (d *DB) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := d.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CreateSession issues a new random session token for userID.
func (d *DB) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	s := &Session{
		ID:        hex.EncodeToString(buf),
		UserID:    userID,
		ExpiresAt: d.now().Add(ttl),
	}
	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		s.ID, s.UserID, s.ExpiresAt.Unix()); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// UserBySession resolves a non-expired session token to its user.
func (d *DB) UserBySession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return d.scanUser(d.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.avatar, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ?
	`, token, d.now().Unix()))
}

// DeleteSession removes a session token. Unknown tokens are ignored.
func (d *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
