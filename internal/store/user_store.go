package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyberguard/cyberguard/internal/model"
)

// CreateUser inserts a new user. Generates a UUID if ID is empty. Emails
// are compared case-insensitively; a second user with the same email
// returns ErrDuplicate.
func (s *SQLiteStore) CreateUser(ctx context.Context, user model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return fmt.Errorf("user email must not be empty")
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.GetContext(ctx, &existing,
		"SELECT COUNT(*) FROM users WHERE email = ?", user.Email,
	); err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	return tx.Commit()
}

// GetUserByEmail retrieves a user by email, or ErrNotFound.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)

	var (
		u         model.User
		createdAt time.Time
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", email, err)
	}
	u.CreatedAt = createdAt

	return &u, nil
}
