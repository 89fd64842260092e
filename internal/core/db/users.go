package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidIdentity is returned when a sign-in identity lacks provider or subject.
var ErrInvalidIdentity = errors.New("invalid identity")

// UpsertUser returns the user for (provider, subject), creating it on first
// sign-in. Email and name are refreshed on every call; the id never changes.
func (db *DB) UpsertUser(ctx context.Context, id Identity) (User, error) {
	if id.Provider == "" || id.Subject == "" {
		return User{}, ErrInvalidIdentity
	}

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO users (id, provider, subject, email, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, subject) DO UPDATE SET email = excluded.email, name = excluded.name
	`, uuid.NewString(), id.Provider, id.Subject, id.Email, id.Name, formatTime(time.Now()))
	if err != nil {
		return User{}, fmt.Errorf("failed to upsert user: %w", err)
	}

	row := db.db.QueryRowContext(ctx, `
		SELECT id, provider, subject, email, name, created_at
		FROM users WHERE provider = ? AND subject = ?
	`, id.Provider, id.Subject)
	return scanUser(row)
}

// GetUser returns the user with the given owner id.
func (db *DB) GetUser(ctx context.Context, userID string) (User, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT id, provider, subject, email, name, created_at
		FROM users WHERE id = ?
	`, userID)
	return scanUser(row)
}

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return User{}, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	u.CreatedAt = t
	return u, nil
}
