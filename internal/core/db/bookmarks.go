package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seckatie/smartbookmark/internal/logger"
)

var (
	// ErrInvalidURL is returned when a bookmark URL fails validation.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidBookmark is returned when a required bookmark field is missing.
	ErrInvalidBookmark = errors.New("invalid bookmark")
	// ErrNotFound is returned when a row does not exist or belongs to another owner.
	ErrNotFound = errors.New("not found")
)

// ValidateBookmarkURL validates that a URL is acceptable for bookmarking.
// It requires the URL to have http or https scheme and a non-empty host.
func ValidateBookmarkURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}

func validatePatch(p BookmarkPatch) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidBookmark)
	}
	return ValidateBookmarkURL(p.URL)
}

// ------------------------------
// Bookmark methods
// ------------------------------

const bookmarkColumns = "id, owner_id, title, url, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (Bookmark, error) {
	var (
		b         Bookmark
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &createdAt); err != nil {
		return Bookmark{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	b.CreatedAt = t
	return b, nil
}

// GetBookmark returns the bookmark with the given id if it belongs to ownerID.
func (db *DB) GetBookmark(ctx context.Context, ownerID, id string) (Bookmark, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ? AND owner_id = ?", id, ownerID)
	b, err := scanBookmark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
		}
		return Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// CreateBookmark inserts a new bookmark and returns the stored row.
//
// The store assigns ID and CreatedAt. It validates the URL before inserting and
// returns ErrInvalidURL if validation fails.
// Emits a BookmarkCreatedEvent after successful insert.
func (db *DB) CreateBookmark(ctx context.Context, nb NewBookmark) (Bookmark, error) {
	if nb.OwnerID == "" {
		return Bookmark{}, fmt.Errorf("%w: missing owner", ErrInvalidBookmark)
	}
	if err := validatePatch(BookmarkPatch{Title: nb.Title, URL: nb.URL}); err != nil {
		return Bookmark{}, err
	}

	b := Bookmark{
		ID:        uuid.NewString(),
		OwnerID:   nb.OwnerID,
		Title:     nb.Title,
		URL:       nb.URL,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.db.ExecContext(ctx,
		"INSERT INTO bookmarks (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)",
		b.ID,
		b.OwnerID,
		b.Title,
		b.URL,
		formatTime(b.CreatedAt),
	)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to add bookmark: %w", err)
	}

	db.emit(BookmarkCreatedEvent{Bookmark: b})

	return b, nil
}

// ListBookmarksByOwner returns every bookmark of ownerID, newest first.
// Rows sharing a created_at come back in reverse insertion order.
func (db *DB) ListBookmarksByOwner(ctx context.Context, ownerID string) ([]Bookmark, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+bookmarkColumns+`
		FROM bookmarks
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			db.log.Warn("failed to close rows", logger.Error(err))
		}
	}()

	out := []Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return out, nil
}

// UpdateBookmark replaces a bookmark's title and URL.
// Emits a BookmarkUpdatedEvent carrying the full updated row.
func (db *DB) UpdateBookmark(ctx context.Context, ownerID, id string, patch BookmarkPatch) error {
	if err := validatePatch(patch); err != nil {
		return err
	}

	res, err := db.db.ExecContext(ctx,
		"UPDATE bookmarks SET title = ?, url = ? WHERE id = ? AND owner_id = ?",
		patch.Title, patch.URL, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}

	b, err := db.GetBookmark(ctx, ownerID, id)
	if err != nil {
		db.log.Warn("updated bookmark vanished before event", logger.String("id", id), logger.Error(err))
		return nil
	}
	db.emit(BookmarkUpdatedEvent{Bookmark: b})

	return nil
}

// DeleteBookmark removes a bookmark.
// Emits a BookmarkDeletedEvent with the row as it was before deletion.
func (db *DB) DeleteBookmark(ctx context.Context, ownerID, id string) error {
	b, err := db.GetBookmark(ctx, ownerID, id)
	if err != nil {
		return err
	}

	res, err := db.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}

	db.emit(BookmarkDeletedEvent{Bookmark: b})

	return nil
}
