package view

import (
	"context"

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/core/feed"
)

// LocalBackend serves a View straight from a database and hub in the same
// process, acting for a single owner.
type LocalBackend struct {
	DB      *db.DB
	Hub     *feed.Hub
	OwnerID string
	Email   string
}

func (l *LocalBackend) ListByOwner(ctx context.Context, ownerID string) ([]db.Bookmark, error) {
	return l.DB.ListBookmarksByOwner(ctx, ownerID)
}

func (l *LocalBackend) Create(ctx context.Context, nb db.NewBookmark) (db.Bookmark, error) {
	return l.DB.CreateBookmark(ctx, nb)
}

func (l *LocalBackend) Update(ctx context.Context, id string, patch db.BookmarkPatch) error {
	return l.DB.UpdateBookmark(ctx, l.OwnerID, id, patch)
}

func (l *LocalBackend) Delete(ctx context.Context, id string) error {
	return l.DB.DeleteBookmark(ctx, l.OwnerID, id)
}

func (l *LocalBackend) Subscribe(_ context.Context, ownerID string, onEvent func(feed.Event)) (Subscription, error) {
	return l.Hub.Subscribe(ownerID, onEvent), nil
}

func (l *LocalBackend) CurrentSession(context.Context) (Session, bool) {
	if l.OwnerID == "" {
		return Session{}, false
	}
	return Session{OwnerID: l.OwnerID, Email: l.Email}, true
}
