package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestValidateBookmarkURL tests URL validation.
func TestValidateBookmarkURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://example.com", false},
		{"http with path", "http://example.com/a?b=c", false},
		{"empty", "", true},
		{"ftp scheme", "ftp://example.com", true},
		{"no host", "https://", true},
		{"not a url", "::", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBookmarkURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateBookmarkURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidURL) {
				t.Errorf("expected ErrInvalidURL, got %v", err)
			}
		})
	}
}

// TestCreateBookmark tests bookmark creation.
func TestCreateBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	owner := newTestOwner(t, db, "alice")

	t.Run("creates bookmark successfully", func(t *testing.T) {
		b, err := db.CreateBookmark(ctx, NewBookmark{OwnerID: owner, Title: "Example Site", URL: "https://example.com"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if b.ID == "" {
			t.Error("expected store-assigned ID")
		}
		if b.OwnerID != owner {
			t.Errorf("expected owner %q, got %q", owner, b.OwnerID)
		}
		if b.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("assigns unique IDs", func(t *testing.T) {
		b1, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: owner, Title: "Site 1", URL: "https://site1.com"})
		b2, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: owner, Title: "Site 2", URL: "https://site2.com"})
		if b1.ID == b2.ID {
			t.Errorf("expected distinct IDs, both were %q", b1.ID)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		cases := []struct {
			name string
			nb   NewBookmark
			want error
		}{
			{"missing owner", NewBookmark{Title: "T", URL: "https://x.com"}, ErrInvalidBookmark},
			{"empty title", NewBookmark{OwnerID: owner, Title: "  ", URL: "https://x.com"}, ErrInvalidBookmark},
			{"bad url", NewBookmark{OwnerID: owner, Title: "T", URL: "javascript:alert(1)"}, ErrInvalidURL},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				if _, err := db.CreateBookmark(ctx, c.nb); !errors.Is(err, c.want) {
					t.Errorf("expected %v, got %v", c.want, err)
				}
			})
		}
	})

	t.Run("rejects unknown owner", func(t *testing.T) {
		_, err := db.CreateBookmark(ctx, NewBookmark{OwnerID: "ghost", Title: "T", URL: "https://x.com"})
		if err == nil {
			t.Error("expected foreign key error for unknown owner")
		}
	})
}

// TestGetBookmark tests retrieving a single bookmark.
func TestGetBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	alice := newTestOwner(t, db, "alice")
	bob := newTestOwner(t, db, "bob")

	created, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "Example Site", URL: "https://example.com"})

	t.Run("retrieves existing bookmark", func(t *testing.T) {
		b, err := db.GetBookmark(ctx, alice, created.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if b.URL != "https://example.com" || b.Title != "Example Site" {
			t.Errorf("unexpected bookmark %+v", b)
		}
		if !b.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("expected CreatedAt %v, got %v", created.CreatedAt, b.CreatedAt)
		}
	})

	t.Run("hides bookmarks of other owners", func(t *testing.T) {
		if _, err := db.GetBookmark(ctx, bob, created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returns error for non-existent bookmark", func(t *testing.T) {
		if _, err := db.GetBookmark(ctx, alice, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// TestListBookmarksByOwner tests listing bookmarks.
func TestListBookmarksByOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty list when no bookmarks", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()
		owner := newTestOwner(t, db, "alice")

		bookmarks, err := db.ListBookmarksByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if bookmarks == nil || len(bookmarks) != 0 {
			t.Errorf("expected empty non-nil list, got %v", bookmarks)
		}
	})

	t.Run("scopes to the owner", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()
		alice := newTestOwner(t, db, "alice")
		bob := newTestOwner(t, db, "bob")

		db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "A1", URL: "https://a1.com"})
		db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "A2", URL: "https://a2.com"})
		db.CreateBookmark(ctx, NewBookmark{OwnerID: bob, Title: "B1", URL: "https://b1.com"})

		bookmarks, _ := db.ListBookmarksByOwner(ctx, alice)
		if len(bookmarks) != 2 {
			t.Fatalf("expected 2 bookmarks, got %d", len(bookmarks))
		}
		for _, b := range bookmarks {
			if b.OwnerID != alice {
				t.Errorf("leaked bookmark of owner %q", b.OwnerID)
			}
		}
	})

	t.Run("orders by created_at DESC", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()
		owner := newTestOwner(t, db, "alice")

		rows := []struct{ id, title, createdAt string }{
			{"1", "First", "2024-01-01T00:00:00.000000000Z"},
			{"2", "Third", "2024-01-03T00:00:00.000000000Z"},
			{"3", "Second", "2024-01-02T00:00:00.000000000Z"},
		}
		for _, r := range rows {
			_, err := db.db.Exec("INSERT INTO bookmarks (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)",
				r.id, owner, r.title, "https://"+r.id+".com", r.createdAt)
			if err != nil {
				t.Fatalf("failed to insert %s: %v", r.title, err)
			}
		}

		bookmarks, _ := db.ListBookmarksByOwner(ctx, owner)
		want := []string{"Third", "Second", "First"}
		for i, w := range want {
			if bookmarks[i].Title != w {
				t.Errorf("position %d: expected %q, got %q", i, w, bookmarks[i].Title)
			}
		}
	})

	t.Run("breaks created_at ties by insertion order", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()
		owner := newTestOwner(t, db, "alice")

		for _, id := range []string{"a", "b", "c"} {
			_, err := db.db.Exec("INSERT INTO bookmarks (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)",
				id, owner, id, "https://"+id+".com", "2024-01-01T00:00:00.000000000Z")
			if err != nil {
				t.Fatalf("failed to insert %s: %v", id, err)
			}
		}

		bookmarks, _ := db.ListBookmarksByOwner(ctx, owner)
		if bookmarks[0].ID != "c" || bookmarks[1].ID != "b" || bookmarks[2].ID != "a" {
			t.Errorf("expected c,b,a got %s,%s,%s", bookmarks[0].ID, bookmarks[1].ID, bookmarks[2].ID)
		}
	})

	t.Run("reads legacy RFC3339 timestamps", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()
		owner := newTestOwner(t, db, "alice")

		_, err := db.db.Exec("INSERT INTO bookmarks (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)",
			"legacy", owner, "Legacy", "https://legacy.com", "2024-05-01T10:00:00Z")
		if err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		bookmarks, err := db.ListBookmarksByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		if !bookmarks[0].CreatedAt.Equal(want) {
			t.Errorf("expected %v, got %v", want, bookmarks[0].CreatedAt)
		}
	})
}

// TestUpdateBookmark tests updating a bookmark.
func TestUpdateBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	alice := newTestOwner(t, db, "alice")
	bob := newTestOwner(t, db, "bob")

	t.Run("updates existing bookmark", func(t *testing.T) {
		b, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "Old Title", URL: "https://old.com"})

		if err := db.UpdateBookmark(ctx, alice, b.ID, BookmarkPatch{Title: "New Title", URL: "https://new.com"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, _ := db.GetBookmark(ctx, alice, b.ID)
		if got.URL != "https://new.com" || got.Title != "New Title" {
			t.Errorf("unexpected bookmark after update: %+v", got)
		}
		if !got.CreatedAt.Equal(b.CreatedAt) {
			t.Error("expected CreatedAt to be immutable")
		}
	})

	t.Run("refuses to touch another owner's bookmark", func(t *testing.T) {
		b, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "Mine", URL: "https://mine.com"})

		err := db.UpdateBookmark(ctx, bob, b.ID, BookmarkPatch{Title: "Stolen", URL: "https://x.com"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returns error for non-existent bookmark", func(t *testing.T) {
		err := db.UpdateBookmark(ctx, alice, "missing", BookmarkPatch{Title: "New Title", URL: "https://new.com"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("validates the patch", func(t *testing.T) {
		b, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "T", URL: "https://t.com"})
		if err := db.UpdateBookmark(ctx, alice, b.ID, BookmarkPatch{Title: "T", URL: "nope"}); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})
}

// TestDeleteBookmark tests deleting a bookmark.
func TestDeleteBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	alice := newTestOwner(t, db, "alice")
	bob := newTestOwner(t, db, "bob")

	t.Run("deletes existing bookmark", func(t *testing.T) {
		b, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "To Delete", URL: "https://example.com"})

		if err := db.DeleteBookmark(ctx, alice, b.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := db.GetBookmark(ctx, alice, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected bookmark to be gone, got %v", err)
		}
	})

	t.Run("refuses to delete another owner's bookmark", func(t *testing.T) {
		b, _ := db.CreateBookmark(ctx, NewBookmark{OwnerID: alice, Title: "Keep", URL: "https://keep.com"})

		if err := db.DeleteBookmark(ctx, bob, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := db.GetBookmark(ctx, alice, b.ID); err != nil {
			t.Errorf("expected bookmark to survive, got %v", err)
		}
	})

	t.Run("returns error for non-existent bookmark", func(t *testing.T) {
		if err := db.DeleteBookmark(ctx, alice, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
