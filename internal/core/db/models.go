package db

import "time"

// timeLayout is fixed-width so that lexical order of the stored text equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Bookmark struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBookmark is the client-supplied part of a bookmark. ID and CreatedAt
// are always assigned by the store.
type NewBookmark struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// BookmarkPatch carries the editable fields of a bookmark.
type BookmarkPatch struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type User struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is what an external sign-in provider tells us about a user.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand (or by older tooling) may use plain RFC3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
