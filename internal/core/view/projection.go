package view

import (
	"strings"

	"github.com/seckatie/smartbookmark/internal/core/db"
)

// Filter returns the bookmarks whose title or URL contains query, ignoring
// case. An empty query matches everything. The input order is kept and the
// input slice is never modified.
func Filter(bookmarks []db.Bookmark, query string) []db.Bookmark {
	out := make([]db.Bookmark, 0, len(bookmarks))
	if query == "" {
		return append(out, bookmarks...)
	}
	q := strings.ToLower(query)
	for _, b := range bookmarks {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.URL), q) {
			out = append(out, b)
		}
	}
	return out
}
