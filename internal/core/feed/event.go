package feed

import (
	"encoding/json"
	"fmt"

	"github.com/seckatie/smartbookmark/internal/core/db"
)

// Kind classifies a change notification.
type Kind int

const (
	Insert Kind = iota + 1
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < Insert || k > Delete {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText leaves unknown kinds as the zero Kind so that consumers can
// drop them instead of failing the whole stream.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "insert":
		*k = Insert
	case "update":
		*k = Update
	case "delete":
		*k = Delete
	default:
		*k = 0
	}
	return nil
}

// Event is one change notification for a single bookmark. Bookmark is the
// full row for inserts and updates; for deletes it is the last known state
// and may be nil.
type Event struct {
	Kind     Kind         `json:"kind"`
	ID       string       `json:"id"`
	Bookmark *db.Bookmark `json:"bookmark,omitempty"`
}

// Valid reports whether the event carries what its kind requires.
func (e Event) Valid() bool {
	if e.ID == "" {
		return false
	}
	switch e.Kind {
	case Insert, Update:
		return e.Bookmark != nil && e.Bookmark.ID == e.ID
	case Delete:
		return true
	default:
		return false
	}
}

// Decode parses a wire-encoded event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode feed event: %w", err)
	}
	return ev, nil
}

// FromDB translates a store event into a feed event and the owner it
// belongs to. ok is false for store events the feed does not carry.
func FromDB(event db.Event) (ev Event, ownerID string, ok bool) {
	switch e := event.(type) {
	case db.BookmarkCreatedEvent:
		b := e.Bookmark
		return Event{Kind: Insert, ID: b.ID, Bookmark: &b}, b.OwnerID, true
	case db.BookmarkUpdatedEvent:
		b := e.Bookmark
		return Event{Kind: Update, ID: b.ID, Bookmark: &b}, b.OwnerID, true
	case db.BookmarkDeletedEvent:
		b := e.Bookmark
		return Event{Kind: Delete, ID: b.ID, Bookmark: &b}, b.OwnerID, true
	default:
		return Event{}, "", false
	}
}
