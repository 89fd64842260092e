package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seckatie/smartbookmark/internal/core/db"
)

func TestKindText(t *testing.T) {
	for _, k := range []Kind{Insert, Update, Delete} {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	_, err := Kind(0).MarshalText()
	assert.Error(t, err)

	var unknown Kind
	require.NoError(t, unknown.UnmarshalText([]byte("truncate")))
	assert.Equal(t, Kind(0), unknown)
	assert.Equal(t, "unknown", unknown.String())
}

func TestEventValid(t *testing.T) {
	b := &db.Bookmark{ID: "1"}
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"insert with payload", Event{Kind: Insert, ID: "1", Bookmark: b}, true},
		{"update with payload", Event{Kind: Update, ID: "1", Bookmark: b}, true},
		{"delete without payload", Event{Kind: Delete, ID: "1"}, true},
		{"insert without payload", Event{Kind: Insert, ID: "1"}, false},
		{"update with mismatched payload", Event{Kind: Update, ID: "2", Bookmark: b}, false},
		{"missing id", Event{Kind: Delete}, false},
		{"unknown kind", Event{ID: "1", Bookmark: b}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.Valid())
		})
	}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"update","id":"1","bookmark":{"id":"1","owner_id":"o","title":"Docs v2","url":"https://docs.dev","created_at":"2024-01-01T00:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, Update, ev.Kind)
	assert.Equal(t, "Docs v2", ev.Bookmark.Title)
	assert.True(t, ev.Valid())

	ev, err = Decode([]byte(`{"kind":"rename","id":"1"}`))
	require.NoError(t, err)
	assert.False(t, ev.Valid())

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEventWireShape(t *testing.T) {
	data, err := json.Marshal(Event{Kind: Delete, ID: "42"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"delete","id":"42"}`, string(data))
}

func TestFromDB(t *testing.T) {
	b := db.Bookmark{ID: "1", OwnerID: "alice"}

	ev, owner, ok := FromDB(db.BookmarkCreatedEvent{Bookmark: b})
	require.True(t, ok)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, Insert, ev.Kind)

	ev, _, _ = FromDB(db.BookmarkUpdatedEvent{Bookmark: b})
	assert.Equal(t, Update, ev.Kind)

	ev, _, _ = FromDB(db.BookmarkDeletedEvent{Bookmark: b})
	assert.Equal(t, Delete, ev.Kind)
	assert.Equal(t, "1", ev.ID)
}
