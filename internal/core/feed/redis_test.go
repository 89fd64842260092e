package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBridgeHandle(t *testing.T) {
	hub := NewHub(nil, 0)
	bridge := NewRedisBridge(nil, hub, nil)
	other := NewRedisBridge(nil, NewHub(nil, 0), nil)
	require.NotEqual(t, bridge.Origin(), other.Origin())

	rec := newRecorder()
	hub.Subscribe("alice", rec.onEvent)

	remote, err := other.encode("alice", bookmarkEvent(Insert, "1", "alice"))
	require.NoError(t, err)
	own, err := bridge.encode("alice", bookmarkEvent(Insert, "2", "alice"))
	require.NoError(t, err)

	t.Run("relays messages from other processes", func(t *testing.T) {
		assert.True(t, bridge.handle(bridge.channel("alice"), string(remote)))
		got := rec.waitFor(t, 1)
		assert.Equal(t, "1", got[0].ID)
	})

	t.Run("ignores its own messages", func(t *testing.T) {
		assert.False(t, bridge.handle(bridge.channel("alice"), string(own)))
	})

	t.Run("ignores owner mismatch", func(t *testing.T) {
		assert.False(t, bridge.handle(bridge.channel("bob"), string(remote)))
	})

	t.Run("ignores malformed payloads", func(t *testing.T) {
		assert.False(t, bridge.handle(bridge.channel("alice"), "{"))
	})

	t.Run("ignores invalid events", func(t *testing.T) {
		bad, err := other.encode("alice", Event{Kind: Update, ID: "3"})
		require.NoError(t, err)
		assert.False(t, bridge.handle(bridge.channel("alice"), string(bad)))
	})

	assert.Equal(t, 1, rec.count())
}
