package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/seckatie/smartbookmark/internal/logger"
)

// DefaultChannelPrefix namespaces the per-owner pub/sub channels.
const DefaultChannelPrefix = "smartbookmark:feed:"

const publishTimeout = 2 * time.Second

// RedisBridge relays feed events between processes that share a database.
// Locally originated events are published to Redis; messages from other
// processes are published to the local hub. Every message carries the
// origin id of the process that wrote it so a process never re-delivers its
// own events.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	log    logger.Logger
	origin string
	prefix string
}

type redisMessage struct {
	Origin  string `json:"origin"`
	OwnerID string `json:"owner_id"`
	Event   Event  `json:"event"`
}

func NewRedisBridge(client *redis.Client, hub *Hub, log logger.Logger) *RedisBridge {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBridge{
		client: client,
		hub:    hub,
		log:    log,
		origin: ulid.Make().String(),
		prefix: DefaultChannelPrefix,
	}
}

// Origin identifies this process on the bus.
func (b *RedisBridge) Origin() string { return b.origin }

func (b *RedisBridge) channel(ownerID string) string {
	return b.prefix + ownerID
}

// Run subscribes to every owner channel and relays messages until ctx is
// cancelled. Local events are forwarded to Redis only while Run is active.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", b.prefix, err)
	}

	var active atomic.Bool
	active.Store(true)
	defer active.Store(false)
	b.hub.Forward(func(ownerID string, ev Event) {
		if !active.Load() || ctx.Err() != nil {
			return
		}
		b.publish(ctx, ownerID, ev)
	})

	b.log.Info("feed bridge running",
		logger.String("origin", b.origin),
		logger.String("pattern", b.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Channel, msg.Payload)
		}
	}
}

func (b *RedisBridge) publish(ctx context.Context, ownerID string, ev Event) {
	payload, err := b.encode(ownerID, ev)
	if err != nil {
		b.log.Error("failed to encode feed message", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel(ownerID), payload).Err(); err != nil {
		b.log.Warn("failed to publish feed event",
			logger.String("owner_id", ownerID),
			logger.String("kind", ev.Kind.String()),
			logger.Error(err))
	}
}

func (b *RedisBridge) encode(ownerID string, ev Event) ([]byte, error) {
	return json.Marshal(redisMessage{Origin: b.origin, OwnerID: ownerID, Event: ev})
}

// handle relays one pub/sub payload to the hub. It reports whether the
// message was published locally.
func (b *RedisBridge) handle(channel, payload string) bool {
	var msg redisMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.Warn("dropping malformed feed message", logger.String("channel", channel), logger.Error(err))
		return false
	}
	if msg.Origin == b.origin {
		return false
	}
	if msg.OwnerID == "" || strings.TrimPrefix(channel, b.prefix) != msg.OwnerID {
		b.log.Warn("dropping feed message with mismatched owner", logger.String("channel", channel))
		return false
	}
	if !msg.Event.Valid() {
		b.log.Debug("dropping invalid feed event", logger.String("channel", channel))
		return false
	}

	b.hub.Publish(msg.OwnerID, msg.Event)
	return true
}
