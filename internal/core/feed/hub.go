package feed

import (
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// DefaultBufferSize is the per-subscription queue length used when NewHub is
// given a non-positive size.
const DefaultBufferSize = 64

var (
	// ErrSlowConsumer ends a subscription whose queue overflowed. The
	// consumer has missed events and must reload before subscribing again.
	ErrSlowConsumer = errors.New("feed: subscriber fell behind")
	// ErrHubClosed ends every subscription when the hub shuts down.
	ErrHubClosed = errors.New("feed: hub closed")
)

// Forwarder receives every locally originated event after it has been
// delivered to local subscribers.
type Forwarder func(ownerID string, ev Event)

// Hub fans change notifications out to per-owner subscriptions.
type Hub struct {
	log        logger.Logger
	bufferSize int

	mu         sync.Mutex
	subs       map[string]map[ulid.ULID]*Subscription
	forwarders []Forwarder
	closed     bool
}

func NewHub(log logger.Logger, bufferSize int) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		log:        log,
		bufferSize: bufferSize,
		subs:       make(map[string]map[ulid.ULID]*Subscription),
	}
}

// Subscription is one logical subscription to an owner's changes. Events are
// delivered to the callback in publish order on a dedicated goroutine.
type Subscription struct {
	ID      ulid.ULID
	OwnerID string

	hub     *Hub
	onEvent func(Event)
	events  chan Event
	done    chan struct{}

	once sync.Once
	err  error
}

// Subscribe opens a subscription scoped to ownerID. The callback is never
// invoked for other owners' events, nor after the subscription ends.
func (h *Hub) Subscribe(ownerID string, onEvent func(Event)) *Subscription {
	s := &Subscription{
		ID:      ulid.Make(),
		OwnerID: ownerID,
		hub:     h,
		onEvent: onEvent,
		events:  make(chan Event, h.bufferSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.end(ErrHubClosed)
		return s
	}
	owned, ok := h.subs[ownerID]
	if !ok {
		owned = make(map[ulid.ULID]*Subscription)
		h.subs[ownerID] = owned
	}
	owned[s.ID] = s
	h.mu.Unlock()

	go s.run()

	h.log.Debug("feed subscription opened",
		logger.String("owner_id", ownerID),
		logger.String("subscription", s.ID.String()))
	return s
}

// Unsubscribe releases s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	h.remove(s)
	h.mu.Unlock()
	s.end(nil)
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscription) {
	owned := h.subs[s.OwnerID]
	if owned == nil {
		return
	}
	delete(owned, s.ID)
	if len(owned) == 0 {
		delete(h.subs, s.OwnerID)
	}
}

// Publish delivers ev to every subscription of ownerID.
func (h *Hub) Publish(ownerID string, ev Event) {
	var overflowed []*Subscription

	h.mu.Lock()
	for _, s := range h.subs[ownerID] {
		select {
		case s.events <- ev:
		default:
			h.remove(s)
			overflowed = append(overflowed, s)
		}
	}
	h.mu.Unlock()

	for _, s := range overflowed {
		h.log.Warn("dropping slow feed subscriber",
			logger.String("owner_id", ownerID),
			logger.String("subscription", s.ID.String()))
		s.end(ErrSlowConsumer)
	}
}

// Forward registers fn to receive every locally originated event.
func (h *Hub) Forward(fn Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarders = append(h.forwarders, fn)
}

// publishLocal publishes an event produced by this process.
func (h *Hub) publishLocal(ownerID string, ev Event) {
	h.Publish(ownerID, ev)

	h.mu.Lock()
	forwarders := append([]Forwarder(nil), h.forwarders...)
	h.mu.Unlock()
	for _, fn := range forwarders {
		fn(ownerID, ev)
	}
}

// Attach turns database writes into feed events.
func (h *Hub) Attach(database *db.DB) {
	listener := func(event db.Event) error {
		ev, ownerID, ok := FromDB(event)
		if !ok {
			return nil
		}
		h.publishLocal(ownerID, ev)
		return nil
	}
	database.RegisterEventListener(db.OnBookmarkCreatedEvent, listener)
	database.RegisterEventListener(db.OnBookmarkUpdatedEvent, listener)
	database.RegisterEventListener(db.OnBookmarkDeletedEvent, listener)
}

// Subscribers returns the number of open subscriptions for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

// Close ends every subscription with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, owned := range h.subs {
		for _, s := range owned {
			all = append(all, s)
		}
	}
	h.subs = make(map[string]map[ulid.ULID]*Subscription)
	h.mu.Unlock()

	for _, s := range all {
		s.end(ErrHubClosed)
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			// done may have closed while we were waiting; nothing is
			// delivered after teardown.
			select {
			case <-s.done:
				return
			default:
			}
			s.onEvent(ev)
		}
	}
}

func (s *Subscription) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Done is closed when the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended: nil after Close, ErrSlowConsumer or
// ErrHubClosed otherwise. It must only be read after Done is closed.
func (s *Subscription) Err() error {
	return s.err
}
