package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/core/view"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// ErrFeedClosedByServer means the server ended the feed; the consumer must
// reload before trusting its collection again.
var ErrFeedClosedByServer = errors.New("client: feed closed by server")

// FeedSubscription is one websocket connection to the change feed. It does
// not reconnect.
type FeedSubscription struct {
	conn *websocket.Conn
	log  logger.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	err    error
}

// Subscribe dials the feed and forwards each event to onEvent, in order, on
// a dedicated goroutine. Malformed messages are dropped.
func (c *Client) Subscribe(ctx context.Context, ownerID string, onEvent func(feed.Event)) (view.Subscription, error) {
	return c.SubscribeFeed(ctx, onEvent)
}

// SubscribeFeed is Subscribe with the concrete subscription type, for callers
// that want to watch for the feed ending.
func (c *Client) SubscribeFeed(ctx context.Context, onEvent func(feed.Event)) (*FeedSubscription, error) {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimRight(u.Path, "/") + "/api/feed"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	s := &FeedSubscription{conn: conn, log: c.log, done: make(chan struct{})}
	go s.read(onEvent)
	return s, nil
}

func (s *FeedSubscription) read(onEvent func(feed.Event)) {
	var err error
	defer func() {
		s.mu.Lock()
		if !s.closed {
			s.err = err
		}
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		var data []byte
		_, data, err = s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.log.Info("feed closed by server", logger.Int("code", ce.Code), logger.String("reason", ce.Text))
				err = ErrFeedClosedByServer
			}
			return
		}

		ev, decodeErr := feed.Decode(data)
		if decodeErr != nil {
			s.log.Debug("dropping malformed feed message", logger.Error(decodeErr))
			continue
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		onEvent(ev)
	}
}

// Close stops delivery and releases the connection. Safe to call twice.
func (s *FeedSubscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.Close()
	<-s.done
}

// Done is closed once no more events will be delivered.
func (s *FeedSubscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the feed ended on its own; nil after Close. Read it after
// Done is closed.
func (s *FeedSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
