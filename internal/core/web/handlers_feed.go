package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/logger"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedPingInterval = feedPongTimeout * 9 / 10
)

// Close codes sent when the server ends a feed.
const (
	CloseSlowConsumer = 4000
	CloseShutdown     = websocket.CloseGoingAway
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleFeed streams the signed-in owner's change events as JSON text
// messages, one event per message, in commit order. The subscription is
// opened before the upgrade so no write committed after the handshake is
// missed.
func (ws *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	log := ws.log.With(logger.String("owner_id", s.OwnerID))

	// The hub's per-subscription queue absorbs bursts; out only hands events
	// to the single writer below.
	out := make(chan feed.Event)
	stop := make(chan struct{})
	sub := ws.hub.Subscribe(s.OwnerID, func(ev feed.Event) {
		select {
		case out <- ev:
		case <-stop:
		}
	})
	defer sub.Close()
	defer close(stop)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("feed upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends data; reading keeps control frames flowing and
	// notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	log.Debug("feed opened", logger.String("subscription", sub.ID.String()))
	for {
		select {
		case <-gone:
			log.Debug("feed closed by client")
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("feed write failed", logger.Error(err))
				return
			}
		case <-sub.Done():
			code, reason := CloseShutdown, "server shutting down"
			if errors.Is(sub.Err(), feed.ErrSlowConsumer) {
				code, reason = CloseSlowConsumer, "fell behind, reload required"
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(feedWriteTimeout))
			log.Info("feed ended by server", logger.Error(sub.Err()))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		}
	}
}
