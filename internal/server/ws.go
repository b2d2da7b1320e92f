package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"candlecast/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Subscribers are browsers and bots alike; origin policy is not
	// this service's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber adapts one websocket connection to the feed subscriber
// contract. Sends carry a write deadline so a stalled peer fails fast
// and gets dropped instead of delaying the broadcast loop.
type wsSubscriber struct {
	id      uuid.UUID
	conn    *websocket.Conn
	timeout time.Duration

	mu sync.Mutex
}

func (s *wsSubscriber) ID() uuid.UUID { return s.id }

func (s *wsSubscriber) Send(ev feed.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// handleSubscribe upgrades the connection, delivers the one-time
// snapshot, and keeps the subscriber in the live fan-out set until the
// connection drops.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, ok := s.feeds.Get(q.Get("symbol"), q.Get("interval"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown series")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &wsSubscriber{
		id:      uuid.New(),
		conn:    conn,
		timeout: s.writeTimeout,
	}

	if err := target.Subscribe(r.Context(), sub); err != nil {
		s.logger.Warn("subscription failed", zap.String("id", sub.id.String()), zap.Error(err))
		_ = conn.Close()
		return
	}

	// Drain the connection to detect disconnects; subscribers do not
	// speak to us after connecting.
	go func() {
		defer func() {
			target.Unsubscribe(sub.id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
