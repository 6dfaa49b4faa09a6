package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/statorio/stator/pkg/logging"
)

// wsFrame is the wire shape sent to websocket clients.
type wsFrame struct {
	Address string `json:"address"`
	Event   Event  `json:"event"`
}

type wsSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// WebsocketBroadcaster fans events out to connected websocket
// clients. Each client gets a bounded send buffer; events are dropped
// for clients that cannot keep up rather than blocking the publisher.
type WebsocketBroadcaster struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
	log      logging.Logger
}

// NewWebsocketBroadcaster creates a broadcaster with no clients.
func NewWebsocketBroadcaster(log logging.Logger) *WebsocketBroadcaster {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &WebsocketBroadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*wsSession]struct{}),
		log:      log,
	}
}

// HandleWebSocket upgrades the request and registers the client until
// it disconnects.
func (b *WebsocketBroadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	session := &wsSession{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.sessions[session] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(session)
	go b.readLoop(session)
}

func (b *WebsocketBroadcaster) writeLoop(s *wsSession) {
	for {
		select {
		case data := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.remove(s)
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop discards client frames; its job is to notice the close.
func (b *WebsocketBroadcaster) readLoop(s *wsSession) {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			b.remove(s)
			return
		}
	}
}

func (b *WebsocketBroadcaster) remove(s *wsSession) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
	s.close()
}

// ClientCount reports the number of connected clients.
func (b *WebsocketBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *WebsocketBroadcaster) Dispatch(ctx context.Context, event Event) error {
	data, err := json.Marshal(wsFrame{Address: event.Address(), Event: event})
	if err != nil {
		return err
	}

	b.mu.RLock()
	sessions := make([]*wsSession, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.send <- data:
		case <-s.done:
		default:
			b.log.Warnf("dropping %s event for slow websocket client", event.Address())
		}
	}
	return nil
}

// Close disconnects every client.
func (b *WebsocketBroadcaster) Close() error {
	b.mu.Lock()
	sessions := make([]*wsSession, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[*wsSession]struct{})
	b.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	return nil
}
