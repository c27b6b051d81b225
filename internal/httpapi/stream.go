package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ridgeline-robotics/conenav/pkg/logging"
)

// StatusStream broadcasts the navigator's latched status to connected
// debug/ops clients. It is read-only: nothing received from a client is
// ever turned into a navigator command.
type StatusStream struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan Status
	provider StatusProvider
	upgrader websocket.Upgrader
	log      *logging.Entry
}

// NewStatusStream builds a stream over the given status provider.
func NewStatusStream(provider StatusProvider) *StatusStream {
	return &StatusStream{
		clients:  make(map[*websocket.Conn]chan Status),
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logging.For("httpapi"),
	}
}

// HandleWebSocket upgrades the connection and starts its write pump.
func (s *StatusStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("status stream upgrade failed")
		return
	}

	send := make(chan Status, 8)
	s.mu.Lock()
	s.clients[conn] = send
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	go s.writePump(ctx, conn, send)
	go s.readPump(cancel, conn)
}

// Broadcast pushes the navigator's current status to every connected
// client, dropping the message for any client whose buffer is full.
func (s *StatusStream) Broadcast(status Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- status:
		default:
		}
	}
}

func (s *StatusStream) writePump(ctx context.Context, conn *websocket.Conn, send chan Status) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer s.unregister(conn)

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case status := <-send:
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, mustJSON(s.provider.Status())); err != nil {
				return
			}
		}
	}
}

func (s *StatusStream) readPump(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	defer conn.Close()
	conn.SetReadLimit(512)
	for {
		// Clients never send commands here; drain and discard to keep the
		// connection alive and notice disconnects.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *StatusStream) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[conn]; ok {
		close(ch)
		delete(s.clients, conn)
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
