package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bslive-dev/bslive/lib/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans ClientEvents out to every connected WebSocket client. It is the
// "broadcast sender" a ServerActor stores and clones into every handler.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan ClientEvent
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan ClientEvent)}
}

func (h *hub) broadcast(ev ClientEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			logging.With("component", "server.hub").Warn("dropping slow websocket client", "remote", conn.RemoteAddr())
		}
	}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.With("component", "server.hub").Warn("websocket upgrade failed", "err", err)
		return
	}

	ch := make(chan ClientEvent, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))

	// Drain/discard anything the client sends (the protocol is server-push
	// only); this keeps the read pump alive so the client's close frame and
	// pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// clientCount reports the number of connected clients, for /__bs_api/me.
func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
