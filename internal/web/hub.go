package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/elys-network/lpvalidator/internal/logger"
)

var hubLogger = logger.GetForComponent("web_hub")

// Hub fans out round-lifecycle events to every connected dashboard
// client. The scheduler holds a Hub behind the narrower Broadcaster
// interface and never touches websocket.Conn directly.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub builds an empty Hub. Origin checking is left permissive since
// the dashboard is typically served same-origin or behind a reverse
// proxy that already restricts access.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast sends event to every connected client, dropping any that
// error on write.
func (h *Hub) Broadcast(event []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ServeWS upgrades the request and registers the connection until the
// client disconnects. Clients are not expected to send anything; this
// just drains and discards incoming frames to keep the connection alive.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLogger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
