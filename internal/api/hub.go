package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/slatehq/slatebox/internal/codec"
	"github.com/slatehq/slatebox/internal/loader"
)

const publishTimeout = 2 * time.Second

// Hub fans loader events out to websocket subscribers. The stream is
// server to client only.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

var _ loader.Sink = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Publish sends the event to every subscriber. A write that fails or
// stalls past the timeout drops its connection rather than the event
// stream.
func (h *Hub) Publish(ev loader.Event) {
	b, err := codec.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := conn.Write(ctx, websocket.MessageText, b)
		cancel()
		if err != nil {
			slog.Debug("dropping event subscriber", "error", err)
			conn.Close(websocket.StatusPolicyViolation, "write timeout")
			delete(h.clients, conn)
		}
	}
}

// Handler upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) Handler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	if !h.add(conn) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	readCtx := conn.CloseRead(c.Request.Context())
	<-readCtx.Done()

	h.remove(conn)
	conn.Close(websocket.StatusNormalClosure, "")
}

// Shutdown disconnects every subscriber and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for conn := range h.clients {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	slog.Debug("event hub shutdown")
}

// ClientCount reports active subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[conn] = struct{}{}
	slog.Debug("event subscriber connected", "active", len(h.clients))
	return true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	slog.Debug("event subscriber disconnected", "active", len(h.clients))
}
