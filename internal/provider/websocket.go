package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LocMock/internal/model"
	"LocMock/internal/parser"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// WebSocket broadcasts every fix to connected websocket clients. It is also
// the http.Handler clients connect to.
type WebSocket struct {
	name     string
	identity model.Identity
	parser   parser.Parser
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	active  bool
}

// NewWebSocket creates a websocket hub encoding fixes with p.
func NewWebSocket(name string, identity model.Identity, p parser.Parser, logger *zap.Logger) *WebSocket {
	return &WebSocket{
		name:     name,
		identity: identity,
		parser:   p,
		logger:   logger.Named("ws").With(zap.String("provider", name)),
		clients:  map[*websocket.Conn]bool{},
	}
}

// Name implements Provider.
func (h *WebSocket) Name() string { return h.name }

// Identity implements Provider.
func (h *WebSocket) Identity() model.Identity { return h.identity }

// Register starts forwarding fixes to clients.
func (h *WebSocket) Register(ctx context.Context) error {
	h.mu.Lock()
	h.active = true
	h.mu.Unlock()
	return nil
}

// Unregister stops forwarding fixes; clients stay connected.
func (h *WebSocket) Unregister(ctx context.Context) error {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
	return nil
}

// SetLocation broadcasts the encoded fix. Clients that fail to receive it are dropped.
func (h *WebSocket) SetLocation(ctx context.Context, fix model.Fix) error {
	msg, err := h.parser.EncodeFix(fix)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return ErrNotRegistered
	}
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			h.logger.Debug("dropping client", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
			delete(h.clients, c)
			_ = c.Close()
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *WebSocket) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades HTTP to websocket and registers the client for broadcasts.
func (h *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	go func() {
		defer func() {
			h.mu.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every client.
func (h *WebSocket) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}
