package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeguardian/internal/logging"
)

const (
	broadcastBuffer = 100
	replayLimit     = 50
	writeDeadline   = 10 * time.Second
)

// WSMessage is the envelope sent to dashboard clients.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	ID        string      `json:"id,omitempty"`
}

// client serializes writes to one connection; gorilla allows a single
// concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans service events out to every connected dashboard client.
type Hub struct {
	clients   map[*client]bool
	mutex     sync.RWMutex
	broadcast chan []byte
	upgrader  websocket.Upgrader

	replayMu sync.Mutex
	replay   [][]byte
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, broadcastBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Dashboard is served from the same binary
				return true
			},
		},
		replay: make([][]byte, 0, replayLimit),
	}
}

// Run delivers queued messages until ctx is cancelled, then closes all
// client connections.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case payload := <-h.broadcast:
			h.deliver(payload)
		}
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mutex.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mutex.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			logging.L_warn("⚠️  Dropping websocket client", "error", err)
			h.remove(c)
		}
	}
}

// PublishEvent queues an event for broadcast. It never blocks on slow
// clients: a full queue drops the event.
func (h *Hub) PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	payload, err := json.Marshal(WSMessage{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal websocket message: %w", err)
	}
	h.remember(payload)

	select {
	case h.broadcast <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("broadcast queue full, dropped %s event", eventType)
	}
}

// remember keeps the latest messages for clients that connect later.
func (h *Hub) remember(payload []byte) {
	h.replayMu.Lock()
	defer h.replayMu.Unlock()
	h.replay = append(h.replay, payload)
	if len(h.replay) > replayLimit {
		h.replay = h.replay[len(h.replay)-replayLimit:]
	}
}

func (h *Hub) replaySnapshot() [][]byte {
	h.replayMu.Lock()
	defer h.replayMu.Unlock()
	out := make([][]byte, len(h.replay))
	copy(out, h.replay)
	return out
}

// HandleConnection upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L_error("❌ Failed to upgrade websocket connection", "error", err)
		return
	}
	c := &client{conn: conn}

	h.mutex.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mutex.Unlock()
	logging.L_info("🔗 Dashboard client connected", "remote", r.RemoteAddr, "clients", total)

	defer func() {
		h.remove(c)
		logging.L_info("Dashboard client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L_warn("⚠️  Websocket read error", "error", err)
			}
			return
		}

		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			logging.L_debug("Ignoring malformed websocket message", "error", err)
			continue
		}
		msgType, _ := data["type"].(string)

		switch msgType {
		case "ping":
			h.reply(c, "pong", map[string]interface{}{"status": "ok"})
		case "client_ready":
			for _, payload := range h.replaySnapshot() {
				if err := c.write(payload); err != nil {
					return
				}
			}
		}
	}
}

func (h *Hub) reply(c *client, msgType string, data interface{}) {
	payload, err := json.Marshal(WSMessage{Type: msgType, Timestamp: time.Now(), Data: data})
	if err != nil {
		return
	}
	if err := c.write(payload); err != nil {
		logging.L_warn("⚠️  Failed to reply to websocket client", "type", msgType, "error", err)
	}
}

func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mutex.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
