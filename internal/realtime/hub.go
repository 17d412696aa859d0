// Package realtime pushes notification events to connected clients over
// WebSockets. Each connection is registered under the authenticated user id
// and only receives that user's events.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"go.uber.org/zap"
)

// Event names
const (
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
)

const (
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 512
	bufferSize = 1024
)

// Event is the message written to a subscriber. ID is the primary id of the
// changed notification so clients can update their copy in place.
type Event struct {
	Event        string               `json:"event"`
	ID           string               `json:"id"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// NotificationEvent builds an event for n
func NotificationEvent(name string, n *models.Notification) Event {
	return Event{Event: name, ID: n.ID, Notification: n}
}

// Connection wraps a websocket with its owner and liveness data
type Connection struct {
	conn   *websocket.Conn
	userID string

	writeMu  sync.Mutex
	seenMu   sync.Mutex
	lastSeen time.Time
}

func (c *Connection) touch() {
	c.seenMu.Lock()
	c.lastSeen = time.Now()
	c.seenMu.Unlock()
}

func (c *Connection) idle() time.Duration {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	return time.Since(c.lastSeen)
}

func (c *Connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub tracks live connections per user
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Add registers conn for userID
func (h *Hub) Add(userID string, conn *websocket.Conn) *Connection {
	c := &Connection{conn: conn, userID: userID, lastSeen: time.Now()}

	h.mu.Lock()
	if _, ok := h.connections[userID]; !ok {
		h.connections[userID] = make(map[*Connection]struct{})
	}
	h.connections[userID][c] = struct{}{}
	total := len(h.connections[userID])
	h.mu.Unlock()

	h.logger.Debug("websocket connected", zap.String("user_id", userID), zap.Int("connections", total))
	return c
}

// Remove unregisters and closes c. Calling it twice is harmless.
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	if conns, ok := h.connections[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.connections, c.userID)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close()
	h.logger.Debug("websocket disconnected", zap.String("user_id", c.userID))
}

// Count returns the number of live connections for userID
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func (h *Hub) snapshot(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Connection, 0, len(h.connections[userID]))
	for c := range h.connections[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Publish writes event to every connection of userID. Connections that fail
// the write are dropped.
func (h *Hub) Publish(userID string, event Event) {
	for _, c := range h.snapshot(userID) {
		if err := c.writeJSON(event); err != nil {
			h.logger.Warn("websocket send failed",
				zap.String("user_id", userID),
				zap.String("event", event.Event),
				zap.Error(err))
			h.Remove(c)
		}
	}
}

// ServeWS upgrades the request and blocks reading from the client until the
// connection closes. userID must already be authenticated.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := h.Add(userID, conn)
	defer h.Remove(c)

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		c.touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
		c.touch()
	}
}

// Heartbeat pings every connection each interval and drops those that have
// not answered within two intervals. It returns when ctx is done.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mu.RLock()
		var all []*Connection
		for _, conns := range h.connections {
			for c := range conns {
				all = append(all, c)
			}
		}
		h.mu.RUnlock()

		for _, c := range all {
			if c.idle() > 2*interval {
				h.Remove(c)
				continue
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				h.Remove(c)
			}
		}
	}
}
