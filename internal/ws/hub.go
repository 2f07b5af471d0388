// internal/ws/hub.go

// Package ws is the websocket transport: it authenticates connections,
// forwards client commands to the matchmaker and orchestrator, and pushes
// per-viewer state back out. A dropped connection opens the owning session's
// reconnect grace window.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

type client struct {
	conn   *websocket.Conn
	userID uuid.UUID

	mu        sync.Mutex
	sessionID uuid.UUID // the session this connection is playing, or Nil
}

func (c *client) setSession(id uuid.UUID) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *client) session() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Hub tracks the live connection per user. A reconnecting user replaces
// their old connection.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	log     *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*client),
		log:     logrus.WithField("component", "ws"),
	}
}

// register installs a new connection, closing any previous one for the same
// user. Returns the client wrapper.
func (h *Hub) register(userID uuid.UUID, conn *websocket.Conn) *client {
	c := &client{conn: conn, userID: userID}
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = c
	h.mu.Unlock()
	if old != nil {
		old.conn.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
	return c
}

// unregister drops the client if it is still the user's current connection.
// Reports whether it was.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

func (h *Hub) get(userID uuid.UUID) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// SendToUser pushes one message to a user's live connection. Users without a
// connection are skipped; they catch up from the snapshot on reconnect.
func (h *Hub) SendToUser(userID uuid.UUID, msg any) {
	c := h.get(userID)
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Debug("push failed")
	}
}

// SetUserSession records which session a user's connection belongs to, so a
// later disconnect opens that session's grace window.
func (h *Hub) SetUserSession(userID, sessionID uuid.UUID) {
	if c := h.get(userID); c != nil {
		c.setSession(sessionID)
	}
}
