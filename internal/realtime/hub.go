package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/pkg/logger"
)

// Conn is a live client connection the hub can deliver events to. The
// websocket implementation lives in conn.go; tests substitute fakes.
type Conn interface {
	// Send enqueues an event for delivery. It must not block.
	Send(event string, data any)
	// Close tears the connection down.
	Close()
}

// Hub groups connections into session-scoped rooms and fans events out to
// them. Broadcasts issued by one coordinator action are observed by every
// room member in issue order: the coordinator serialises actions per session
// and the hub enqueues each broadcast to every member before returning.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[Conn]struct{}
	members map[Conn]string
	log     *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[Conn]struct{}),
		members: make(map[Conn]string),
		log:     logger.WithModule("realtime"),
	}
}

// Join subscribes a connection to a session's room. Idempotent; a connection
// belongs to at most one room, so joining a second session moves it.
func (h *Hub) Join(conn Conn, sessionID string) {
	if conn == nil || sessionID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.members[conn]; ok {
		if current == sessionID {
			return
		}
		h.removeLocked(conn, current)
	}

	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[Conn]struct{})
	}
	h.rooms[sessionID][conn] = struct{}{}
	h.members[conn] = sessionID
}

// Leave removes a connection from its room, if any.
func (h *Hub) Leave(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionID, ok := h.members[conn]; ok {
		h.removeLocked(conn, sessionID)
	}
}

func (h *Hub) removeLocked(conn Conn, sessionID string) {
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	delete(h.members, conn)
}

// Broadcast delivers an event to every connection in the session's room,
// including the sender if subscribed. Membership is snapshotted first and
// delivery happens outside the lock: a slow receiver may tear itself down
// during Send, and teardown re-enters the hub to leave the room.
func (h *Hub) Broadcast(sessionID, event string, data any) {
	h.mu.RLock()
	room, ok := h.rooms[sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	conns := make([]Conn, 0, len(room))
	for conn := range room {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Send(event, data)
	}
}

// CloseRoom evicts every connection from a session's room. Used after a
// session-closed broadcast, when the room ceases to matter.
func (h *Hub) CloseRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}

	for conn := range room {
		delete(h.members, conn)
	}
	delete(h.rooms, sessionID)

	h.log.Debug("room closed", zap.String("session_id", sessionID))
}

// RoomSize reports the number of connections subscribed to a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
