package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub is the in-process Broadcaster: a registry of websocket connections
// grouped by room id. Rooms with no subscribers drop events silently; the
// transcript store remains the source of truth.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	rooms    map[string]map[string]*Connection // roomID -> connID -> connection
	connRoom map[string]string                 // connID -> roomID
}

// NewHub constructs an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger:   log.With(slog.String("component", "realtime")),
		rooms:    make(map[string]map[string]*Connection),
		connRoom: make(map[string]string),
	}
}

// Subscribe registers the connection as a viewer of the room and starts its
// write loop.
func (h *Hub) Subscribe(roomID string, conn *Connection) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[roomID] = room
	}
	room[conn.ID] = conn
	h.connRoom[conn.ID] = roomID
	h.mu.Unlock()

	conn.Start()
}

// Unsubscribe removes the connection from its room.
func (h *Hub) Unsubscribe(conn *Connection) {
	h.mu.Lock()
	roomID, ok := h.connRoom[conn.ID]
	if ok {
		delete(h.connRoom, conn.ID)
		if room := h.rooms[roomID]; room != nil {
			delete(room, conn.ID)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()
}

// Publish delivers the event to every current subscriber of the room.
// Failed sends are logged and dropped; there is no retry.
func (h *Hub) Publish(roomID string, event Envelope) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal event failed", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	room := h.rooms[roomID]
	conns := make([]*Connection, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			h.logger.Debug("drop subscriber", slog.String("room_id", roomID), slog.Any("error", err))
		}
	}
}

// SubscriberCount reports how many viewers a room currently has.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Close terminates every tracked connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connRoom))
	for _, room := range h.rooms {
		for _, conn := range room {
			conns = append(conns, conn)
		}
	}
	h.rooms = make(map[string]map[string]*Connection)
	h.connRoom = make(map[string]string)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "hub shutdown")
	}
}
