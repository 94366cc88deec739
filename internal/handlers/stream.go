package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/realtime"
	"github.com/driftlinehq/driftline/internal/rooms"
)

const streamPongWait = 60 * time.Second

// The widget is embedded on tenant sites, so any origin may connect.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamHandler upgrades room subscribers to websocket connections fed by
// the in-process hub.
type StreamHandler struct {
	hub    *realtime.Hub
	rooms  *rooms.Service
	logger *slog.Logger
}

func NewStreamHandler(log *slog.Logger, hub *realtime.Hub, roomService *rooms.Service) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		rooms:  roomService,
		logger: log.With(slog.String("handler", "stream")),
	}
}

func (h *StreamHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/rooms/:room_id/ws", h.Subscribe)
}

// Subscribe attaches the caller to the room's event stream until the socket
// closes.
func (h *StreamHandler) Subscribe(c echo.Context) error {
	roomID := strings.TrimSpace(c.Param("room_id"))
	if roomID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room id is required")
	}
	if _, err := h.rooms.Get(c.Request().Context(), roomID); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		h.logger.Error("load room failed", slog.String("room_id", roomID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	ws, err := streamUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("room_id", roomID), slog.Any("error", err))
		return nil
	}

	conn := realtime.NewConnection(ws)
	h.hub.Subscribe(roomID, conn)
	h.logger.Debug("subscriber joined", slog.String("room_id", roomID))

	go h.readLoop(roomID, conn, ws)
	return nil
}

// readLoop drains inbound frames to surface pongs and disconnects. The
// stream is one-way; anything the client sends is discarded.
func (h *StreamHandler) readLoop(roomID string, conn *realtime.Connection, ws *websocket.Conn) {
	defer func() {
		h.hub.Unsubscribe(conn)
		conn.Close(websocket.CloseNormalClosure, "")
		h.logger.Debug("subscriber left", slog.String("room_id", roomID))
	}()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
