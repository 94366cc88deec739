package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/auth"
	"github.com/driftlinehq/driftline/internal/realtime"
	"github.com/driftlinehq/driftline/internal/rooms"
)

// RoomHandler exposes room state to the operator console: reading a room and
// toggling it between bot and live handling.
type RoomHandler struct {
	rooms       *rooms.Service
	broadcaster realtime.Broadcaster
	logger      *slog.Logger
}

func NewRoomHandler(log *slog.Logger, roomService *rooms.Service, broadcaster realtime.Broadcaster) *RoomHandler {
	return &RoomHandler{
		rooms:       roomService,
		broadcaster: broadcaster,
		logger:      log.With(slog.String("handler", "rooms")),
	}
}

func (h *RoomHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/rooms/:room_id", h.Get)
	e.PATCH("/api/v1/rooms/:room_id/live", h.SetLive)
}

type setLiveRequest struct {
	Live bool `json:"live"`
}

// Get returns the room and its mode flags.
func (h *RoomHandler) Get(c echo.Context) error {
	room, err := h.loadAuthorizedRoom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

// SetLive toggles human handling for a room. Flipping back to false returns
// the room to the bot; the notified flag stays set either way.
func (h *RoomHandler) SetLive(c echo.Context) error {
	room, err := h.loadAuthorizedRoom(c)
	if err != nil {
		return err
	}

	var req setLiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.rooms.SetLive(c.Request().Context(), room.ID, req.Live); err != nil {
		h.logger.Error("set live failed", slog.String("room_id", room.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	room.Live = req.Live

	h.broadcaster.Publish(room.ID, realtime.Envelope{
		Event:  realtime.EventLive,
		RoomID: room.ID,
		Data:   map[string]bool{"live": req.Live},
	})

	return c.JSON(http.StatusOK, room)
}

// loadAuthorizedRoom resolves the room and checks it belongs to the
// authenticated tenant.
func (h *RoomHandler) loadAuthorizedRoom(c echo.Context) (rooms.Room, error) {
	roomID := strings.TrimSpace(c.Param("room_id"))
	if roomID == "" {
		return rooms.Room{}, echo.NewHTTPError(http.StatusBadRequest, "room id is required")
	}

	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return rooms.Room{}, err
	}

	room, err := h.rooms.Get(c.Request().Context(), roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return rooms.Room{}, echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		h.logger.Error("load room failed", slog.String("room_id", roomID), slog.Any("error", err))
		return rooms.Room{}, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if room.TenantID != tenantID {
		return rooms.Room{}, echo.NewHTTPError(http.StatusForbidden, "room belongs to another tenant")
	}
	return room, nil
}
