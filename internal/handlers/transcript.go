package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/rooms"
	"github.com/driftlinehq/driftline/internal/transcript"
)

// TranscriptHandler serves room transcripts to the widget and the operator
// console, and lets operators mark visitor messages as seen.
type TranscriptHandler struct {
	transcripts *transcript.Service
	rooms       *rooms.Service
	logger      *slog.Logger
}

func NewTranscriptHandler(log *slog.Logger, transcriptService *transcript.Service, roomService *rooms.Service) *TranscriptHandler {
	return &TranscriptHandler{
		transcripts: transcriptService,
		rooms:       roomService,
		logger:      log.With(slog.String("handler", "transcript")),
	}
}

func (h *TranscriptHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/rooms/:room_id/messages", h.List)
	e.POST("/api/v1/rooms/:room_id/seen", h.MarkSeen)
}

// List returns the room transcript in chronological order.
func (h *TranscriptHandler) List(c echo.Context) error {
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

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	messages, err := h.transcripts.List(c.Request().Context(), roomID, limit)
	if err != nil {
		h.logger.Error("list messages failed", slog.String("room_id", roomID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"room_id":  roomID,
		"messages": messages,
	})
}

// MarkSeen flags every visitor message in the room as seen by an operator.
func (h *TranscriptHandler) MarkSeen(c echo.Context) error {
	roomID := strings.TrimSpace(c.Param("room_id"))
	if roomID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room id is required")
	}
	if err := h.transcripts.MarkSeen(c.Request().Context(), roomID); err != nil {
		h.logger.Error("mark seen failed", slog.String("room_id", roomID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.NoContent(http.StatusNoContent)
}
