package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/engine"
	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/transcript"
)

// providerFallback is shown to visitors when reply generation fails. Their
// message is already stored by then.
const providerFallback = "Sorry, something went wrong on our side. Please try again in a moment."

// invalidInputFallback is shown when the request itself cannot be handled.
// Raw validation errors never reach the widget.
const invalidInputFallback = "Sorry, we couldn't process that message. Please refresh the chat and try again."

// ChatHandler exposes the public widget endpoint that feeds visitor messages
// into the conversation engine.
type ChatHandler struct {
	engine *engine.Service
	logger *slog.Logger
}

func NewChatHandler(log *slog.Logger, engineService *engine.Service) *ChatHandler {
	return &ChatHandler{
		engine: engineService,
		logger: log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/tenants/:tenant_id/chat", h.Chat)
}

// TurnRequest is the widget's message payload.
type TurnRequest struct {
	RoomID    string        `json:"room_id"`
	NewThread bool          `json:"new_thread"`
	Image     bool          `json:"image"`
	Content   string        `json:"content"`
	History   []HistoryTurn `json:"history"`
}

// HistoryTurn is one prior message as the widget rendered it.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResponse carries the room state and the assistant reply, if any.
type TurnResponse struct {
	RoomID string              `json:"room_id"`
	Live   bool                `json:"live"`
	Reply  *transcript.Message `json:"reply,omitempty"`
}

func (h *ChatHandler) Chat(c echo.Context) error {
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, invalidInputFallback)
	}

	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidInputFallback)
	}

	history := make([]reply.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, reply.Turn{Role: t.Role, Content: t.Content})
	}

	result, err := h.engine.ProcessTurn(c.Request().Context(), engine.TurnRequest{
		TenantID:  tenantID,
		RoomID:    req.RoomID,
		NewThread: req.NewThread,
		Image:     req.Image,
		Content:   req.Content,
		History:   history,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidInput):
			return echo.NewHTTPError(http.StatusBadRequest, invalidInputFallback)
		case errors.Is(err, engine.ErrProviderFailure):
			// Keep the room id so the widget can continue the thread.
			return c.JSON(http.StatusBadGateway, TurnResponse{
				RoomID: result.RoomID,
				Reply: &transcript.Message{
					RoomID:  result.RoomID,
					Role:    transcript.RoleAssistant,
					Content: providerFallback,
				},
			})
		default:
			h.logger.Error("process turn failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusOK, TurnResponse{
		RoomID: result.RoomID,
		Live:   result.Live,
		Reply:  result.Reply,
	})
}
