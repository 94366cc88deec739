package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/driftlinehq/driftline/internal/engine"
)

func TestChatInvalidInputReturnsFixedFallback(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.NewService(log, nil, nil, nil, nil, nil, nil, nil)
	h := NewChatHandler(log, eng)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/not-a-uuid/chat",
		strings.NewReader(`{"content":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("tenant_id")
	c.SetParamValues("not-a-uuid")

	err := h.Chat(c)
	httpErr, ok := err.(*echo.HTTPError)
	if assert.True(t, ok, "expected an echo.HTTPError, got %v", err) {
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		// The widget shows this body verbatim; raw validation errors
		// must never leak into it.
		assert.Equal(t, invalidInputFallback, httpErr.Message)
	}
}
