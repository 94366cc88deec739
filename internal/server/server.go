// Package server provides the HTTP server and Echo setup for the API.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/driftlinehq/driftline/internal/auth"
)

// Server is the HTTP server (Echo) with JWT middleware and registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// NewServer builds the Echo server with recovery, request logging, JWT auth,
// and the given handlers. The widget-facing surface is public; only the
// operator console routes require a token.
func NewServer(log *slog.Logger, addr, jwtSecret string,
	handlers ...Handler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, publicRoute))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// publicRoute skips JWT auth for liveness checks and the anonymous widget
// surface: the tenant bootstrap lookup, sending messages, reading the
// transcript and subscribing to the room stream.
func publicRoute(c echo.Context) bool {
	path := c.Request().URL.Path
	if path == "/ping" || path == "/health" {
		return true
	}
	if path == "/api/v1/tenants/lookup" {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/tenants/") && strings.HasSuffix(path, "/chat") {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/rooms/") {
		if strings.HasSuffix(path, "/messages") || strings.HasSuffix(path, "/ws") {
			return true
		}
	}
	return false
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
