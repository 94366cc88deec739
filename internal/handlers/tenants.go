package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/tenants"
)

// TenantHandler exposes the widget bootstrap lookup. The embed script only
// knows the page's domain; it resolves the tenant id here before opening a
// chat.
type TenantHandler struct {
	tenants *tenants.Service
	logger  *slog.Logger
}

func NewTenantHandler(log *slog.Logger, tenantService *tenants.Service) *TenantHandler {
	return &TenantHandler{
		tenants: tenantService,
		logger:  log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/tenants/lookup", h.Lookup)
}

type tenantLookupResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lookup resolves a tenant by domain. Only the id and display name leak to
// the anonymous widget; persona configuration stays private.
func (h *TenantHandler) Lookup(c echo.Context) error {
	domain := strings.TrimSpace(c.QueryParam("domain"))
	if domain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "domain is required")
	}

	tenant, err := h.tenants.GetByDomain(c.Request().Context(), domain)
	if err != nil {
		if errors.Is(err, tenants.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		h.logger.Error("tenant lookup failed", slog.String("domain", domain), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, tenantLookupResponse{ID: tenant.ID, Name: tenant.Name})
}
