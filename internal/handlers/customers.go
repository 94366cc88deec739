package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/driftlinehq/driftline/internal/auth"
	"github.com/driftlinehq/driftline/internal/customers"
)

// CustomerHandler exposes qualification progress to the operator console.
type CustomerHandler struct {
	customers *customers.Service
	logger    *slog.Logger
}

func NewCustomerHandler(log *slog.Logger, customerService *customers.Service) *CustomerHandler {
	return &CustomerHandler{
		customers: customerService,
		logger:    log.With(slog.String("handler", "customers")),
	}
}

func (h *CustomerHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/customers/:customer_id/answers", h.ListAnswers)
}

// ListAnswers returns every snapshotted question for the customer, answered
// or not, ordered by question text.
func (h *CustomerHandler) ListAnswers(c echo.Context) error {
	customerID := strings.TrimSpace(c.Param("customer_id"))
	if customerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer id is required")
	}

	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}

	customer, err := h.customers.Get(c.Request().Context(), customerID)
	if err != nil {
		if errors.Is(err, customers.ErrCustomerNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "customer not found")
		}
		h.logger.Error("load customer failed", slog.String("customer_id", customerID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if customer.TenantID != tenantID {
		return echo.NewHTTPError(http.StatusForbidden, "customer belongs to another tenant")
	}

	answers, err := h.customers.ListAnswers(c.Request().Context(), customer.ID)
	if err != nil {
		h.logger.Error("list answers failed", slog.String("customer_id", customerID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, answers)
}
