package handlers

import (
	"net/http"

	"pulsepay/internal/common"
	"pulsepay/internal/services"

	"github.com/labstack/echo/v4"
)

// LimitHandlers handles HTTP requests for per-payer spending limits.
type LimitHandlers struct {
	limitService services.SpendingLimitService
}

func NewLimitHandlers(limitService services.SpendingLimitService) *LimitHandlers {
	return &LimitHandlers{limitService: limitService}
}

// SetLimit handles PUT /v1/limits
func (h *LimitHandlers) SetLimit(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		Asset  string `json:"asset"`
		CapWei uint64 `json:"cap_wei"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Asset == "" {
		return common.SendValidationError(c, "asset", "asset is required")
	}

	if err := h.limitService.SetLimit(ctx, accountID, req.Asset, req.CapWei); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Spending limit set"})
}

// ClearLimit handles DELETE /v1/limits/:asset
func (h *LimitHandlers) ClearLimit(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	asset := c.Param("asset")
	if asset == "" {
		return common.SendValidationError(c, "asset", "asset is required")
	}

	if err := h.limitService.ClearLimit(ctx, accountID, asset); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Spending limit cleared"})
}

// GetLimit handles GET /v1/limits/:asset
func (h *LimitHandlers) GetLimit(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	asset := c.Param("asset")
	if asset == "" {
		return common.SendValidationError(c, "asset", "asset is required")
	}

	limit, err := h.limitService.GetLimit(ctx, accountID, asset)
	if err != nil {
		return common.SendServerError(c, "failed to load spending limit")
	}
	if limit == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"enabled": false})
	}
	return c.JSON(http.StatusOK, limit)
}
