package handlers

import (
	"context"
	"net/http"
	"strconv"

	"pulsepay/internal/common"
	"pulsepay/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// EscrowHandlers handles HTTP requests for escrows and the escrow-funded
// subscription variant.
type EscrowHandlers struct {
	escrowService services.EscrowService
}

func NewEscrowHandlers(escrowService services.EscrowService) *EscrowHandlers {
	return &EscrowHandlers{escrowService: escrowService}
}

// CreateEscrow handles POST /v1/escrows
func (h *EscrowHandlers) CreateEscrow(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		SellerID  string `json:"seller_id"`
		AmountWei uint64 `json:"amount_wei"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	sellerID, err := common.ValidateUUID(req.SellerID, "seller_id")
	if err != nil {
		return common.SendValidationError(c, "seller_id", err.Error())
	}

	escrow, err := h.escrowService.CreateEscrow(ctx, buyerID, sellerID, req.AmountWei)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Escrow created",
		"escrow":  escrow,
	})
}

// GetEscrow handles GET /v1/escrows/:id
func (h *EscrowHandlers) GetEscrow(c echo.Context) error {
	ctx := c.Request().Context()
	callerID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	escrowID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	escrow, err := h.escrowService.GetEscrow(ctx, escrowID)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	// Third parties see nothing.
	if callerID != escrow.BuyerID && callerID != escrow.SellerID {
		if err := common.RequireOwner(ctx); err != nil {
			return common.SendLedgerError(c, common.ErrEscrowNotFound)
		}
	}
	return c.JSON(http.StatusOK, escrow)
}

// ListMyEscrows handles GET /v1/escrows
func (h *EscrowHandlers) ListMyEscrows(c echo.Context) error {
	ctx := c.Request().Context()
	callerID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset := 20, 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	escrows, err := h.escrowService.ListEscrowsByParty(ctx, callerID, limit, offset)
	if err != nil {
		return common.SendServerError(c, "failed to list escrows")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"escrows": escrows,
		"limit":   limit,
		"offset":  offset,
	})
}

// ReleaseEscrow handles POST /v1/escrows/:id/release
func (h *EscrowHandlers) ReleaseEscrow(c echo.Context) error {
	return h.escrowAction(c, h.escrowService.ReleaseEscrow, "Escrow released")
}

// DisputeEscrow handles POST /v1/escrows/:id/dispute
func (h *EscrowHandlers) DisputeEscrow(c echo.Context) error {
	return h.escrowAction(c, h.escrowService.DisputeEscrow, "Escrow disputed")
}

func (h *EscrowHandlers) escrowAction(c echo.Context, action func(ctx context.Context, caller, id uuid.UUID) error, message string) error {
	ctx := c.Request().Context()
	callerID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	escrowID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := action(ctx, callerID, escrowID); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": message})
}

// ResolveEscrowDispute handles POST /v1/escrows/:id/resolve
func (h *EscrowHandlers) ResolveEscrowDispute(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	escrowID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req struct {
		Winner string `json:"winner"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	winnerID, err := common.ValidateUUID(req.Winner, "winner")
	if err != nil {
		return common.SendValidationError(c, "winner", err.Error())
	}

	if err := h.escrowService.ResolveEscrowDispute(ctx, escrowID, winnerID); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Dispute resolved"})
}

// CreateEscrowSubscription handles POST /v1/escrow-subscriptions
func (h *EscrowHandlers) CreateEscrowSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	subscriberID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PriceWei      uint64   `json:"price_wei"`
		PeriodDays    int      `json:"period_days"`
		AllowedPayers []string `json:"allowed_payers"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	payers := make([]uuid.UUID, 0, len(req.AllowedPayers))
	for _, raw := range req.AllowedPayers {
		id, err := common.ValidateUUID(raw, "allowed_payers")
		if err != nil {
			return common.SendValidationError(c, "allowed_payers", err.Error())
		}
		payers = append(payers, id)
	}

	sub, err := h.escrowService.CreateEscrowSubscription(ctx, subscriberID, req.PriceWei, req.PeriodDays, payers)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":      "Escrow subscription created",
		"subscription": sub,
	})
}

// GetEscrowSubscription handles GET /v1/escrow-subscriptions/:id
func (h *EscrowHandlers) GetEscrowSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	if _, ok := common.GetAccountIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	subID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	sub, err := h.escrowService.GetEscrowSubscription(ctx, subID)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// RenewEscrowSubscription handles POST /v1/escrow-subscriptions/:id/renew
func (h *EscrowHandlers) RenewEscrowSubscription(c echo.Context) error {
	return h.escrowSubAction(c, h.escrowService.RenewEscrowSubscription, "Subscription renewed")
}

// CancelEscrowSubscription handles POST /v1/escrow-subscriptions/:id/cancel
func (h *EscrowHandlers) CancelEscrowSubscription(c echo.Context) error {
	return h.escrowSubAction(c, h.escrowService.CancelEscrowSubscription, "Subscription cancelled")
}

// PayEscrowSubscription handles POST /v1/escrow-subscriptions/:id/payments
func (h *EscrowHandlers) PayEscrowSubscription(c echo.Context) error {
	return h.escrowSubAction(c, h.escrowService.MakeSubscriptionPayment, "Payment accepted")
}

func (h *EscrowHandlers) escrowSubAction(c echo.Context, action func(ctx context.Context, caller, id uuid.UUID) error, message string) error {
	ctx := c.Request().Context()
	callerID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := action(ctx, callerID, subID); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": message})
}
