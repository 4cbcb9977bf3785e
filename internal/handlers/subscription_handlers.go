package handlers

import (
	"net/http"

	"pulsepay/internal/common"
	"pulsepay/internal/services"

	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers handles HTTP requests for the subscription ledger.
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

// Subscribe handles POST /v1/subscriptions
func (h *SubscriptionHandlers) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PlanID uint64 `json:"plan_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.PlanID == 0 {
		return common.SendValidationError(c, "plan_id", "plan_id is required")
	}

	sub, err := h.subscriptionService.Subscribe(ctx, accountID, req.PlanID)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":      "Subscribed successfully",
		"subscription": sub,
	})
}

// Unsubscribe handles DELETE /v1/subscriptions
func (h *SubscriptionHandlers) Unsubscribe(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	if err := h.subscriptionService.Unsubscribe(ctx, accountID); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Unsubscribed successfully"})
}

// GetMySubscription handles GET /v1/subscriptions/me
func (h *SubscriptionHandlers) GetMySubscription(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	active, err := h.subscriptionService.IsSubscriptionActive(ctx, accountID)
	if err != nil {
		return common.SendServerError(c, "failed to load subscription")
	}
	resp := map[string]interface{}{"active": active}
	if fee, err := h.subscriptionService.GetSubscriptionFee(ctx, accountID); err == nil {
		resp["fee_fiat"] = fee
	}
	return c.JSON(http.StatusOK, resp)
}

// RunSweep handles POST /v1/subscriptions/sweep
func (h *SubscriptionHandlers) RunSweep(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	report, err := h.subscriptionService.ChargeExpiredSubscriptions(ctx)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// GetStats handles GET /v1/subscriptions/stats
func (h *SubscriptionHandlers) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	revenue, err := h.subscriptionService.GetTotalRevenue(ctx)
	if err != nil {
		return common.SendServerError(c, "failed to load revenue")
	}
	total, err := h.subscriptionService.GetTotalSubscribers(ctx)
	if err != nil {
		return common.SendServerError(c, "failed to count subscribers")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"revenue_wei":       revenue,
		"total_subscribers": total,
	})
}

// GetPlanSubscriberCount handles GET /v1/plans/:id/subscribers/count
func (h *SubscriptionHandlers) GetPlanSubscriberCount(c echo.Context) error {
	id, err := parsePlanID(c)
	if err != nil {
		return err
	}
	count, err := h.subscriptionService.GetSubscriberCount(c.Request().Context(), id)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan_id":     id,
		"subscribers": count,
	})
}

// Refund handles POST /v1/refunds
func (h *SubscriptionHandlers) Refund(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	var req struct {
		SubscriberID string `json:"subscriber_id"`
		AmountWei    uint64 `json:"amount_wei"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	subscriberID, err := common.ValidateUUID(req.SubscriberID, "subscriber_id")
	if err != nil {
		return common.SendValidationError(c, "subscriber_id", err.Error())
	}

	if err := h.subscriptionService.RefundSubscriber(ctx, subscriberID, req.AmountWei); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Refund issued"})
}

// Withdraw handles POST /v1/withdrawals
func (h *SubscriptionHandlers) Withdraw(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	var req struct {
		To        string `json:"to"`
		AmountWei uint64 `json:"amount_wei"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	to, err := common.ValidateUUID(req.To, "to")
	if err != nil {
		return common.SendValidationError(c, "to", err.Error())
	}

	if err := h.subscriptionService.Withdraw(ctx, to, req.AmountWei); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Withdrawal sent"})
}

// UpdatePaymaster handles PUT /v1/paymaster
func (h *SubscriptionHandlers) UpdatePaymaster(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	var req struct {
		Address string `json:"address"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Address == "" {
		return common.SendValidationError(c, "address", "address is required")
	}

	if err := h.subscriptionService.UpdatePaymaster(ctx, req.Address); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Paymaster updated"})
}
