package handlers

import (
	"net/http"
	"strconv"

	"pulsepay/internal/common"
	"pulsepay/internal/services"

	"github.com/labstack/echo/v4"
)

// PlanHandlers handles HTTP requests for the plan registry.
type PlanHandlers struct {
	planService services.PlanService
}

func NewPlanHandlers(planService services.PlanService) *PlanHandlers {
	return &PlanHandlers{planService: planService}
}

func parsePlanID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid plan id")
	}
	return id, nil
}

// CreatePlan handles POST /v1/plans
func (h *PlanHandlers) CreatePlan(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	var req struct {
		Name    string `json:"name"`
		FeeFiat uint64 `json:"fee_fiat"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	plan, err := h.planService.CreatePlan(ctx, req.Name, req.FeeFiat)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Plan created successfully",
		"plan":    plan,
	})
}

// UpdatePlan handles PUT /v1/plans/:id
func (h *PlanHandlers) UpdatePlan(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	id, err := parsePlanID(c)
	if err != nil {
		return err
	}

	var req struct {
		Name    string `json:"name"`
		FeeFiat uint64 `json:"fee_fiat"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := h.planService.UpdatePlan(ctx, id, req.Name, req.FeeFiat); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Plan updated successfully"})
}

// DeletePlan handles DELETE /v1/plans/:id
func (h *PlanHandlers) DeletePlan(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	id, err := parsePlanID(c)
	if err != nil {
		return err
	}
	if err := h.planService.DeletePlan(ctx, id); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Plan deleted successfully"})
}

// MakePlanLive handles POST /v1/plans/:id/live
func (h *PlanHandlers) MakePlanLive(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	id, err := parsePlanID(c)
	if err != nil {
		return err
	}
	if err := h.planService.MakePlanLive(ctx, id); err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Plan is now live"})
}

// ListPlans handles GET /v1/plans (owner sees drafts too)
func (h *PlanHandlers) ListPlans(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	plans, err := h.planService.GetAllPlans(ctx)
	if err != nil {
		return common.SendServerError(c, "failed to list plans")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"plans": plans})
}

// ListLivePlans handles GET /v1/plans/live
func (h *PlanHandlers) ListLivePlans(c echo.Context) error {
	plans, err := h.planService.GetLivePlans(c.Request().Context())
	if err != nil {
		return common.SendServerError(c, "failed to list plans")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"plans": plans})
}
